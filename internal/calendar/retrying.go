package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/internal/retry"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

type retryingGateway struct {
	next   Gateway
	policy retry.Policy
	logger *logging.Logger
}

// WithRetry wraps every gateway call in the retry policy. Missing events and
// 4xx API errors are returned immediately.
func WithRetry(next Gateway, policy retry.Policy, logger *logging.Logger) Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &retryingGateway{next: next, policy: policy, logger: logger}
}

func (r *retryingGateway) policyFor(op string) retry.Policy {
	p := r.policy
	p.Retryable = func(err error) bool {
		return !errors.Is(err, ErrEventNotFound) && !IsClientError(err)
	}
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		r.logger.Warn("calendar: retrying call", "op", op, "attempt", attempt, "wait", wait.String(), "error", err)
	}
	return p
}

func (r *retryingGateway) FreeBusy(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	return retry.Do(ctx, r.policyFor("freebusy"), func(ctx context.Context) ([]availability.Interval, error) {
		return r.next.FreeBusy(ctx, start, end)
	})
}

func (r *retryingGateway) FindSlots(ctx context.Context, start, end time.Time, opts availability.Options) ([]availability.Slot, error) {
	return retry.Do(ctx, r.policyFor("find_slots"), func(ctx context.Context) ([]availability.Slot, error) {
		return r.next.FindSlots(ctx, start, end, opts)
	})
}

// CreateHoldEvent pins the hold id before retrying so a retried insert keeps
// the same identity.
func (r *retryingGateway) CreateHoldEvent(ctx context.Context, in HoldEventInput) (*HoldEvent, error) {
	if in.HoldID == "" {
		in.HoldID = NewHoldID()
	}
	return retry.Do(ctx, r.policyFor("create_hold_event"), func(ctx context.Context) (*HoldEvent, error) {
		return r.next.CreateHoldEvent(ctx, in)
	})
}

func (r *retryingGateway) ConfirmEvent(ctx context.Context, holdID string, attendees []string) (*Event, error) {
	return retry.Do(ctx, r.policyFor("confirm_event"), func(ctx context.Context) (*Event, error) {
		return r.next.ConfirmEvent(ctx, holdID, attendees)
	})
}

func (r *retryingGateway) CancelEvent(ctx context.Context, eventID string) error {
	return retry.Run(ctx, r.policyFor("cancel_event"), func(ctx context.Context) error {
		return r.next.CancelEvent(ctx, eventID)
	})
}
