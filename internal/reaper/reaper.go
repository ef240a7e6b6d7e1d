// Package reaper expires tentative holds whose TTL has lapsed, releasing
// their calendar events.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/receptionist-scheduler/internal/calendar"
	"github.com/wolfman30/receptionist-scheduler/internal/events"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/internal/observability/metrics"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// Reaper periodically deletes expired tentative holds.
type Reaper struct {
	store     holds.Store
	calendar  calendar.Gateway
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
	ttl       time.Duration
	interval  time.Duration
	batchSize int
}

func New(store holds.Store, gw calendar.Gateway, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reaper{
		store:     store,
		calendar:  gw,
		publisher: events.NopPublisher{},
		logger:    logger,
		now:       time.Now,
		ttl:       180 * time.Second,
		interval:  30 * time.Second,
		batchSize: 100,
	}
}

func (r *Reaper) WithTTL(d time.Duration) *Reaper {
	if d > 0 {
		r.ttl = d
	}
	return r
}

func (r *Reaper) WithInterval(d time.Duration) *Reaper {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Reaper) WithBatchSize(n int) *Reaper {
	if n > 0 {
		r.batchSize = n
	}
	return r
}

func (r *Reaper) WithPublisher(p events.Publisher) *Reaper {
	if p != nil {
		r.publisher = p
	}
	return r
}

func (r *Reaper) WithMetrics(m *metrics.BookingMetrics) *Reaper {
	r.metrics = m
	return r
}

func (r *Reaper) WithClock(now func() time.Time) *Reaper {
	if now != nil {
		r.now = now
	}
	return r
}

// Run sweeps immediately and then on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.sweepAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("reaper: sweep failed", "error", err)
	}
}

// Sweep expires one batch of holds and returns how many were removed. A hold
// whose event cannot be cancelled is kept for the next sweep.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.ttl)

	var expired []holds.Hold
	err := r.store.WithTx(ctx, func(ctx context.Context, ledger holds.Ledger) error {
		var err error
		expired, err = ledger.ListExpired(ctx, cutoff, r.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reaper: list expired: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	removed := 0
	for _, h := range expired {
		deleted, err := r.expire(ctx, h)
		if err != nil {
			r.logger.Warn("reaper: failed to expire hold", "hold_id", h.HoldID, "event_id", h.EventID, "error", err)
			continue
		}
		if !deleted {
			continue
		}
		removed++
		if err := r.publisher.Publish(ctx, events.TypeHoldExpired, events.HoldExpiredV1{HoldID: h.HoldID, GroupID: h.GroupID, EventID: h.EventID}); err != nil {
			r.logger.Warn("reaper: failed to publish expiry", "hold_id", h.HoldID, "error", err)
		}
	}
	r.metrics.ObserveHoldsReleased("expired", removed)
	r.logger.Info("reaper: expired holds", "count", removed, "candidates", len(expired))
	return removed, nil
}

// expire deletes the row first, while it is still tentative, and only then
// cancels the event. A hold confirmed in the meantime is left alone, and a
// failed cancel rolls the delete back.
func (r *Reaper) expire(ctx context.Context, h holds.Hold) (bool, error) {
	deleted := false
	err := r.store.WithTx(ctx, func(ctx context.Context, ledger holds.Ledger) error {
		ok, err := ledger.DeleteIfTentative(ctx, h.HoldID)
		if err != nil || !ok {
			return err
		}
		if err := r.calendar.CancelEvent(ctx, h.EventID); err != nil {
			return fmt.Errorf("cancel event: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
