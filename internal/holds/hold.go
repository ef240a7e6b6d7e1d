// Package holds stores tentative, calendar-backed reservations awaiting confirmation.
package holds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a hold.
type Status string

const (
	StatusTentative Status = "tentative"
	StatusConfirmed Status = "confirmed"
)

var (
	// ErrHoldNotFound is returned when no hold matches the id.
	ErrHoldNotFound = errors.New("holds: hold not found")

	// ErrDuplicateHold is returned when a hold id is already present.
	ErrDuplicateHold = errors.New("holds: duplicate hold id")

	// ErrInvalidHold is returned by Validate.
	ErrInvalidHold = errors.New("holds: invalid hold")
)

// Hold is a tentative reservation tied 1:1 to a calendar event.
// GroupID and PreviousAppointmentID are empty when unset.
type Hold struct {
	HoldID                string
	GroupID               string
	SlotID                string
	EventID               string
	PreviousAppointmentID string
	Start                 time.Time
	End                   time.Time
	Status                Status
	CreatedAt             time.Time
}

// Validate checks the row-level invariants.
func (h Hold) Validate() error {
	switch {
	case strings.TrimSpace(h.HoldID) == "":
		return fmt.Errorf("%w: hold_id is required", ErrInvalidHold)
	case strings.TrimSpace(h.SlotID) == "":
		return fmt.Errorf("%w: slot_id is required", ErrInvalidHold)
	case strings.TrimSpace(h.EventID) == "":
		return fmt.Errorf("%w: event_id is required", ErrInvalidHold)
	case !h.Start.Before(h.End):
		return fmt.Errorf("%w: start must be before end", ErrInvalidHold)
	}
	switch h.Status {
	case "", StatusTentative, StatusConfirmed:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidHold, h.Status)
	}
	return nil
}

// Ledger is the set of hold operations available inside one unit of work.
type Ledger interface {
	Create(ctx context.Context, hold Hold) error
	Get(ctx context.Context, holdID string) (*Hold, error)
	ListByGroup(ctx context.Context, groupID string) ([]Hold, error)
	SetStatus(ctx context.Context, holdID string, status Status) error
	Delete(ctx context.Context, holdID string) error
	DeleteGroup(ctx context.Context, groupID string) error

	// DeleteIfTentative removes the hold only while it is still tentative and
	// reports whether a row was removed. The row stays locked until the unit
	// of work ends, so a concurrent confirm waits for the outcome.
	DeleteIfTentative(ctx context.Context, holdID string) (bool, error)

	// ConfirmIfGroupOpen marks the hold confirmed unless another member of
	// its group is already confirmed. It reports whether the hold is now the
	// confirmed member. A missing hold yields ErrHoldNotFound.
	ConfirmIfGroupOpen(ctx context.Context, holdID string) (bool, error)

	// ListExpired returns tentative holds created before the cutoff, oldest first.
	ListExpired(ctx context.Context, before time.Time, limit int) ([]Hold, error)
}

// Store opens units of work. Writes made through the Ledger passed to fn are
// committed when fn returns nil and discarded otherwise.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error
}
