// Package calendar talks to the calendar of record: free/busy lookups and the
// tentative events that back appointment holds.
package calendar

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
)

// ErrEventNotFound is returned when no event matches a hold or event id.
var ErrEventNotFound = errors.New("calendar: event not found")

// HoldProperty is the private extended property that links an event to its hold.
const HoldProperty = "hold_id"

// Gateway is the calendar collaborator used by the booking orchestrator.
type Gateway interface {
	// FreeBusy returns the busy intervals between start and end.
	FreeBusy(ctx context.Context, start, end time.Time) ([]availability.Interval, error)

	// FindSlots queries busy intervals and runs the availability calculator.
	FindSlots(ctx context.Context, start, end time.Time, opts availability.Options) ([]availability.Slot, error)

	// CreateHoldEvent creates a tentative event. The returned HoldID is stored
	// on the event so ConfirmEvent can find it again.
	CreateHoldEvent(ctx context.Context, in HoldEventInput) (*HoldEvent, error)

	// ConfirmEvent promotes the event carrying holdID to confirmed.
	ConfirmEvent(ctx context.Context, holdID string, attendees []string) (*Event, error)

	// CancelEvent deletes an event. Already-deleted events are not an error.
	CancelEvent(ctx context.Context, eventID string) error
}

// HoldEventInput describes a tentative event. HoldID is generated when empty.
type HoldEventInput struct {
	HoldID      string
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Attendees   []string
}

// HoldEvent identifies a created tentative event.
type HoldEvent struct {
	HoldID  string
	EventID string
}

// Event is the subset of a calendar event the service reads back.
type Event struct {
	ID     string
	Status string
	Start  time.Time
	End    time.Time
}

// NewHoldID returns a short random identifier for a hold.
func NewHoldID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// slotsFrom runs the calculator over busy intervals. Shared by gateway implementations.
func slotsFrom(start, end time.Time, busy []availability.Interval, opts availability.Options) []availability.Slot {
	loc := opts.Location
	if loc == nil {
		loc = start.Location()
	}
	opts.Location = loc
	return availability.Describe(availability.FindSlots(start, end, busy, opts), loc)
}
