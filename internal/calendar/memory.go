package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
)

// MemoryGateway is an in-process calendar used by tests, local runs
// (GOOGLE_AUTH_METHOD=fake) and the operator CLI. Hold events count as busy.
type MemoryGateway struct {
	mu     sync.Mutex
	loc    *time.Location
	busy   []availability.Interval
	events map[string]*memEvent
	seq    int

	// Failure injection keyed by event id.
	cancelErr  map[string]error
	confirmErr error
	createErr  error

	cancelCalls []string
}

type memEvent struct {
	id          string
	holdID      string
	status      string
	start, end  time.Time
	summary     string
	description string
	attendees   []string
}

// NewMemoryGateway creates an empty calendar in loc.
func NewMemoryGateway(loc *time.Location) *MemoryGateway {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryGateway{loc: loc, events: make(map[string]*memEvent), cancelErr: make(map[string]error)}
}

// AddBusy marks an interval busy.
func (m *MemoryGateway) AddBusy(start, end time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = append(m.busy, availability.Interval{Start: start, End: end})
}

// FailCancel makes CancelEvent(eventID) return err.
func (m *MemoryGateway) FailCancel(eventID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelErr[eventID] = err
}

// FailCreate makes every CreateHoldEvent call return err. Nil clears it.
func (m *MemoryGateway) FailCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createErr = err
}

// FailConfirm makes every ConfirmEvent call return err. Nil clears it.
func (m *MemoryGateway) FailConfirm(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmErr = err
}

// CancelCalls returns the event ids passed to CancelEvent, in order.
func (m *MemoryGateway) CancelCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelCalls...)
}

// EventStatus returns the status of an event and whether it exists.
func (m *MemoryGateway) EventStatus(eventID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[eventID]
	if !ok {
		return "", false
	}
	return e.status, true
}

// EventCount returns the number of live events.
func (m *MemoryGateway) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *MemoryGateway) FreeBusy(_ context.Context, start, end time.Time) ([]availability.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := availability.Interval{Start: start, End: end}
	var out []availability.Interval
	for _, b := range m.busy {
		if availability.Overlaps(b, window) {
			out = append(out, availability.Interval{Start: b.Start.In(m.loc), End: b.End.In(m.loc)})
		}
	}
	for _, e := range m.events {
		iv := availability.Interval{Start: e.start, End: e.end}
		if availability.Overlaps(iv, window) {
			out = append(out, availability.Interval{Start: e.start.In(m.loc), End: e.end.In(m.loc)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *MemoryGateway) FindSlots(ctx context.Context, start, end time.Time, opts availability.Options) ([]availability.Slot, error) {
	if opts.Location == nil {
		opts.Location = m.loc
	}
	start, end = start.In(opts.Location), end.In(opts.Location)
	busy, err := m.FreeBusy(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return slotsFrom(start, end, busy, opts), nil
}

func (m *MemoryGateway) CreateHoldEvent(_ context.Context, in HoldEventInput) (*HoldEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	holdID := in.HoldID
	if holdID == "" {
		holdID = NewHoldID()
	}
	m.seq++
	id := fmt.Sprintf("evt_%03d", m.seq)
	m.events[id] = &memEvent{
		id:          id,
		holdID:      holdID,
		status:      "tentative",
		start:       in.Start,
		end:         in.End,
		summary:     in.Summary,
		description: in.Description,
		attendees:   append([]string(nil), in.Attendees...),
	}
	return &HoldEvent{HoldID: holdID, EventID: id}, nil
}

func (m *MemoryGateway) ConfirmEvent(_ context.Context, holdID string, attendees []string) (*Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return nil, m.confirmErr
	}
	for _, e := range m.events {
		if e.holdID != holdID {
			continue
		}
		e.status = "confirmed"
		if len(attendees) > 0 {
			e.attendees = append([]string(nil), attendees...)
		}
		return &Event{ID: e.id, Status: e.status, Start: e.start.In(m.loc), End: e.end.In(m.loc)}, nil
	}
	return nil, fmt.Errorf("%w: hold %s", ErrEventNotFound, holdID)
}

func (m *MemoryGateway) CancelEvent(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelCalls = append(m.cancelCalls, eventID)
	if err, ok := m.cancelErr[eventID]; ok {
		return err
	}
	delete(m.events, eventID)
	return nil
}

// Summary returns the summary and description of an event, for tests.
func (m *MemoryGateway) Summary(eventID string) (summary, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[eventID]; ok {
		return e.summary, e.description
	}
	return "", ""
}
