package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/internal/calendar"
	"github.com/wolfman30/receptionist-scheduler/internal/crm"
	"github.com/wolfman30/receptionist-scheduler/internal/events"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// Monday.
var testNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	orch     *Orchestrator
	store    *holds.MemoryStore
	calendar *calendar.MemoryGateway
	crm      *crm.MemoryStore
	events   *events.Recorder
}

func newFixture(t *testing.T, gw calendar.Gateway) *fixture {
	t.Helper()
	mem := calendar.NewMemoryGateway(time.UTC)
	if gw == nil {
		gw = mem
	}
	if s, ok := gw.(*scriptedGateway); ok {
		mem = s.MemoryGateway
	}
	f := &fixture{
		store:    holds.NewMemoryStore().WithClock(func() time.Time { return testNow }),
		calendar: mem,
		crm:      crm.NewMemoryStore(),
		events:   &events.Recorder{},
	}
	f.orch = New(Deps{
		Store:     f.store,
		Calendar:  gw,
		CRM:       f.crm,
		Locker:    NewLocalLocker(),
		Publisher: f.events,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return testNow },
	}, Options{Location: time.UTC})
	return f
}

// scriptedGateway overrides selected MemoryGateway calls.
type scriptedGateway struct {
	*calendar.MemoryGateway
	createCalls  int
	failCreateAt int
	blankConfirm bool
}

func (s *scriptedGateway) CreateHoldEvent(ctx context.Context, in calendar.HoldEventInput) (*calendar.HoldEvent, error) {
	s.createCalls++
	if s.createCalls == s.failCreateAt {
		return nil, errors.New("calendar unavailable")
	}
	return s.MemoryGateway.CreateHoldEvent(ctx, in)
}

func (s *scriptedGateway) ConfirmEvent(ctx context.Context, holdID string, attendees []string) (*calendar.Event, error) {
	if s.blankConfirm {
		return &calendar.Event{}, nil
	}
	return s.MemoryGateway.ConfirmEvent(ctx, holdID, attendees)
}

func TestManageRejectsUnknownAction(t *testing.T) {
	f := newFixture(t, nil)
	for _, action := range []string{"", "delete", "BOOKING"} {
		_, err := f.orch.Manage(context.Background(), ManageRequest{ActionType: action})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr, action)
	}
	assert.Empty(t, f.store.Snapshot())
}

func TestBookCreatesOneHoldPerOption(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.orch.Manage(context.Background(), ManageRequest{
		ActionType:  " Book ",
		CallerName:  "Ana Silva",
		CallerPhone: "+15551234567",
		Reason:      "Cleaning",
		Provider:    "Dr. Lee",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPendingConfirmation, resp.Status)
	assert.Equal(t, 180, resp.ExpiresInSec)
	require.Len(t, resp.Options, 3)
	assert.Equal(t, resp.Options[0].HoldID, resp.HoldID)
	assert.Regexp(t, `^group_[0-9a-f]{10}$`, resp.GroupID)

	wantStarts := []time.Time{
		time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	rows := f.store.Snapshot()
	require.Len(t, rows, 3)
	for i, opt := range resp.Options {
		assert.Equal(t, wantStarts[i], opt.Start)
		assert.Equal(t, availability.SlotID(opt.Start), opt.SlotID)
		row := rows[i]
		assert.Equal(t, opt.HoldID, row.HoldID)
		assert.Equal(t, opt.SlotID, row.SlotID)
		assert.Equal(t, resp.GroupID, row.GroupID)
		assert.Equal(t, holds.StatusTentative, row.Status)
		assert.Empty(t, row.PreviousAppointmentID)
	}

	summary, description := f.calendar.Summary(rows[0].EventID)
	assert.Equal(t, "Hold: Ana Silva - Cleaning", summary)
	assert.Equal(t, "Phone: +15551234567\nReason: Cleaning\nProvider: Dr. Lee", description)
}

func TestBookUsesDateRange(t *testing.T) {
	f := newFixture(t, nil)
	resp, err := f.orch.Book(context.Background(), ManageRequest{DateRange: "tomorrow afternoon"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Options)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), resp.Options[0].Start)
}

func TestPreviewDoesNotReserve(t *testing.T) {
	f := newFixture(t, nil)
	slots, err := f.orch.Preview(context.Background(), "tomorrow afternoon")
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), slots[0].Start)
	assert.Empty(t, f.store.Snapshot())
	assert.Zero(t, f.calendar.EventCount())
}

func TestBookNoAvailability(t *testing.T) {
	f := newFixture(t, nil)
	f.calendar.AddBusy(testNow.Add(-time.Hour), testNow.Add(8*24*time.Hour))

	resp, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusNoAvailability, resp.Status)
	assert.NotNil(t, resp.Options)
	assert.Empty(t, resp.Options)
	assert.Empty(t, resp.GroupID)
	assert.Empty(t, f.store.Snapshot())
	assert.Zero(t, f.calendar.EventCount())
}

func TestBookRollsBackAndReleasesEventsOnFailure(t *testing.T) {
	gw := &scriptedGateway{MemoryGateway: calendar.NewMemoryGateway(time.UTC), failCreateAt: 2}
	f := newFixture(t, gw)

	_, err := f.orch.Book(context.Background(), ManageRequest{})
	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Empty(t, f.store.Snapshot())
	assert.Zero(t, f.calendar.EventCount())
	assert.Len(t, f.calendar.CancelCalls(), 1)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orch.Manage(context.Background(), ManageRequest{ActionType: "reschedule"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	resp, err := f.orch.Manage(context.Background(), ManageRequest{ActionType: "reschedule", AppointmentID: "appt_old"})
	require.NoError(t, err)
	assert.Equal(t, StatusReschedulePending, resp.Status)
	for _, row := range f.store.Snapshot() {
		assert.Equal(t, "appt_old", row.PreviousAppointmentID)
	}

	// Confirming cancels the appointment being replaced.
	opt := resp.Options[1]
	_, err = f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: opt.HoldID, SlotID: opt.SlotID})
	require.NoError(t, err)
	assert.Contains(t, f.calendar.CancelCalls(), "appt_old")
}

func TestCancelIssuesExactlyOneCall(t *testing.T) {
	f := newFixture(t, nil)

	resp, err := f.orch.Manage(context.Background(), ManageRequest{ActionType: "cancel", AppointmentID: "evt_absent"})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, resp.Status)
	assert.Equal(t, "evt_absent", resp.AppointmentID)
	assert.Nil(t, resp.Options)
	assert.Equal(t, []string{"evt_absent"}, f.calendar.CancelCalls())

	_, err = f.orch.Cancel(context.Background(), ManageRequest{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, f.calendar.CancelCalls(), 1)

	f.calendar.FailCancel("evt_broken", errors.New("503"))
	_, err = f.orch.Cancel(context.Background(), ManageRequest{AppointmentID: "evt_broken"})
	var upstream *UpstreamError
	assert.ErrorAs(t, err, &upstream)
}

func TestConfirmReleasesSiblings(t *testing.T) {
	f := newFixture(t, nil)
	booked, err := f.orch.Book(context.Background(), ManageRequest{CallerName: "Ana"})
	require.NoError(t, err)
	rows := f.store.Snapshot()
	require.Len(t, rows, 3)

	chosen := booked.Options[1]
	resp, err := f.orch.Confirm(context.Background(), ConfirmRequest{
		HoldID:      chosen.HoldID,
		SlotID:      chosen.SlotID,
		CallerName:  "Ana",
		CallerPhone: "+15551234567",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, resp.Status)
	assert.Equal(t, rows[1].EventID, resp.AppointmentID)

	remaining := f.store.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, chosen.HoldID, remaining[0].HoldID)
	assert.Equal(t, holds.StatusConfirmed, remaining[0].Status)
	assert.ElementsMatch(t, []string{rows[0].EventID, rows[2].EventID}, f.calendar.CancelCalls())

	status, ok := f.calendar.EventStatus(resp.AppointmentID)
	require.True(t, ok)
	assert.Equal(t, "confirmed", status)

	patient, err := f.crm.FindPatient(context.Background(), crm.PatientQuery{Phone: "+15551234567"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", patient.Name)

	published := f.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.TypeAppointmentConfirmed, published[0].Type)
}

func TestConfirmDeletesSiblingsEvenWhenCancelFails(t *testing.T) {
	f := newFixture(t, nil)
	booked, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)
	rows := f.store.Snapshot()
	f.calendar.FailCancel(rows[0].EventID, errors.New("calendar down"))
	f.calendar.FailCancel(rows[2].EventID, errors.New("calendar down"))

	_, err = f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: booked.Options[1].HoldID, SlotID: booked.Options[1].SlotID})
	require.NoError(t, err)
	remaining := f.store.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, holds.StatusConfirmed, remaining[0].Status)
}

func TestConfirmUnknownHold(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: "missing", SlotID: "slot_x"})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.False(t, nf.SlotMismatch)
	assert.Empty(t, f.calendar.CancelCalls())
}

func TestConfirmMissingCalendarEventIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	booked, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)
	rows := f.store.Snapshot()
	require.NoError(t, f.calendar.CancelEvent(context.Background(), rows[0].EventID))

	_, err = f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: booked.Options[0].HoldID, SlotID: booked.Options[0].SlotID})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, booked.Options[0].HoldID, nf.HoldID)

	var upstream *UpstreamError
	assert.False(t, errors.As(err, &upstream))
	assert.Equal(t, rows, f.store.Snapshot(), "ledger is rolled back")
}

func TestConfirmRequiresIdentifiers(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: " ", SlotID: "slot"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestConfirmSlotMismatchLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, nil)
	booked, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)
	before := f.store.Snapshot()

	_, err = f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: booked.Options[0].HoldID, SlotID: booked.Options[1].SlotID})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.True(t, nf.SlotMismatch)
	assert.Equal(t, before, f.store.Snapshot())
	assert.Empty(t, f.calendar.CancelCalls())
	status, _ := f.calendar.EventStatus(before[0].EventID)
	assert.Equal(t, "tentative", status)
}

func TestConfirmMissingEventIDRollsBack(t *testing.T) {
	gw := &scriptedGateway{MemoryGateway: calendar.NewMemoryGateway(time.UTC), blankConfirm: true}
	f := newFixture(t, gw)
	booked, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)

	_, err = f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: booked.HoldID, SlotID: booked.Options[0].SlotID})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	for _, row := range f.store.Snapshot() {
		assert.Equal(t, holds.StatusTentative, row.Status)
	}
}

func TestConfirmRefusesSecondGroupMember(t *testing.T) {
	f := newFixture(t, nil)
	start := testNow.Add(time.Hour)
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, l holds.Ledger) error {
		for i, id := range []string{"h1", "h2"} {
			s := start.Add(time.Duration(i) * 30 * time.Minute)
			if err := l.Create(ctx, holds.Hold{HoldID: id, GroupID: "group_x", SlotID: "slot_" + id, EventID: "evt_" + id, Start: s, End: s.Add(30 * time.Minute)}); err != nil {
				return err
			}
		}
		return l.SetStatus(ctx, "h1", holds.StatusConfirmed)
	}))

	_, err := f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: "h2", SlotID: "slot_h2"})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "group_x", conflict.GroupID)
	assert.Len(t, f.store.Snapshot(), 2)
}

func TestConcurrentConfirmsProduceOneAppointment(t *testing.T) {
	f := newFixture(t, nil)
	booked, err := f.orch.Book(context.Background(), ManageRequest{})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for _, opt := range booked.Options {
		wg.Add(1)
		go func(opt AppointmentOption) {
			defer wg.Done()
			_, err := f.orch.Confirm(context.Background(), ConfirmRequest{HoldID: opt.HoldID, SlotID: opt.SlotID})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(opt)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	remaining := f.store.Snapshot()
	require.Len(t, remaining, 1)
	assert.Equal(t, holds.StatusConfirmed, remaining[0].Status)
}

func TestHoldDescriptionOmitsEmptyFields(t *testing.T) {
	assert.Equal(t, "Hold: Patient - Appointment", holdSummary(ManageRequest{}))
	assert.Empty(t, holdDescription(ManageRequest{}))
	assert.Equal(t, "DOB: 1990-01-01\nLocation: Main St", holdDescription(ManageRequest{CallerDOB: "1990-01-01", Location: "Main St"}))
}
