// Package booking drives the book, reschedule, cancel and confirm workflows
// over the hold ledger and the calendar of record.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/receptionist-scheduler/internal/availability"
	"github.com/wolfman30/receptionist-scheduler/internal/calendar"
	"github.com/wolfman30/receptionist-scheduler/internal/crm"
	"github.com/wolfman30/receptionist-scheduler/internal/daterange"
	"github.com/wolfman30/receptionist-scheduler/internal/events"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/internal/observability/metrics"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

var bookingTracer = otel.Tracer("receptionist.internal.booking")

// DefaultHoldTTL is advertised to callers as expires_in_sec.
const DefaultHoldTTL = 180 * time.Second

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	Location   *time.Location
	Slots      availability.Options
	SearchSpan time.Duration
	HoldTTL    time.Duration
}

// Deps are the orchestrator's collaborators. Store and Calendar are required.
type Deps struct {
	Store     holds.Store
	Calendar  calendar.Gateway
	CRM       crm.Gateway
	Resolver  daterange.Resolver
	Locker    GroupLocker
	Publisher events.Publisher
	Metrics   *metrics.BookingMetrics
	Logger    *logging.Logger
	Now       func() time.Time
}

// Orchestrator owns the hold lifecycle.
type Orchestrator struct {
	store     holds.Store
	calendar  calendar.Gateway
	crm       crm.Gateway
	resolver  daterange.Resolver
	locker    GroupLocker
	publisher events.Publisher
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	now       func() time.Time
	opts      Options
}

// New wires an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Store == nil {
		panic("booking: hold store required")
	}
	if deps.Calendar == nil {
		panic("booking: calendar gateway required")
	}
	if deps.Resolver == nil {
		deps.Resolver = daterange.Simple{}
	}
	if deps.Locker == nil {
		deps.Locker = NopLocker{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NopPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Slots.Location == nil {
		opts.Slots.Location = opts.Location
	}
	if opts.SearchSpan <= 0 {
		opts.SearchSpan = availability.DefaultSearchSpan
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = DefaultHoldTTL
	}
	return &Orchestrator{
		store:     deps.Store,
		calendar:  deps.Calendar,
		crm:       deps.CRM,
		resolver:  deps.Resolver,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
		opts:      opts,
	}
}

// HoldTTL is the advertised hold lifetime.
func (o *Orchestrator) HoldTTL() time.Duration { return o.opts.HoldTTL }

// Manage dispatches on the request's action type.
func (o *Orchestrator) Manage(ctx context.Context, req ManageRequest) (*ManageResponse, error) {
	action, err := ParseActionType(req.ActionType)
	if err != nil {
		return nil, err
	}
	switch action {
	case ActionBook:
		return o.Book(ctx, req)
	case ActionReschedule:
		return o.Reschedule(ctx, req)
	case ActionCancel:
		return o.Cancel(ctx, req)
	default:
		return nil, &ValidationError{Field: "action_type", Message: "unsupported action " + string(action)}
	}
}

// Book proposes up to the configured number of slots and reserves each with
// a tentative hold sharing one group id.
func (o *Orchestrator) Book(ctx context.Context, req ManageRequest) (*ManageResponse, error) {
	return o.propose(ctx, ActionBook, req, StatusPendingConfirmation)
}

// Reschedule is Book for an existing appointment, which is cancelled once a
// new hold is confirmed.
func (o *Orchestrator) Reschedule(ctx context.Context, req ManageRequest) (*ManageResponse, error) {
	if strings.TrimSpace(req.AppointmentID) == "" {
		return nil, &ValidationError{Field: "appointment_id", Message: "appointment_id is required to reschedule"}
	}
	return o.propose(ctx, ActionReschedule, req, StatusReschedulePending)
}

// Cancel deletes an existing appointment with exactly one gateway call.
func (o *Orchestrator) Cancel(ctx context.Context, req ManageRequest) (resp *ManageResponse, err error) {
	started := o.now()
	ctx, span := bookingTracer.Start(ctx, "booking.cancel")
	defer func() { o.finish(span, ActionCancel, started, resp, err) }()

	appointmentID := strings.TrimSpace(req.AppointmentID)
	if appointmentID == "" {
		return nil, &ValidationError{Field: "appointment_id", Message: "appointment_id is required to cancel"}
	}
	span.SetAttributes(attribute.String("booking.appointment_id", appointmentID))

	if err := o.calendar.CancelEvent(ctx, appointmentID); err != nil {
		return nil, &UpstreamError{Op: "cancel appointment", Err: err}
	}
	o.logger.Info("booking: appointment canceled", "appointment_id", appointmentID)
	o.publish(ctx, events.TypeAppointmentCanceled, events.AppointmentCanceledV1{AppointmentID: appointmentID})
	return &ManageResponse{AppointmentID: appointmentID, Status: StatusCanceled}, nil
}

func (o *Orchestrator) propose(ctx context.Context, action ActionType, req ManageRequest, status string) (resp *ManageResponse, err error) {
	started := o.now()
	ctx, span := bookingTracer.Start(ctx, "booking."+string(action))
	defer func() { o.finish(span, action, started, resp, err) }()

	start, end := o.window(req.DateRange)
	span.SetAttributes(
		attribute.String("booking.window_start", start.Format(time.RFC3339)),
		attribute.String("booking.window_end", end.Format(time.RFC3339)),
	)

	slots, err := o.calendar.FindSlots(ctx, start, end, o.opts.Slots)
	if err != nil {
		return nil, &UpstreamError{Op: "find slots", Err: err}
	}
	if len(slots) == 0 {
		o.logger.Info("booking: no slots available", "start", start, "end", end)
		return &ManageResponse{Options: []AppointmentOption{}, Status: StatusNoAvailability}, nil
	}

	groupID := newGroupID()
	span.SetAttributes(attribute.String("booking.group_id", groupID))
	previous := strings.TrimSpace(req.AppointmentID)
	if previous == "" {
		previous = strings.TrimSpace(req.PreviousAppointmentID)
	}
	summary, description := holdSummary(req), holdDescription(req)

	var (
		options []AppointmentOption
		created []string
	)
	err = o.store.WithTx(ctx, func(ctx context.Context, ledger holds.Ledger) error {
		for _, slot := range slots {
			ev, err := o.calendar.CreateHoldEvent(ctx, calendar.HoldEventInput{
				Start:       slot.Start,
				End:         slot.End,
				Summary:     summary,
				Description: description,
			})
			if err != nil {
				return &UpstreamError{Op: "create hold event", Err: err}
			}
			if ev == nil || ev.EventID == "" {
				return &UpstreamError{Op: "create hold event", Err: errors.New("hold creation failed: missing event id")}
			}
			created = append(created, ev.EventID)

			if err := ledger.Create(ctx, holds.Hold{
				HoldID:                ev.HoldID,
				GroupID:               groupID,
				SlotID:                slot.ID,
				EventID:               ev.EventID,
				PreviousAppointmentID: previous,
				Start:                 slot.Start,
				End:                   slot.End,
				Status:                holds.StatusTentative,
			}); err != nil {
				return fmt.Errorf("booking: record hold: %w", err)
			}
			options = append(options, AppointmentOption{
				SlotID:  slot.ID,
				HoldID:  ev.HoldID,
				Display: slot.Display,
				Start:   slot.Start,
				End:     slot.End,
			})
		}
		return nil
	})
	if err != nil {
		o.releaseOrphans(ctx, groupID, created)
		return nil, err
	}

	o.metrics.ObserveHoldsCreated(len(options))
	o.logger.Info("booking: holds created", "group_id", groupID, "count", len(options), "action", string(action))
	return &ManageResponse{
		Options:      options,
		HoldID:       options[0].HoldID,
		GroupID:      groupID,
		ExpiresInSec: int(o.opts.HoldTTL / time.Second),
		Status:       status,
	}, nil
}

// Confirm promotes one hold to a durable appointment and releases its siblings.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmRequest) (resp *ConfirmResponse, err error) {
	started := o.now()
	ctx, span := bookingTracer.Start(ctx, "booking.confirm")
	defer func() {
		status := ""
		if resp != nil {
			status = resp.Status
		}
		o.finishStatus(span, "confirm", started, status, err)
	}()

	holdID, slotID := strings.TrimSpace(req.HoldID), strings.TrimSpace(req.SlotID)
	if holdID == "" || slotID == "" {
		return nil, &ValidationError{Field: "hold_id", Message: "hold_id and slot_id are required"}
	}
	span.SetAttributes(attribute.String("booking.hold_id", holdID), attribute.String("booking.slot_id", slotID))

	var (
		unlock    func()
		confirmed holds.Hold
		eventID   string
		released  int
	)
	defer func() {
		if unlock != nil {
			unlock()
		}
	}()

	err = o.store.WithTx(ctx, func(ctx context.Context, ledger holds.Ledger) error {
		hold, err := ledger.Get(ctx, holdID)
		if err != nil {
			if errors.Is(err, holds.ErrHoldNotFound) {
				return &NotFoundError{HoldID: holdID}
			}
			return &UpstreamError{Op: "load hold", Err: err}
		}
		if hold.SlotID != slotID {
			return &NotFoundError{HoldID: holdID, SlotMismatch: true}
		}

		if hold.GroupID != "" {
			span.SetAttributes(attribute.String("booking.group_id", hold.GroupID))
			unlock, err = o.locker.Lock(ctx, hold.GroupID)
			if err != nil {
				if errors.Is(err, ErrGroupBusy) {
					return &ConflictError{HoldID: holdID, GroupID: hold.GroupID}
				}
				return &UpstreamError{Op: "lock group", Err: err}
			}
		}

		won, err := ledger.ConfirmIfGroupOpen(ctx, holdID)
		if err != nil {
			if errors.Is(err, holds.ErrHoldNotFound) {
				return &NotFoundError{HoldID: holdID}
			}
			return &UpstreamError{Op: "confirm hold", Err: err}
		}
		if !won {
			return &ConflictError{HoldID: holdID, GroupID: hold.GroupID}
		}

		// Attendees are omitted: callers never give an email address.
		event, err := o.calendar.ConfirmEvent(ctx, holdID, nil)
		if err != nil {
			if errors.Is(err, calendar.ErrEventNotFound) {
				return &NotFoundError{HoldID: holdID}
			}
			return &UpstreamError{Op: "confirm event", Err: err}
		}
		if event == nil || event.ID == "" {
			return &ValidationError{Message: "unable to confirm appointment: missing event id"}
		}
		eventID = event.ID

		previous := strings.TrimSpace(req.PreviousAppointmentID)
		if previous == "" {
			previous = hold.PreviousAppointmentID
		}
		if previous != "" {
			if err := o.calendar.CancelEvent(ctx, previous); err != nil {
				o.metrics.ObserveCleanupFailure("previous_appointment")
				o.logger.Warn("booking: failed to cancel previous appointment", "appointment_id", previous, "error", err)
			}
		}

		if hold.GroupID != "" {
			siblings, err := ledger.ListByGroup(ctx, hold.GroupID)
			if err != nil {
				return &UpstreamError{Op: "list group", Err: err}
			}
			for _, sibling := range siblings {
				if sibling.HoldID == hold.HoldID {
					continue
				}
				if err := o.calendar.CancelEvent(ctx, sibling.EventID); err != nil {
					o.metrics.ObserveCleanupFailure("sibling_cancel")
					o.logger.Warn("booking: failed to release hold", "hold_id", sibling.HoldID, "event_id", sibling.EventID, "error", err)
				}
				if err := ledger.Delete(ctx, sibling.HoldID); err != nil {
					return &UpstreamError{Op: "delete sibling hold", Err: err}
				}
				released++
			}
		}

		if name := strings.TrimSpace(req.CallerName); name != "" && o.crm != nil {
			patient, err := o.crm.UpsertPatient(ctx, name, req.CallerDOB, req.CallerPhone)
			if err != nil {
				o.metrics.ObserveCleanupFailure("crm_upsert")
				o.logger.Warn("booking: failed to upsert patient", "hold_id", holdID, "error", err)
			} else {
				o.logger.Info("booking: upserted patient", "patient_id", patient.ID)
			}
		}

		confirmed = *hold
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.metrics.ObserveHoldsReleased("sibling", released)
	o.logger.Info("booking: appointment confirmed", "appointment_id", eventID, "hold_id", holdID, "released", released)
	o.publish(ctx, events.TypeAppointmentConfirmed, events.AppointmentConfirmedV1{
		AppointmentID:         eventID,
		HoldID:                confirmed.HoldID,
		GroupID:               confirmed.GroupID,
		SlotID:                confirmed.SlotID,
		Start:                 confirmed.Start,
		End:                   confirmed.End,
		PreviousAppointmentID: confirmed.PreviousAppointmentID,
		CallerName:            req.CallerName,
		CallerPhone:           req.CallerPhone,
	})
	return &ConfirmResponse{AppointmentID: eventID, Status: StatusConfirmed}, nil
}

// Preview lists the slots Book would offer for dateRange without reserving them.
func (o *Orchestrator) Preview(ctx context.Context, dateRange string) ([]availability.Slot, error) {
	start, end := o.window(dateRange)
	slots, err := o.calendar.FindSlots(ctx, start, end, o.opts.Slots)
	if err != nil {
		return nil, &UpstreamError{Op: "find slots", Err: err}
	}
	return slots, nil
}

// window resolves the request's date range and clamps it.
func (o *Orchestrator) window(dateRange string) (time.Time, time.Time) {
	now := o.now().In(o.opts.Location)
	var startPtr, endPtr *time.Time
	if start, end, ok := o.resolver.Resolve(dateRange, o.opts.Location, now); ok {
		startPtr, endPtr = &start, &end
	}
	return availability.ResolveWindow(now, startPtr, endPtr, o.opts.Location, o.opts.SearchSpan)
}

// releaseOrphans cancels calendar events whose ledger rows were rolled back.
func (o *Orchestrator) releaseOrphans(ctx context.Context, groupID string, eventIDs []string) {
	for _, id := range eventIDs {
		if err := o.calendar.CancelEvent(ctx, id); err != nil {
			o.metrics.ObserveCleanupFailure("orphan_event")
			o.logger.Warn("booking: failed to cancel orphaned hold event", "group_id", groupID, "event_id", id, "error", err)
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, payload any) {
	if err := o.publisher.Publish(ctx, eventType, payload); err != nil {
		o.logger.Warn("booking: failed to publish event", "type", eventType, "error", err)
	}
}

func (o *Orchestrator) finish(span trace.Span, action ActionType, started time.Time, resp *ManageResponse, err error) {
	status := ""
	if resp != nil {
		status = resp.Status
	}
	o.finishStatus(span, string(action), started, status, err)
}

func (o *Orchestrator) finishStatus(span trace.Span, action string, started time.Time, status string, err error) {
	if err != nil {
		status = errorStatus(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("booking: operation failed", "action", action, "error", err)
	}
	o.metrics.ObserveOperation(action, status, o.now().Sub(started).Seconds())
	span.End()
}

func errorStatus(err error) string {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		conflict   *ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return "invalid"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &conflict):
		return "conflict"
	default:
		return "error"
	}
}

func newGroupID() string {
	return "group_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func holdSummary(req ManageRequest) string {
	name := strings.TrimSpace(req.CallerName)
	if name == "" {
		name = "Patient"
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "Appointment"
	}
	return fmt.Sprintf("Hold: %s - %s", name, reason)
}

func holdDescription(req ManageRequest) string {
	var lines []string
	add := func(label, value string) {
		if v := strings.TrimSpace(value); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Phone", req.CallerPhone)
	add("DOB", req.CallerDOB)
	add("Reason", req.Reason)
	add("Provider", req.Provider)
	add("Location", req.Location)
	return strings.Join(lines, "\n")
}
