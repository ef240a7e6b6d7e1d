package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	"github.com/wolfman30/receptionist-scheduler/internal/crm"
	"github.com/wolfman30/receptionist-scheduler/internal/observability/metrics"
	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

const maxBodyBytes = 1 << 20

// Scheduler is the booking surface the handlers drive.
type Scheduler interface {
	Manage(ctx context.Context, req booking.ManageRequest) (*booking.ManageResponse, error)
	Confirm(ctx context.Context, req booking.ConfirmRequest) (*booking.ConfirmResponse, error)
}

// Handler serves the tool webhook and the direct appointment endpoints.
type Handler struct {
	scheduler Scheduler
	crm       crm.Gateway
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// NewHandler creates a tool handler. metrics may be nil.
func NewHandler(scheduler Scheduler, crmGateway crm.Gateway, m *metrics.BookingMetrics, logger *logging.Logger) *Handler {
	if scheduler == nil {
		panic("tools: scheduler cannot be nil")
	}
	if crmGateway == nil {
		panic("tools: crm gateway cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scheduler: scheduler, crm: crmGateway, metrics: m, logger: logger}
}

// LookupPatientResponse is all-null when no patient matches.
type LookupPatientResponse struct {
	ID    *int64  `json:"id"`
	Name  *string `json:"name"`
	DOB   *string `json:"dob"`
	Phone *string `json:"phone"`
}

// SendMessageResponse acknowledges a ticket.
type SendMessageResponse struct {
	TicketID int64  `json:"ticket_id"`
	Status   string `json:"status"`
}

type lookupPatientArgs struct {
	CallerName  string `json:"caller_name"`
	CallerDOB   string `json:"caller_dob"`
	CallerPhone string `json:"caller_phone"`
}

type sendMessageArgs struct {
	Topic    string `json:"topic"`
	Summary  string `json:"summary"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee"`
}

// malformedError marks arguments that do not fit the tool's schema.
type malformedError struct{ err error }

func (e *malformedError) Error() string { return "invalid arguments: " + e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

// unknownToolError is reported for tool names with no handler.
type unknownToolError struct{ name string }

func (e *unknownToolError) Error() string { return "Unknown tool " + e.name }

// RetellTools handles POST /retell/tools.
func (h *Handler) RetellTools(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	call, ok := Normalize(body)
	if !ok {
		h.logger.Warn("unrecognized tool payload", "keys", keysOf(body))
		writeError(w, http.StatusUnprocessableEntity, "Unrecognized Retell payload; missing tool_name/arguments")
		return
	}

	result, err := h.dispatch(r.Context(), call)
	if err != nil {
		h.observe(call.Tool, err)
		status := statusFor(err, true)
		h.logFailure(call.Tool, status, err)
		writeError(w, status, err.Error())
		return
	}
	h.observe(call.Tool, nil)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) dispatch(ctx context.Context, call Call) (any, error) {
	switch call.Tool {
	case ToolManageAppointment:
		var req booking.ManageRequest
		if err := decodeArgs(call.Arguments, &req); err != nil {
			return nil, err
		}
		if strings.TrimSpace(req.ActionType) == "" {
			req.ActionType = string(booking.ActionBook)
		}
		return h.manage(ctx, req)

	case ToolConfirmBooking:
		var req booking.ConfirmRequest
		if err := decodeArgs(call.Arguments, &req); err != nil {
			return nil, err
		}
		return h.confirm(ctx, req)

	case ToolLookupPatient:
		var args lookupPatientArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return nil, err
		}
		return h.lookupPatient(ctx, args)

	case ToolSendMessage:
		var args sendMessageArgs
		if err := decodeArgs(call.Arguments, &args); err != nil {
			return nil, err
		}
		ticket, err := h.crm.CreateTicket(ctx, crm.TicketInput{
			Topic:    args.Topic,
			Summary:  args.Summary,
			Priority: args.Priority,
			Assignee: args.Assignee,
		})
		if err != nil {
			return nil, err
		}
		return SendMessageResponse{TicketID: ticket.ID, Status: "queued"}, nil

	case ToolCancelOrReschedule:
		var req booking.ManageRequest
		if err := decodeArgs(call.Arguments, &req); err != nil {
			return nil, err
		}
		if action, err := booking.ParseActionType(req.ActionType); err != nil || action != booking.ActionReschedule {
			req.ActionType = string(booking.ActionCancel)
		}
		return h.manage(ctx, req)

	case ToolRouteLive:
		return map[string]string{"status": "transferring"}, nil

	default:
		return nil, &unknownToolError{name: call.Tool}
	}
}

func (h *Handler) manage(ctx context.Context, req booking.ManageRequest) (*booking.ManageResponse, error) {
	req.CallerPhone = NormalizePhone(req.CallerPhone)
	return h.scheduler.Manage(ctx, req)
}

func (h *Handler) confirm(ctx context.Context, req booking.ConfirmRequest) (*booking.ConfirmResponse, error) {
	req.CallerPhone = NormalizePhone(req.CallerPhone)
	return h.scheduler.Confirm(ctx, req)
}

func (h *Handler) lookupPatient(ctx context.Context, args lookupPatientArgs) (*LookupPatientResponse, error) {
	patient, err := h.crm.FindPatient(ctx, crm.PatientQuery{
		Name:  args.CallerName,
		DOB:   args.CallerDOB,
		Phone: NormalizePhone(args.CallerPhone),
	})
	if errors.Is(err, crm.ErrPatientNotFound) {
		return &LookupPatientResponse{}, nil
	}
	if err != nil {
		return nil, err
	}
	resp := &LookupPatientResponse{ID: &patient.ID, Name: &patient.Name}
	if patient.DOB != "" {
		resp.DOB = &patient.DOB
	}
	if patient.Phone != "" {
		resp.Phone = &patient.Phone
	}
	return resp, nil
}

// ManageAppointment handles POST /appointments/manage.
func (h *Handler) ManageAppointment(w http.ResponseWriter, r *http.Request) {
	var req booking.ManageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	resp, err := h.manage(r.Context(), req)
	h.observe(ToolManageAppointment, err)
	if err != nil {
		status := statusFor(err, false)
		h.logFailure(ToolManageAppointment, status, err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConfirmAppointment handles POST /appointments/confirm.
func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	var req booking.ConfirmRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	resp, err := h.confirm(r.Context(), req)
	h.observe(ToolConfirmBooking, err)
	if err != nil {
		status := statusFor(err, false)
		h.logFailure(ToolConfirmBooking, status, err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) observe(tool string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.metrics.ObserveToolCall(tool, status)
}

func (h *Handler) logFailure(tool string, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("tool call failed", "tool", tool, "status", status, "error", err)
		return
	}
	h.logger.Warn("tool call rejected", "tool", tool, "status", status, "error", err)
}

// statusFor maps an error to an HTTP status. On the tool route a missing hold
// is a caller mistake and reported as 400.
func statusFor(err error, toolRoute bool) int {
	var (
		validation *booking.ValidationError
		notFound   *booking.NotFoundError
		conflict   *booking.ConflictError
		upstream   *booking.UpstreamError
		malformed  *malformedError
		unknown    *unknownToolError
	)
	switch {
	case errors.As(err, &malformed), errors.Is(err, crm.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.As(err, &validation), errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		if toolRoute {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeArgs round-trips loosely typed arguments through JSON into dst.
func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return &malformedError{err: err}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &malformedError{err: err}
	}
	return nil
}

func keysOf(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}
