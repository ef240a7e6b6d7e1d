package booking

import (
	"strings"
	"time"
)

// ActionType selects a Manage workflow.
type ActionType string

const (
	ActionBook       ActionType = "book"
	ActionReschedule ActionType = "reschedule"
	ActionCancel     ActionType = "cancel"
)

// ParseActionType normalises case and whitespace and rejects unknown actions.
func ParseActionType(raw string) (ActionType, error) {
	switch a := ActionType(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionBook, ActionReschedule, ActionCancel:
		return a, nil
	case "":
		return "", &ValidationError{Field: "action_type", Message: "action_type is required"}
	default:
		return "", &ValidationError{Field: "action_type", Message: "action_type '" + raw + "' is not supported"}
	}
}

// Response statuses.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusReschedulePending   = "reschedule_pending"
	StatusNoAvailability      = "no_availability"
	StatusCanceled            = "canceled"
	StatusConfirmed           = "confirmed"
)

// ManageRequest is a book, reschedule or cancel request.
type ManageRequest struct {
	ActionType            string `json:"action_type"`
	CallerName            string `json:"caller_name,omitempty"`
	CallerDOB             string `json:"caller_dob,omitempty"`
	CallerPhone           string `json:"caller_phone,omitempty"`
	DateRange             string `json:"date_range,omitempty"`
	Reason                string `json:"reason,omitempty"`
	PreviousAppointmentID string `json:"previous_appointment_id,omitempty"`
	Provider              string `json:"provider,omitempty"`
	Location              string `json:"location,omitempty"`
	AppointmentID         string `json:"appointment_id,omitempty"`
	HoldID                string `json:"hold_id,omitempty"`
	SlotID                string `json:"slot_id,omitempty"`
}

// AppointmentOption is one proposed slot and the hold reserving it.
type AppointmentOption struct {
	SlotID  string    `json:"slot_id"`
	HoldID  string    `json:"hold_id,omitempty"`
	Display string    `json:"display"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// ManageResponse is returned by Manage. Options is nil for cancel and empty
// for no availability.
type ManageResponse struct {
	Options       []AppointmentOption `json:"options"`
	HoldID        string              `json:"hold_id,omitempty"`
	GroupID       string              `json:"group_id,omitempty"`
	ExpiresInSec  int                 `json:"expires_in_sec,omitempty"`
	Status        string              `json:"status"`
	AppointmentID string              `json:"appointment_id,omitempty"`
	SlotID        string              `json:"slot_id,omitempty"`
}

// ConfirmRequest selects one hold of a group.
type ConfirmRequest struct {
	HoldID                string `json:"hold_id"`
	SlotID                string `json:"slot_id"`
	CallerName            string `json:"caller_name,omitempty"`
	CallerPhone           string `json:"caller_phone,omitempty"`
	CallerDOB             string `json:"caller_dob,omitempty"`
	Reason                string `json:"reason,omitempty"`
	PreviousAppointmentID string `json:"previous_appointment_id,omitempty"`
}

// ConfirmResponse carries the durable appointment id.
type ConfirmResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}
