// Package events publishes appointment lifecycle events for downstream consumers.
package events

import "time"

// Event types.
const (
	TypeAppointmentConfirmed = "appointment.confirmed"
	TypeAppointmentCanceled  = "appointment.canceled"
	TypeHoldExpired          = "hold.expired"
)

// Envelope wraps every published payload.
type Envelope struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type AppointmentConfirmedV1 struct {
	AppointmentID         string    `json:"appointment_id"`
	HoldID                string    `json:"hold_id"`
	GroupID               string    `json:"group_id,omitempty"`
	SlotID                string    `json:"slot_id"`
	Start                 time.Time `json:"start"`
	End                   time.Time `json:"end"`
	PreviousAppointmentID string    `json:"previous_appointment_id,omitempty"`
	CallerName            string    `json:"caller_name,omitempty"`
	CallerPhone           string    `json:"caller_phone,omitempty"`
}

type AppointmentCanceledV1 struct {
	AppointmentID string `json:"appointment_id"`
}

type HoldExpiredV1 struct {
	HoldID  string `json:"hold_id"`
	GroupID string `json:"group_id,omitempty"`
	EventID string `json:"event_id"`
}
