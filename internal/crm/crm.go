// Package crm keeps the patient directory and the staff ticket queue.
package crm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrPatientNotFound is returned when no patient matches a lookup.
	ErrPatientNotFound = errors.New("crm: patient not found")

	// ErrInvalidInput is returned for requests missing required fields.
	ErrInvalidInput = errors.New("crm: invalid input")
)

// DefaultPriority is used for tickets created without one.
const DefaultPriority = "normal"

// Patient is a caller known to the practice. DOB and Phone may be empty.
type Patient struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	DOB   string `json:"dob,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Ticket is a message left for staff.
type Ticket struct {
	ID       int64  `json:"ticket_id"`
	Topic    string `json:"topic"`
	Summary  string `json:"summary"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee,omitempty"`
}

// PatientQuery identifies a patient. Phone wins over name+dob, which wins
// over name alone.
type PatientQuery struct {
	Name  string
	DOB   string
	Phone string
}

type lookupMode int

const (
	lookupNone lookupMode = iota
	lookupPhone
	lookupNameDOB
	lookupName
)

func (q PatientQuery) normalized() PatientQuery {
	return PatientQuery{
		Name:  strings.TrimSpace(q.Name),
		DOB:   strings.TrimSpace(q.DOB),
		Phone: strings.TrimSpace(q.Phone),
	}
}

func (q PatientQuery) mode() lookupMode {
	switch {
	case q.Phone != "":
		return lookupPhone
	case q.Name != "" && q.DOB != "":
		return lookupNameDOB
	case q.Name != "":
		return lookupName
	default:
		return lookupNone
	}
}

// TicketInput is a new ticket. Priority defaults to DefaultPriority.
type TicketInput struct {
	Topic    string
	Summary  string
	Priority string
	Assignee string
}

// Validate checks required fields and applies defaults.
func (in *TicketInput) Validate() error {
	in.Topic = strings.TrimSpace(in.Topic)
	in.Summary = strings.TrimSpace(in.Summary)
	if in.Topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if in.Summary == "" {
		return fmt.Errorf("%w: summary is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Priority) == "" {
		in.Priority = DefaultPriority
	}
	return nil
}

// Gateway is the CRM collaborator.
type Gateway interface {
	FindPatient(ctx context.Context, q PatientQuery) (*Patient, error)

	// UpsertPatient returns the matching patient, filling in a missing DOB or
	// phone, or creates a new one.
	UpsertPatient(ctx context.Context, name, dob, phone string) (*Patient, error)

	CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error)
}

// mergeMissing copies dob/phone onto p where p has none. Reports whether p changed.
func mergeMissing(p *Patient, dob, phone string) bool {
	changed := false
	if dob != "" && p.DOB == "" {
		p.DOB = dob
		changed = true
	}
	if phone != "" && p.Phone == "" {
		p.Phone = phone
		changed = true
	}
	return changed
}
