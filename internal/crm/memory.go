package crm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process Gateway.
type MemoryStore struct {
	mu       sync.Mutex
	patients []Patient
	tickets  []Ticket
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) find(q PatientQuery) int {
	mode := q.mode()
	for i, p := range m.patients {
		switch mode {
		case lookupPhone:
			if p.Phone == q.Phone {
				return i
			}
		case lookupNameDOB:
			if p.Name == q.Name && p.DOB == q.DOB {
				return i
			}
		case lookupName:
			if p.Name == q.Name {
				return i
			}
		}
	}
	return -1
}

func (m *MemoryStore) FindPatient(_ context.Context, q PatientQuery) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(q.normalized())
	if i < 0 {
		return nil, ErrPatientNotFound
	}
	p := m.patients[i]
	return &p, nil
}

func (m *MemoryStore) UpsertPatient(_ context.Context, name, dob, phone string) (*Patient, error) {
	q := PatientQuery{Name: name, DOB: dob, Phone: phone}.normalized()
	if q.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(q); i >= 0 {
		mergeMissing(&m.patients[i], q.DOB, q.Phone)
		p := m.patients[i]
		return &p, nil
	}
	p := Patient{ID: int64(len(m.patients) + 1), Name: q.Name, DOB: q.DOB, Phone: q.Phone}
	m.patients = append(m.patients, p)
	return &p, nil
}

func (m *MemoryStore) CreateTicket(_ context.Context, in TicketInput) (*Ticket, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Ticket{ID: int64(len(m.tickets) + 1), Topic: in.Topic, Summary: in.Summary, Priority: in.Priority, Assignee: strings.TrimSpace(in.Assignee)}
	m.tickets = append(m.tickets, t)
	return &t, nil
}

// Tickets returns every stored ticket.
func (m *MemoryStore) Tickets() []Ticket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Ticket(nil), m.tickets...)
}
