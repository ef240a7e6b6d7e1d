package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

// SQLStore implements Gateway on the patients and tickets tables.
type SQLStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLStore wraps a database/sql handle opened with the postgres driver.
func NewSQLStore(db *sql.DB, logger *logging.Logger) *SQLStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &SQLStore{db: db, logger: logger}
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const patientColumns = `id, name, COALESCE(dob, ''), COALESCE(phone, '')`

func findPatient(ctx context.Context, q queryer, query PatientQuery) (*Patient, error) {
	var (
		stmt string
		args []any
	)
	switch query.mode() {
	case lookupPhone:
		stmt = `SELECT ` + patientColumns + ` FROM patients WHERE phone = $1 ORDER BY id LIMIT 1`
		args = []any{query.Phone}
	case lookupNameDOB:
		stmt = `SELECT ` + patientColumns + ` FROM patients WHERE name = $1 AND dob = $2 ORDER BY id LIMIT 1`
		args = []any{query.Name, query.DOB}
	case lookupName:
		stmt = `SELECT ` + patientColumns + ` FROM patients WHERE name = $1 ORDER BY id LIMIT 1`
		args = []any{query.Name}
	default:
		return nil, ErrPatientNotFound
	}

	var p Patient
	if err := q.QueryRowContext(ctx, stmt, args...).Scan(&p.ID, &p.Name, &p.DOB, &p.Phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("crm: find patient: %w", err)
	}
	return &p, nil
}

// FindPatient looks a patient up by phone, then name and DOB, then name.
func (s *SQLStore) FindPatient(ctx context.Context, q PatientQuery) (*Patient, error) {
	q = q.normalized()
	s.logger.Debug("crm: finding patient", "mode", int(q.mode()))
	return findPatient(ctx, s.db, q)
}

// UpsertPatient runs lookup and write in one transaction.
func (s *SQLStore) UpsertPatient(ctx context.Context, name, dob, phone string) (*Patient, error) {
	q := PatientQuery{Name: name, DOB: dob, Phone: phone}.normalized()
	if q.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("crm: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := findPatient(ctx, tx, q)
	switch {
	case err == nil:
		if mergeMissing(existing, q.DOB, q.Phone) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE patients SET dob = NULLIF($2, ''), phone = NULLIF($3, ''), updated_at = now() WHERE id = $1`,
				existing.ID, existing.DOB, existing.Phone,
			); err != nil {
				return nil, fmt.Errorf("crm: update patient: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("crm: commit: %w", err)
		}
		s.logger.Info("crm: updated existing patient", "patient_id", existing.ID)
		return existing, nil
	case !errors.Is(err, ErrPatientNotFound):
		return nil, err
	}

	p := &Patient{Name: q.Name, DOB: q.DOB, Phone: q.Phone}
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO patients (name, dob, phone) VALUES ($1, NULLIF($2, ''), NULLIF($3, '')) RETURNING id`,
		p.Name, p.DOB, p.Phone,
	).Scan(&p.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("crm: patient with phone %s already exists: %w", p.Phone, err)
		}
		return nil, fmt.Errorf("crm: insert patient: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("crm: commit: %w", err)
	}
	s.logger.Info("crm: created patient", "patient_id", p.ID)
	return p, nil
}

// CreateTicket stores a message for staff.
func (s *SQLStore) CreateTicket(ctx context.Context, in TicketInput) (*Ticket, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t := &Ticket{Topic: in.Topic, Summary: in.Summary, Priority: in.Priority, Assignee: strings.TrimSpace(in.Assignee)}
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO tickets (topic, summary, priority, assignee) VALUES ($1, $2, $3, NULLIF($4, '')) RETURNING id`,
		t.Topic, t.Summary, t.Priority, t.Assignee,
	).Scan(&t.ID); err != nil {
		return nil, fmt.Errorf("crm: insert ticket: %w", err)
	}
	s.logger.Info("crm: created ticket", "ticket_id", t.ID, "topic", t.Topic)
	return t, nil
}
