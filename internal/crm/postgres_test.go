package crm

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/receptionist-scheduler/pkg/logging"
)

var patientCols = []string{"id", "name", "dob", "phone"}

func newSQLStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db, logging.Discard()), mock
}

func TestSQLStoreFindPatientLookupOrder(t *testing.T) {
	tests := []struct {
		name  string
		query PatientQuery
		sql   string
		args  []any
	}{
		{"phone wins", PatientQuery{Name: "Ana", DOB: "1990-01-01", Phone: "+15551234567"}, "FROM patients WHERE phone = ", []any{"+15551234567"}},
		{"name and dob", PatientQuery{Name: "Ana", DOB: "1990-01-01"}, "FROM patients WHERE name = .+ AND dob = ", []any{"Ana", "1990-01-01"}},
		{"name only", PatientQuery{Name: " Ana "}, "FROM patients WHERE name = ", []any{"Ana"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newSQLStore(t)
			args := make([]driver.Value, 0, len(tt.args))
			for _, a := range tt.args {
				args = append(args, a)
			}
			mock.ExpectQuery(tt.sql).
				WithArgs(args...).
				WillReturnRows(sqlmock.NewRows(patientCols).AddRow(7, "Ana", "1990-01-01", "+15551234567"))

			p, err := store.FindPatient(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, int64(7), p.ID)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSQLStoreFindPatientNoIdentifiers(t *testing.T) {
	store, mock := newSQLStore(t)
	_, err := store.FindPatient(context.Background(), PatientQuery{})
	assert.ErrorIs(t, err, ErrPatientNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreFindPatientMissing(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectQuery("FROM patients WHERE phone = ").
		WithArgs("+1555").
		WillReturnRows(sqlmock.NewRows(patientCols))

	_, err := store.FindPatient(context.Background(), PatientQuery{Phone: "+1555"})
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestSQLStoreUpsertFillsMissingFields(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM patients WHERE phone = ").
		WithArgs("+15551234567").
		WillReturnRows(sqlmock.NewRows(patientCols).AddRow(3, "Ana", "", "+15551234567"))
	mock.ExpectExec("UPDATE patients SET dob").
		WithArgs(int64(3), "1990-01-01", "+15551234567").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p, err := store.UpsertPatient(context.Background(), "Ana", "1990-01-01", "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "1990-01-01", p.DOB)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertKeepsExistingValues(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM patients WHERE name = ").
		WithArgs("Ana", "1990-01-01").
		WillReturnRows(sqlmock.NewRows(patientCols).AddRow(3, "Ana", "1990-01-01", "+15550000000"))
	mock.ExpectCommit()

	p, err := store.UpsertPatient(context.Background(), "Ana", "1990-01-01", "")
	require.NoError(t, err)
	assert.Equal(t, "+15550000000", p.Phone)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertCreates(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM patients WHERE name = ").
		WithArgs("Ben").
		WillReturnRows(sqlmock.NewRows(patientCols))
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs("Ben", "", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	p, err := store.UpsertPatient(context.Background(), "Ben", "", "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), p.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertDuplicatePhone(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM patients WHERE phone = ").
		WithArgs("+1555").
		WillReturnRows(sqlmock.NewRows(patientCols))
	mock.ExpectQuery("INSERT INTO patients").
		WithArgs("Ben", "", "+1555").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := store.UpsertPatient(context.Background(), "Ben", "", "+1555")
	assert.ErrorContains(t, err, "already exists")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreUpsertRequiresName(t *testing.T) {
	store, _ := newSQLStore(t)
	_, err := store.UpsertPatient(context.Background(), "  ", "", "+1555")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSQLStoreCreateTicketDefaultsPriority(t *testing.T) {
	store, mock := newSQLStore(t)
	mock.ExpectQuery("INSERT INTO tickets").
		WithArgs("billing", "Caller asked about an invoice", "normal", "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	ticket, err := store.CreateTicket(context.Background(), TicketInput{Topic: "billing", Summary: "Caller asked about an invoice"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), ticket.ID)
	assert.Equal(t, DefaultPriority, ticket.Priority)
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = store.CreateTicket(context.Background(), TicketInput{Topic: "billing"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
