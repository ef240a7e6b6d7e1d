package holds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Querier is satisfied by pgx pools, connections and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of *pgxpool.Pool the store needs.
type PgxPool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists holds in the holds table.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore creates a store backed by a pgx pool.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("holds: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

// WithTx runs fn inside a single database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("holds: begin: %w", err)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(ctx, &pgLedger{q: tx}); err != nil {
		finished = true
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("holds: rollback: %w", rbErr))
		}
		return err
	}
	finished = true
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("holds: commit: %w", err)
	}
	return nil
}

// Ledger returns a ledger that autocommits each statement. Used by read-only tooling.
func (s *PostgresStore) Ledger() Ledger {
	return &pgLedger{q: s.pool}
}

type pgLedger struct {
	q Querier
}

const holdColumns = `hold_id, COALESCE(group_id, ''), slot_id, event_id, COALESCE(previous_appointment_id, ''),
		start_at, end_at, status, created_at`

func (l *pgLedger) Create(ctx context.Context, hold Hold) error {
	if err := hold.Validate(); err != nil {
		return err
	}
	if hold.Status == "" {
		hold.Status = StatusTentative
	}
	query := `
		INSERT INTO holds (hold_id, group_id, slot_id, event_id, previous_appointment_id, start_at, end_at, status)
		VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7, $8)
	`
	_, err := l.q.Exec(ctx, query,
		hold.HoldID,
		hold.GroupID,
		hold.SlotID,
		hold.EventID,
		hold.PreviousAppointmentID,
		hold.Start,
		hold.End,
		string(hold.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateHold, hold.HoldID)
		}
		return fmt.Errorf("holds: insert: %w", err)
	}
	return nil
}

func (l *pgLedger) Get(ctx context.Context, holdID string) (*Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE hold_id = $1`
	hold, err := scanHold(l.q.QueryRow(ctx, query, holdID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("holds: select: %w", err)
	}
	return hold, nil
}

func (l *pgLedger) ListByGroup(ctx context.Context, groupID string) ([]Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE group_id = $1 ORDER BY start_at`
	return l.list(ctx, "list group", query, groupID)
}

func (l *pgLedger) SetStatus(ctx context.Context, holdID string, status Status) error {
	query := `UPDATE holds SET status = $2, updated_at = now() WHERE hold_id = $1`
	if _, err := l.q.Exec(ctx, query, holdID, string(status)); err != nil {
		return fmt.Errorf("holds: set status: %w", err)
	}
	return nil
}

func (l *pgLedger) Delete(ctx context.Context, holdID string) error {
	if _, err := l.q.Exec(ctx, `DELETE FROM holds WHERE hold_id = $1`, holdID); err != nil {
		return fmt.Errorf("holds: delete: %w", err)
	}
	return nil
}

func (l *pgLedger) DeleteIfTentative(ctx context.Context, holdID string) (bool, error) {
	tag, err := l.q.Exec(ctx, `DELETE FROM holds WHERE hold_id = $1 AND status = 'tentative'`, holdID)
	if err != nil {
		return false, fmt.Errorf("holds: delete tentative: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (l *pgLedger) DeleteGroup(ctx context.Context, groupID string) error {
	if _, err := l.q.Exec(ctx, `DELETE FROM holds WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("holds: delete group: %w", err)
	}
	return nil
}

// ConfirmIfGroupOpen relies on the holds_one_confirmed_per_group partial
// unique index to reject a concurrent winner that committed after our
// NOT EXISTS check.
func (l *pgLedger) ConfirmIfGroupOpen(ctx context.Context, holdID string) (bool, error) {
	query := `
		UPDATE holds h
		SET status = 'confirmed', updated_at = now()
		WHERE h.hold_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM holds s
			WHERE s.group_id = h.group_id
			  AND s.hold_id <> h.hold_id
			  AND s.status = 'confirmed'
		  )
	`
	tag, err := l.q.Exec(ctx, query, holdID)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("holds: confirm: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := l.Get(ctx, holdID); err != nil {
		return false, err
	}
	return false, nil
}

func (l *pgLedger) ListExpired(ctx context.Context, before time.Time, limit int) ([]Hold, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + holdColumns + `
		FROM holds
		WHERE status = 'tentative' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return l.list(ctx, "list expired", query, before, limit)
}

func (l *pgLedger) list(ctx context.Context, op, query string, args ...any) ([]Hold, error) {
	rows, err := l.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("holds: %s: %w", op, err)
	}
	defer rows.Close()

	var out []Hold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, fmt.Errorf("holds: %s scan: %w", op, err)
		}
		out = append(out, *hold)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("holds: %s: %w", op, err)
	}
	return out, nil
}

func scanHold(row pgx.Row) (*Hold, error) {
	var (
		hold   Hold
		status string
	)
	if err := row.Scan(
		&hold.HoldID,
		&hold.GroupID,
		&hold.SlotID,
		&hold.EventID,
		&hold.PreviousAppointmentID,
		&hold.Start,
		&hold.End,
		&status,
		&hold.CreatedAt,
	); err != nil {
		return nil, err
	}
	hold.Status = Status(status)
	return &hold, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
