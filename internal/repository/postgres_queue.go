package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"quarters-data/internal/domain"
)

// dbtx is satisfied by *sql.DB and *sql.Tx so scan/find helpers can run both
// standalone and inside workflow transactions.
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// seqShiftOffset keeps bulk sequence shifts clear of the live UNIQUE
// constraint: the affected range is first moved far above every real value,
// then renumbered into place. A single UPDATE would trip the constraint on
// the intermediate rows.
const seqShiftOffset = 1000000

type PostgresQueueRepository struct {
	db *sql.DB
}

func NewPostgresQueueRepository(db *sql.DB) *PostgresQueueRepository {
	return &PostgresQueueRepository{db: db}
}

var _ QueueRepository = (*PostgresQueueRepository)(nil)

const queueColumns = `
	queue_id::text,
	svc_no,
	full_name,
	category,
	rank,
	marital_status,
	current_unit,
	appointment,
	adult_dependents,
	child_dependents,
	sequence,
	has_allocation_request,
	date_added
`

func scanQueueEntry(row interface{ Scan(...any) error }) (*domain.QueueEntry, error) {
	var e domain.QueueEntry
	err := row.Scan(
		&e.QueueID,
		&e.SvcNo,
		&e.FullName,
		&e.Category,
		&e.Rank,
		&e.MaritalStatus,
		&e.CurrentUnit,
		&e.Appointment,
		&e.AdultDependents,
		&e.ChildDependents,
		&e.Sequence,
		&e.HasAllocationRequest,
		&e.DateAdded,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresQueueRepository) ListEntries(ctx context.Context, filters QueueFilters, page, size int) ([]*domain.QueueEntry, int, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1
	if !filters.IncludeAllocated {
		where += " AND has_allocation_request = FALSE"
	}
	if filters.Category != "" {
		where += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, filters.Category)
		argIdx++
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND (svc_no ILIKE $%d OR full_name ILIKE $%d)", argIdx, argIdx)
		args = append(args, "%"+filters.Search+"%")
		argIdx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count queue entries: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	q := `SELECT ` + queueColumns + ` FROM queue_entries WHERE ` + where +
		fmt.Sprintf(" ORDER BY sequence LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list queue entries: %w", err)
	}
	defer rows.Close()

	out := []*domain.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func (r *PostgresQueueRepository) GetEntry(ctx context.Context, queueID string) (*domain.QueueEntry, error) {
	return getQueueEntry(ctx, r.db, queueID)
}

func getQueueEntry(ctx context.Context, q dbtx, queueID string) (*domain.QueueEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE queue_id = $1`, queueID)
	e, err := scanQueueEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("queue entry not found: %s", queueID)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	deps, err := loadDependents(ctx, q, queueID)
	if err != nil {
		return nil, err
	}
	e.Dependents = deps
	return e, nil
}

func loadDependents(ctx context.Context, q dbtx, queueID string) ([]domain.Dependent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT dependent_id::text, queue_id::text, name, gender, age, slot
		 FROM queue_dependents WHERE queue_id = $1 ORDER BY slot`, queueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dependents: %w", err)
	}
	defer rows.Close()

	deps := []domain.Dependent{}
	for rows.Next() {
		var d domain.Dependent
		if err := rows.Scan(&d.DependentID, &d.QueueID, &d.Name, &d.Gender, &d.Age, &d.Slot); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func (r *PostgresQueueRepository) GetEntryBySvcNo(ctx context.Context, svcNo string) (*domain.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queue_entries WHERE svc_no = $1`, svcNo)
	e, err := scanQueueEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("queue entry not found: svc_no=%s", svcNo)
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	deps, err := loadDependents(ctx, r.db, e.QueueID)
	if err != nil {
		return nil, err
	}
	e.Dependents = deps
	return e, nil
}

func (r *PostgresQueueRepository) CreateEntry(ctx context.Context, entry *domain.QueueEntry) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := appendQueueEntryTx(ctx, tx, entry)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit queue entry: %w", err)
	}
	return id, nil
}

// appendQueueEntryTx inserts at the back of the queue (sequence N+1).
func appendQueueEntryTx(ctx context.Context, tx *sql.Tx, entry *domain.QueueEntry) (string, error) {
	var next int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(sequence), 0) + 1 FROM queue_entries`).Scan(&next); err != nil {
		return "", fmt.Errorf("failed to compute next sequence: %w", err)
	}
	return insertQueueRowTx(ctx, tx, entry, next)
}

// insertQueueEntryAtTx inserts at an explicit position, shifting everything
// at or behind the position up by one first (two-phase).
func insertQueueEntryAtTx(ctx context.Context, tx *sql.Tx, entry *domain.QueueEntry, position int) (string, error) {
	if position < 1 {
		position = 1
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence + $1 WHERE sequence >= $2`,
		seqShiftOffset, position); err != nil {
		return "", fmt.Errorf("failed to offset sequence range: %w", err)
	}
	id, err := insertQueueRowTx(ctx, tx, entry, position)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence - $1 + 1 WHERE sequence > $1`,
		seqShiftOffset); err != nil {
		return "", fmt.Errorf("failed to renumber sequence range: %w", err)
	}
	return id, nil
}

func insertQueueRowTx(ctx context.Context, tx *sql.Tx, entry *domain.QueueEntry, sequence int) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`INSERT INTO queue_entries (
			svc_no, full_name, category, rank, marital_status, current_unit,
			appointment, adult_dependents, child_dependents, sequence, has_allocation_request
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING queue_id::text`,
		entry.SvcNo,
		entry.FullName,
		entry.Category,
		entry.Rank,
		entry.MaritalStatus,
		entry.CurrentUnit,
		entry.Appointment,
		entry.AdultDependents,
		entry.ChildDependents,
		sequence,
		entry.HasAllocationRequest,
	).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "queue_entries_svc_no_key" {
			return "", domain.Conflictf("service number %s already exists", entry.SvcNo)
		}
		return "", fmt.Errorf("failed to insert queue entry: %w", err)
	}
	for _, d := range entry.Dependents {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO queue_dependents (queue_id, name, gender, age, slot)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, d.Name, d.Gender, d.Age, d.Slot); err != nil {
			return "", fmt.Errorf("failed to insert dependent: %w", err)
		}
	}
	entry.QueueID = id
	entry.Sequence = sequence
	return id, nil
}

func (r *PostgresQueueRepository) RemoveEntry(ctx context.Context, queueID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := removeQueueEntryTx(ctx, tx, queueID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue removal: %w", err)
	}
	return nil
}

// removeQueueEntryTx deletes the entry (dependents cascade) and shifts every
// entry behind it down by one (two-phase).
func removeQueueEntryTx(ctx context.Context, tx *sql.Tx, queueID string) (int, error) {
	var seq int
	err := tx.QueryRowContext(ctx,
		`SELECT sequence FROM queue_entries WHERE queue_id = $1 FOR UPDATE`, queueID).Scan(&seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, domain.NotFoundf("queue entry not found: %s", queueID)
		}
		return 0, fmt.Errorf("failed to lock queue entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE queue_id = $1`, queueID); err != nil {
		return 0, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence + $1 WHERE sequence > $2`,
		seqShiftOffset, seq); err != nil {
		return 0, fmt.Errorf("failed to offset sequence range: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence - $1 - 1 WHERE sequence > $1`,
		seqShiftOffset); err != nil {
		return 0, fmt.Errorf("failed to renumber sequence range: %w", err)
	}
	return seq, nil
}

// moveQueueEntryToFrontTx moves an existing entry to sequence 1, shifting the
// entries it overtakes up by one (two-phase).
func moveQueueEntryToFrontTx(ctx context.Context, tx *sql.Tx, queueID string) error {
	var seq int
	err := tx.QueryRowContext(ctx,
		`SELECT sequence FROM queue_entries WHERE queue_id = $1 FOR UPDATE`, queueID).Scan(&seq)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.NotFoundf("queue entry not found: %s", queueID)
		}
		return fmt.Errorf("failed to lock queue entry: %w", err)
	}
	if seq == 1 {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence + $1 WHERE sequence < $2`,
		seqShiftOffset, seq); err != nil {
		return fmt.Errorf("failed to offset sequence range: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = 1 WHERE queue_id = $1`, queueID); err != nil {
		return fmt.Errorf("failed to move queue entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE queue_entries SET sequence = sequence - $1 + 1 WHERE sequence > $1`,
		seqShiftOffset); err != nil {
		return fmt.Errorf("failed to renumber sequence range: %w", err)
	}
	return nil
}

func (r *PostgresQueueRepository) CountEntries(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return n, nil
}

func (r *PostgresQueueRepository) Sequences(ctx context.Context) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sequence FROM queue_entries ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequences: %w", err)
	}
	defer rows.Close()

	out := []int{}
	for rows.Next() {
		var s int
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresQueueRepository) CurrentUnitNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT current_unit FROM queue_entries WHERE current_unit <> '' ORDER BY current_unit`)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit names: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
