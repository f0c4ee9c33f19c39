package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"quarters-data/internal/domain"
)

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

func (r *PostgresAuditRepository) InsertAudit(ctx context.Context, entry *domain.AuditEntry) (string, error) {
	var oldData, newData any
	if len(entry.OldData) > 0 {
		oldData = []byte(entry.OldData)
	}
	if len(entry.NewData) > 0 {
		newData = []byte(entry.NewData)
	}
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO audit_log (user_id, action, entity_type, entity_id, old_data, new_data, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING audit_id::text`,
		entry.UserID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		oldData,
		newData,
		entry.IPAddress,
		entry.UserAgent,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert audit entry: %w", err)
	}
	entry.AuditID = id
	return id, nil
}

func (r *PostgresAuditRepository) ListAudit(ctx context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1
	add := func(cond string, val string) {
		if val == "" {
			return
		}
		where += fmt.Sprintf(" AND "+cond, argIdx)
		args = append(args, val)
		argIdx++
	}
	add("user_id = $%d", filters.UserID)
	add("action = $%d", filters.Action)
	add("entity_type = $%d", filters.EntityType)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	q := `SELECT audit_id::text, user_id, action, entity_type, entity_id,
	             COALESCE(old_data, 'null'::jsonb), COALESCE(new_data, 'null'::jsonb),
	             ip_address, user_agent, created_at
	      FROM audit_log WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	out := []*domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		var oldData, newData []byte
		if err := rows.Scan(&e.AuditID, &e.UserID, &e.Action, &e.EntityType, &e.EntityID,
			&oldData, &newData, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.OldData = json.RawMessage(oldData)
		e.NewData = json.RawMessage(newData)
		out = append(out, &e)
	}
	return out, total, rows.Err()
}
