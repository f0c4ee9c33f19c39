package repository

import (
	"context"

	"quarters-data/internal/domain"
)

// AuditRepository is the append-only mutation ledger. Inserts never update
// or delete existing rows.
type AuditRepository interface {
	InsertAudit(ctx context.Context, entry *domain.AuditEntry) (string, error)
	ListAudit(ctx context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error)
}

// AuditFilters narrows ListAudit.
type AuditFilters struct {
	UserID     string
	Action     string
	EntityType string
}
