package domain

import (
	"encoding/json"
	"time"
)

// Audit actions recorded by the core.
const (
	AuditQueueCreate       = "queue.create"
	AuditQueueRemove       = "queue.remove"
	AuditAllocationCreate  = "allocation.create"
	AuditAllocationApprove = "allocation.approve"
	AuditAllocationRefuse  = "allocation.refuse"
	AuditUnitCreate        = "unit.create"
	AuditUnitUpdate        = "unit.update"
	AuditUnitTransfer      = "unit.transfer"
	AuditUnitDeallocate    = "unit.deallocate"
	AuditImport            = "import.batch"
)

// AuditEntry 对应 audit_log 表。Append-only; the core never updates or
// deletes rows. Writes are best-effort after the business transaction
// commits, so the ledger may lag or miss under failure.
type AuditEntry struct {
	AuditID    string          `db:"audit_id"`
	UserID     string          `db:"user_id"`
	Action     string          `db:"action"`
	EntityType string          `db:"entity_type"`
	EntityID   string          `db:"entity_id"`
	OldData    json.RawMessage `db:"old_data"`
	NewData    json.RawMessage `db:"new_data"`
	IPAddress  string          `db:"ip_address"`
	UserAgent  string          `db:"user_agent"`
	CreatedAt  time.Time       `db:"created_at"`
}

// Actor is the pre-authenticated caller identity handed to every operation.
// The core performs no permission evaluation of its own.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}
