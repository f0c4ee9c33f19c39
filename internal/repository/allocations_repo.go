package repository

import (
	"context"
	"time"

	"quarters-data/internal/domain"
)

// AllocationsRepository owns the allocation workflow and every multi-table
// transition around it. Each mutating method runs as one transaction; the
// occupancy rows (unit snapshot, unit_occupants, unit_history) are always
// written together and never exposed partially.
type AllocationsRepository interface {
	GetRequest(ctx context.Context, requestID string) (*domain.AllocationRequest, error)
	ListRequests(ctx context.Context, status string, page, size int) ([]*domain.AllocationRequest, int, error)

	// CreateRequest inserts a pending request with a freshly generated
	// letter id (per-year counter, bumped in the same transaction) and
	// removes the originating queue entry, closing the sequence gap.
	// The request's frozen snapshots must already be populated.
	CreateRequest(ctx context.Context, req *domain.AllocationRequest) (string, error)

	// ApproveRequest marks a pending request approved and occupies the
	// target unit. When the personnel's service number already occupies a
	// different unit, that unit is vacated and archived first.
	ApproveRequest(ctx context.Context, requestID, approvedBy string) (*ApproveOutcome, error)

	// RefuseRequest deletes a pending request and re-materializes (or
	// moves) the personnel's queue entry at sequence 1.
	RefuseRequest(ctx context.Context, requestID, reason string) (*RefuseOutcome, error)

	// TransferOccupant evicts the occupant of fromUnit toward toUnit:
	// archives the span, reverts any approved request for the occupant to
	// pending against toUnit, and vacates fromUnit. toUnit is not occupied
	// here; that happens when the re-opened request is approved.
	TransferOccupant(ctx context.Context, fromUnitID, toUnitID string) (*TransferOutcome, error)

	// DeallocateUnit ends an occupancy with no destination.
	DeallocateUnit(ctx context.Context, unitID, reason string) (*DeallocateOutcome, error)

	// ImportBatch reconciles prepared rows record-by-record inside one
	// transaction. Per-record failures accumulate in the result; only a
	// store-level failure aborts the batch. progress may be nil.
	ImportBatch(ctx context.Context, records []*ImportRecord, actor string, progress func(done, total int)) (*domain.ImportResult, error)

	CurrentOccupant(ctx context.Context, unitID string) (*domain.UnitOccupant, error)
	ListUnitHistory(ctx context.Context, unitID string) ([]*domain.UnitHistoryRecord, error)
	ListPastAllocations(ctx context.Context, page, size int) ([]*domain.PastAllocation, int, error)
}

// ApproveOutcome reports what an approval changed.
type ApproveOutcome struct {
	Request         *domain.AllocationRequest
	Unit            *domain.LivingUnit
	DisplacedUnitID string // non-empty when an existing occupancy was archived first
}

// RefuseOutcome reports the queue entry the refusal put at the front.
type RefuseOutcome struct {
	Request *domain.AllocationRequest
	QueueID string
}

// TransferOutcome reports the archived span and any reverted request.
type TransferOutcome struct {
	FromUnit          *domain.LivingUnit
	ToUnit            *domain.LivingUnit
	Past              *domain.PastAllocation
	RevertedRequestID string
}

// DeallocateOutcome reports the archived span.
type DeallocateOutcome struct {
	Unit *domain.LivingUnit
	Past *domain.PastAllocation
}

// ImportRecord is one normalized row of a bulk-import batch, prepared by the
// import service (dependents expanded, category inferred, dates parsed).
type ImportRecord struct {
	Entry *domain.QueueEntry // HasAllocationRequest=true, Dependents populated

	// Target unit address.
	QuarterName       string
	Location          string
	BlockName         string
	FlatHouseRoomName string

	// Defaults for a synthesized unit.
	Category          string
	AccommodationType string
	OccupancyType     string

	Start time.Time // allocation start date
}
