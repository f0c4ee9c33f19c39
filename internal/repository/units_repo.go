package repository

import (
	"context"

	"quarters-data/internal/domain"
)

// UnitsRepository owns the living-unit register. Status and the occupant
// snapshot are never mutated through UpdateUnit; only the allocation
// workflow, transfer, deallocation and import change occupancy, and they do
// it inside their own transactions.
type UnitsRepository interface {
	ListUnits(ctx context.Context, filters UnitFilters, page, size int) ([]*domain.LivingUnit, int, error)
	GetUnit(ctx context.Context, unitID string) (*domain.LivingUnit, error)
	CreateUnit(ctx context.Context, unit *domain.LivingUnit) (string, error)

	// UpdateUnit edits descriptive attributes (quarter, rooms, type...).
	UpdateUnit(ctx context.Context, unitID string, unit *domain.LivingUnit) error

	// FindUnitByAddress matches {quarter, location, block, room}
	// case-insensitively. Returns NotFoundError when absent.
	FindUnitByAddress(ctx context.Context, quarter, location, block, room string) (*domain.LivingUnit, error)

	// FindUnitTemplate returns any unit sharing quarter+location, used to
	// copy attributes when the import reconciler synthesizes a missing unit.
	FindUnitTemplate(ctx context.Context, quarter, location string) (*domain.LivingUnit, error)
}

// UnitFilters narrows ListUnits.
type UnitFilters struct {
	QuarterName string
	Location    string
	Category    string
	Status      string
	Search      string // matches quarter_name, block_name, flat_house_room_name
}
