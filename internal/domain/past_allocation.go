package domain

import (
	"encoding/json"
	"time"
)

// PastAllocation 对应 past_allocations 表：archival record created whenever
// an occupancy ends (displacement on approval, transfer, or deallocation).
type PastAllocation struct {
	PastID              string          `db:"past_id"`
	PersonnelID         string          `db:"personnel_id"`
	QueueID             string          `db:"queue_id"`
	UnitID              string          `db:"unit_id"`
	LetterID            string          `db:"letter_id"`
	PersonnelData       json.RawMessage `db:"personnel_data"`
	UnitData            json.RawMessage `db:"unit_data"`
	AllocationStartDate time.Time       `db:"allocation_start_date"`
	AllocationEndDate   time.Time       `db:"allocation_end_date"`
	DurationDays        int             `db:"duration_days"`
	ReasonForLeaving    string          `db:"reason_for_leaving"`
	DeallocationDate    time.Time       `db:"deallocation_date"`
}
