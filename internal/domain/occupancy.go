package domain

import (
	"time"
)

// UnitOccupant 对应 unit_occupants 表。Exactly one row with IsCurrent=true
// per occupied unit; rows are never deleted, only flipped off.
type UnitOccupant struct {
	OccupantID string    `db:"occupant_id"`
	UnitID     string    `db:"unit_id"`
	QueueID    string    `db:"queue_id"` // traceability back to the queue-originated allocation
	FullName   string    `db:"full_name"`
	Rank       string    `db:"rank"`
	SvcNo      string    `db:"svc_no"`
	IsCurrent  bool      `db:"is_current"`
	CreatedAt  time.Time `db:"created_at"`
}

// UnitHistoryRecord 对应 unit_history 表：an occupancy span. EndDate stays
// null while the span is open; exactly one open span per occupied unit.
type UnitHistoryRecord struct {
	HistoryID        string     `db:"history_id"`
	UnitID           string     `db:"unit_id"`
	OccupantName     string     `db:"occupant_name"`
	OccupantRank     string     `db:"occupant_rank"`
	SvcNo            string     `db:"svc_no"`
	StartDate        time.Time  `db:"start_date"`
	EndDate          *time.Time `db:"end_date"`
	DurationDays     int        `db:"duration_days"`
	ReasonForLeaving string     `db:"reason_for_leaving"`
}

// DurationDays is the whole-day span length used when closing history and
// archiving past allocations.
func DurationDays(start, end time.Time) int {
	d := int(end.Sub(start).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
