package domain

import (
	"time"
)

// Personnel categories. A queue entry can only be proposed into a unit of the
// same category.
const (
	CategoryOfficer = "Officer"
	CategoryNCO     = "NCO"
)

// QueueEntry 对应 queue_entries 表：a person waiting for a living unit,
// ranked by Sequence. Sequence values are dense [1..N]; 1 is next to be
// housed.
type QueueEntry struct {
	QueueID              string      `db:"queue_id"`
	SvcNo                string      `db:"svc_no"` // unique service number
	FullName             string      `db:"full_name"`
	Category             string      `db:"category"` // Officer | NCO
	Rank                 string      `db:"rank"`
	MaritalStatus        string      `db:"marital_status"`
	CurrentUnit          string      `db:"current_unit"` // posting at time of entry
	Appointment          string      `db:"appointment"`
	AdultDependents      int         `db:"adult_dependents"`
	ChildDependents      int         `db:"child_dependents"`
	Sequence             int         `db:"sequence"`
	HasAllocationRequest bool        `db:"has_allocation_request"`
	DateAdded            time.Time   `db:"date_added"`
	Dependents           []Dependent `db:"-"`
}

// Dependent 对应 queue_dependents 表（cascade-deleted with the entry）.
type Dependent struct {
	DependentID string `db:"dependent_id"`
	QueueID     string `db:"queue_id"`
	Name        string `db:"name"`
	Gender      string `db:"gender"`
	Age         int    `db:"age"`
	Slot        int    `db:"slot"` // positional slot from import (1..6)
}

// AdultAge is the cutoff used when splitting imported dependents into
// adult vs child counts.
const AdultAge = 18

// SplitDependents derives the adult/child counts from a dependent list.
func SplitDependents(deps []Dependent) (adults, children int) {
	for _, d := range deps {
		if d.Age >= AdultAge {
			adults++
		} else {
			children++
		}
	}
	return adults, children
}
