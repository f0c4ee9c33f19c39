package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Allocation request statuses.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRefused  = "refused"
)

// Letter id segments: ORG/CODE/REGION/<year>/<NNNN>/SUFFIX. The numeric part
// comes from the per-year letter_sequences counter, bumped inside the same
// transaction that inserts the request.
const (
	LetterOrg    = "DHQ"
	LetterCode   = "GAR"
	LetterRegion = "ABJ"
	LetterSuffix = "ACCN"
)

// FormatLetterID renders the official reference code for an allocation letter.
func FormatLetterID(year, seq int) string {
	return fmt.Sprintf("%s/%s/%s/%d/%04d/%s", LetterOrg, LetterCode, LetterRegion, year, seq, LetterSuffix)
}

// AllocationRequest 对应 allocation_requests 表：a proposed assignment of a
// queue entry to a living unit, pending admin decision.
//
// PersonnelData / UnitData are frozen at creation time so later edits to the
// source rows never retroactively change the request.
type AllocationRequest struct {
	RequestID     string          `db:"request_id"`
	PersonnelID   string          `db:"personnel_id"`
	UnitID        string          `db:"unit_id"`
	QueueID       string          `db:"queue_id"`
	LetterID      string          `db:"letter_id"`
	PersonnelData json.RawMessage `db:"personnel_data"`
	UnitData      json.RawMessage `db:"unit_data"`
	Status        string          `db:"status"`
	ApprovedBy    string          `db:"approved_by"`
	ApprovedAt    *time.Time      `db:"approved_at"`
	RefusalReason string          `db:"refusal_reason"`
	CreatedAt     time.Time       `db:"created_at"`
}

// FrozenPersonnel is the personnel snapshot stored on a request. Refusal
// re-materializes a queue entry from it when the original row is gone.
type FrozenPersonnel struct {
	QueueID         string `json:"queueId"`
	SvcNo           string `json:"svcNo"`
	FullName        string `json:"fullName"`
	Category        string `json:"category"`
	Rank            string `json:"rank"`
	MaritalStatus   string `json:"maritalStatus"`
	CurrentUnit     string `json:"currentUnit"`
	Appointment     string `json:"appointment"`
	AdultDependents int    `json:"adultDependents"`
	ChildDependents int    `json:"childDependents"`
}

// FrozenUnit is the unit snapshot stored on a request.
type FrozenUnit struct {
	UnitID            string `json:"unitId"`
	QuarterName       string `json:"quarterName"`
	Location          string `json:"location"`
	Category          string `json:"category"`
	AccommodationType string `json:"accommodationType"`
	BlockName         string `json:"blockName"`
	FlatHouseRoomName string `json:"flatHouseRoomName"`
}

// FreezePersonnel captures the queue entry fields carried on the request.
func FreezePersonnel(e *QueueEntry) FrozenPersonnel {
	return FrozenPersonnel{
		QueueID:         e.QueueID,
		SvcNo:           e.SvcNo,
		FullName:        e.FullName,
		Category:        e.Category,
		Rank:            e.Rank,
		MaritalStatus:   e.MaritalStatus,
		CurrentUnit:     e.CurrentUnit,
		Appointment:     e.Appointment,
		AdultDependents: e.AdultDependents,
		ChildDependents: e.ChildDependents,
	}
}

// FreezeUnit captures the unit fields carried on the request.
func FreezeUnit(u *LivingUnit) FrozenUnit {
	return FrozenUnit{
		UnitID:            u.UnitID,
		QuarterName:       u.QuarterName,
		Location:          u.Location,
		Category:          u.Category,
		AccommodationType: u.AccommodationType,
		BlockName:         u.BlockName,
		FlatHouseRoomName: u.FlatHouseRoomName,
	}
}
