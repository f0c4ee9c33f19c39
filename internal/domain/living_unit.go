package domain

import (
	"time"
)

// Living unit statuses. Only the allocation workflow, transfer, deallocation
// and import mutate Status.
const (
	UnitVacant   = "Vacant"
	UnitOccupied = "Occupied"
	UnitNotInUse = "Not In Use"
)

// LivingUnit 对应 living_units 表：a housing unit plus a denormalized
// snapshot of its current occupant.
//
// Invariant: Status == Occupied ⇔ the occupant snapshot is fully populated;
// Status == Vacant ⇔ the snapshot is fully null.
type LivingUnit struct {
	UnitID            string `db:"unit_id"`
	QuarterName       string `db:"quarter_name"`
	Location          string `db:"location"`
	Category          string `db:"category"` // Officer | NCO
	AccommodationType string `db:"accommodation_type"`
	NoOfRooms         int    `db:"no_of_rooms"`
	Status            string `db:"status"`
	OccupancyType     string `db:"occupancy_type"`
	BoysQuarters      bool   `db:"boys_quarters"`
	BQRooms           int    `db:"bq_rooms"`
	BlockName         string `db:"block_name"`
	FlatHouseRoomName string `db:"flat_house_room_name"`

	// Occupant snapshot, valid only while Status == Occupied.
	OccupantID         string     `db:"occupant_id"`
	OccupantName       string     `db:"occupant_name"`
	OccupantRank       string     `db:"occupant_rank"`
	OccupantSvcNo      string     `db:"occupant_svc_no"`
	OccupancyStartDate *time.Time `db:"occupancy_start_date"`

	CreatedAt time.Time `db:"created_at"`
}

// OccupantSnapshot is the denormalized occupant block written onto a unit
// when it is occupied. The three occupancy rows (unit snapshot, unit_occupant,
// open unit_history span) are always written together in one transaction.
type OccupantSnapshot struct {
	QueueID  string
	FullName string
	Rank     string
	SvcNo    string
	Start    time.Time
}

// Label is the human-readable unit reference used in archive reasons and
// allocation letters, e.g. "Eagle Quarters Blk 2/Flat 5, Mogadishu Cantonment".
func (u *LivingUnit) Label() string {
	label := u.QuarterName
	if u.BlockName != "" {
		label += " Blk " + u.BlockName
	}
	if u.FlatHouseRoomName != "" {
		label += "/" + u.FlatHouseRoomName
	}
	if u.Location != "" {
		label += ", " + u.Location
	}
	return label
}

// ClearOccupant nulls the snapshot fields (vacate path).
func (u *LivingUnit) ClearOccupant() {
	u.OccupantID = ""
	u.OccupantName = ""
	u.OccupantRank = ""
	u.OccupantSvcNo = ""
	u.OccupancyStartDate = nil
}
