package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"quarters-data/internal/domain"
)

type PostgresUnitsRepository struct {
	db *sql.DB
}

func NewPostgresUnitsRepository(db *sql.DB) *PostgresUnitsRepository {
	return &PostgresUnitsRepository{db: db}
}

var _ UnitsRepository = (*PostgresUnitsRepository)(nil)

const unitColumns = `
	unit_id::text,
	quarter_name,
	location,
	category,
	accommodation_type,
	no_of_rooms,
	status,
	occupancy_type,
	boys_quarters,
	bq_rooms,
	block_name,
	flat_house_room_name,
	COALESCE(occupant_id::text, ''),
	COALESCE(occupant_name, ''),
	COALESCE(occupant_rank, ''),
	COALESCE(occupant_svc_no, ''),
	occupancy_start_date,
	created_at
`

func scanLivingUnit(row interface{ Scan(...any) error }) (*domain.LivingUnit, error) {
	var u domain.LivingUnit
	var start sql.NullTime
	err := row.Scan(
		&u.UnitID,
		&u.QuarterName,
		&u.Location,
		&u.Category,
		&u.AccommodationType,
		&u.NoOfRooms,
		&u.Status,
		&u.OccupancyType,
		&u.BoysQuarters,
		&u.BQRooms,
		&u.BlockName,
		&u.FlatHouseRoomName,
		&u.OccupantID,
		&u.OccupantName,
		&u.OccupantRank,
		&u.OccupantSvcNo,
		&start,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time
		u.OccupancyStartDate = &t
	}
	return &u, nil
}

func (r *PostgresUnitsRepository) ListUnits(ctx context.Context, filters UnitFilters, page, size int) ([]*domain.LivingUnit, int, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1
	add := func(cond string, val any) {
		where += fmt.Sprintf(" AND "+cond, argIdx)
		args = append(args, val)
		argIdx++
	}
	if filters.QuarterName != "" {
		add("quarter_name ILIKE $%d", filters.QuarterName)
	}
	if filters.Location != "" {
		add("location ILIKE $%d", filters.Location)
	}
	if filters.Category != "" {
		add("category = $%d", filters.Category)
	}
	if filters.Status != "" {
		add("status = $%d", filters.Status)
	}
	if filters.Search != "" {
		where += fmt.Sprintf(" AND (quarter_name ILIKE $%d OR block_name ILIKE $%d OR flat_house_room_name ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+filters.Search+"%")
		argIdx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM living_units WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count units: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	q := `SELECT ` + unitColumns + ` FROM living_units WHERE ` + where +
		fmt.Sprintf(" ORDER BY quarter_name, block_name, flat_house_room_name LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	out := []*domain.LivingUnit{}
	for rows.Next() {
		u, err := scanLivingUnit(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PostgresUnitsRepository) GetUnit(ctx context.Context, unitID string) (*domain.LivingUnit, error) {
	return getUnit(ctx, r.db, unitID, false)
}

func getUnit(ctx context.Context, q dbtx, unitID string, forUpdate bool) (*domain.LivingUnit, error) {
	query := `SELECT ` + unitColumns + ` FROM living_units WHERE unit_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	u, err := scanLivingUnit(q.QueryRowContext(ctx, query, unitID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("unit not found: %s", unitID)
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return u, nil
}

func (r *PostgresUnitsRepository) CreateUnit(ctx context.Context, unit *domain.LivingUnit) (string, error) {
	return insertUnitTx(ctx, r.db, unit)
}

func insertUnitTx(ctx context.Context, q dbtx, unit *domain.LivingUnit) (string, error) {
	status := unit.Status
	if status == "" {
		status = domain.UnitVacant
	}
	var id string
	err := q.QueryRowContext(ctx,
		`INSERT INTO living_units (
			quarter_name, location, category, accommodation_type, no_of_rooms,
			status, occupancy_type, boys_quarters, bq_rooms, block_name, flat_house_room_name
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING unit_id::text`,
		unit.QuarterName,
		unit.Location,
		unit.Category,
		unit.AccommodationType,
		unit.NoOfRooms,
		status,
		unit.OccupancyType,
		unit.BoysQuarters,
		unit.BQRooms,
		unit.BlockName,
		unit.FlatHouseRoomName,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert unit: %w", err)
	}
	unit.UnitID = id
	unit.Status = status
	return id, nil
}

func (r *PostgresUnitsRepository) UpdateUnit(ctx context.Context, unitID string, unit *domain.LivingUnit) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE living_units SET
			quarter_name = $2,
			location = $3,
			category = $4,
			accommodation_type = $5,
			no_of_rooms = $6,
			occupancy_type = $7,
			boys_quarters = $8,
			bq_rooms = $9,
			block_name = $10,
			flat_house_room_name = $11
		 WHERE unit_id = $1`,
		unitID,
		unit.QuarterName,
		unit.Location,
		unit.Category,
		unit.AccommodationType,
		unit.NoOfRooms,
		unit.OccupancyType,
		unit.BoysQuarters,
		unit.BQRooms,
		unit.BlockName,
		unit.FlatHouseRoomName,
	)
	if err != nil {
		return fmt.Errorf("failed to update unit: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.NotFoundf("unit not found: %s", unitID)
	}
	return nil
}

func (r *PostgresUnitsRepository) FindUnitByAddress(ctx context.Context, quarter, location, block, room string) (*domain.LivingUnit, error) {
	return findUnitByAddress(ctx, r.db, quarter, location, block, room)
}

func findUnitByAddress(ctx context.Context, q dbtx, quarter, location, block, room string) (*domain.LivingUnit, error) {
	u, err := scanLivingUnit(q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM living_units
		 WHERE LOWER(quarter_name) = LOWER($1)
		   AND LOWER(location) = LOWER($2)
		   AND LOWER(block_name) = LOWER($3)
		   AND LOWER(flat_house_room_name) = LOWER($4)
		 LIMIT 1`,
		quarter, location, block, room))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("no unit at %s/%s block %s room %s", quarter, location, block, room)
		}
		return nil, fmt.Errorf("failed to find unit by address: %w", err)
	}
	return u, nil
}

func (r *PostgresUnitsRepository) FindUnitTemplate(ctx context.Context, quarter, location string) (*domain.LivingUnit, error) {
	return findUnitTemplate(ctx, r.db, quarter, location)
}

func findUnitTemplate(ctx context.Context, q dbtx, quarter, location string) (*domain.LivingUnit, error) {
	u, err := scanLivingUnit(q.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM living_units
		 WHERE LOWER(quarter_name) = LOWER($1) AND LOWER(location) = LOWER($2)
		 ORDER BY created_at LIMIT 1`,
		quarter, location))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("no unit in quarter %s at %s", quarter, location)
		}
		return nil, fmt.Errorf("failed to find template unit: %w", err)
	}
	return u, nil
}

// ============================================
// Occupancy register (transaction-scoped)
// ============================================

// occupyUnitTx is the single write path that turns a Vacant unit Occupied:
// unit snapshot + current unit_occupants row + open unit_history span, all in
// the caller's transaction.
func occupyUnitTx(ctx context.Context, tx *sql.Tx, unit *domain.LivingUnit, snap domain.OccupantSnapshot) error {
	if unit.Status != domain.UnitVacant {
		return domain.Conflictf("unit %s is %s, expected Vacant", unit.UnitID, unit.Status)
	}

	var occupantID string
	err := tx.QueryRowContext(ctx,
		`INSERT INTO unit_occupants (unit_id, queue_id, full_name, rank, svc_no, is_current)
		 VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, TRUE)
		 RETURNING occupant_id::text`,
		unit.UnitID, snap.QueueID, snap.FullName, snap.Rank, snap.SvcNo).Scan(&occupantID)
	if err != nil {
		return fmt.Errorf("failed to insert unit occupant: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE living_units SET
			status = $2,
			occupant_id = $3,
			occupant_name = $4,
			occupant_rank = $5,
			occupant_svc_no = $6,
			occupancy_start_date = $7
		 WHERE unit_id = $1`,
		unit.UnitID, domain.UnitOccupied, occupantID, snap.FullName, snap.Rank, snap.SvcNo, snap.Start); err != nil {
		return fmt.Errorf("failed to mark unit occupied: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO unit_history (unit_id, occupant_name, occupant_rank, svc_no, start_date)
		 VALUES ($1, $2, $3, $4, $5)`,
		unit.UnitID, snap.FullName, snap.Rank, snap.SvcNo, snap.Start); err != nil {
		return fmt.Errorf("failed to open unit history: %w", err)
	}

	unit.Status = domain.UnitOccupied
	unit.OccupantID = occupantID
	unit.OccupantName = snap.FullName
	unit.OccupantRank = snap.Rank
	unit.OccupantSvcNo = snap.SvcNo
	start := snap.Start
	unit.OccupancyStartDate = &start
	return nil
}

// vacateUnitTx is the single write path that turns an Occupied unit Vacant:
// clears the snapshot, flips is_current off, closes the open history span
// (synthesizing a closed one when none is open and synthesize is set).
func vacateUnitTx(ctx context.Context, tx *sql.Tx, unit *domain.LivingUnit, end time.Time, reason string, synthesize bool) error {
	if unit.Status != domain.UnitOccupied {
		return domain.Conflictf("unit %s is %s, expected Occupied", unit.UnitID, unit.Status)
	}

	start := end
	if unit.OccupancyStartDate != nil {
		start = *unit.OccupancyStartDate
	}
	days := domain.DurationDays(start, end)

	if _, err := tx.ExecContext(ctx,
		`UPDATE living_units SET
			status = $2,
			occupant_id = NULL,
			occupant_name = NULL,
			occupant_rank = NULL,
			occupant_svc_no = NULL,
			occupancy_start_date = NULL
		 WHERE unit_id = $1`,
		unit.UnitID, domain.UnitVacant); err != nil {
		return fmt.Errorf("failed to mark unit vacant: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE unit_occupants SET is_current = FALSE WHERE unit_id = $1 AND is_current`,
		unit.UnitID); err != nil {
		return fmt.Errorf("failed to clear current occupant: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE unit_history SET end_date = $2, duration_days = $3, reason_for_leaving = $4
		 WHERE unit_id = $1 AND end_date IS NULL`,
		unit.UnitID, end, days, reason)
	if err != nil {
		return fmt.Errorf("failed to close unit history: %w", err)
	}
	closed, _ := res.RowsAffected()
	if closed == 0 && synthesize {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unit_history (unit_id, occupant_name, occupant_rank, svc_no, start_date, end_date, duration_days, reason_for_leaving)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			unit.UnitID, unit.OccupantName, unit.OccupantRank, unit.OccupantSvcNo, start, end, days, reason); err != nil {
			return fmt.Errorf("failed to synthesize unit history: %w", err)
		}
	}

	unit.Status = domain.UnitVacant
	unit.ClearOccupant()
	return nil
}
