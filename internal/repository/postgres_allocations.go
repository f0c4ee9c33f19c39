package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"quarters-data/internal/domain"
)

// PostgresAllocationsRepository implements the allocation workflow over the
// relational store. Every mutating method is one BeginTx/Commit span; the
// sequencer and occupancy helpers from the queue/units repositories run
// inside the same transaction.
type PostgresAllocationsRepository struct {
	db *sql.DB
}

func NewPostgresAllocationsRepository(db *sql.DB) *PostgresAllocationsRepository {
	return &PostgresAllocationsRepository{db: db}
}

var _ AllocationsRepository = (*PostgresAllocationsRepository)(nil)

const requestColumns = `
	request_id::text,
	personnel_id::text,
	unit_id::text,
	queue_id::text,
	letter_id,
	personnel_data,
	unit_data,
	status,
	COALESCE(approved_by, ''),
	approved_at,
	COALESCE(refusal_reason, ''),
	created_at
`

func scanRequest(row interface{ Scan(...any) error }) (*domain.AllocationRequest, error) {
	var req domain.AllocationRequest
	var personnelData, unitData []byte
	var approvedAt sql.NullTime
	err := row.Scan(
		&req.RequestID,
		&req.PersonnelID,
		&req.UnitID,
		&req.QueueID,
		&req.LetterID,
		&personnelData,
		&unitData,
		&req.Status,
		&req.ApprovedBy,
		&approvedAt,
		&req.RefusalReason,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.PersonnelData = json.RawMessage(personnelData)
	req.UnitData = json.RawMessage(unitData)
	if approvedAt.Valid {
		t := approvedAt.Time
		req.ApprovedAt = &t
	}
	return &req, nil
}

func (r *PostgresAllocationsRepository) GetRequest(ctx context.Context, requestID string) (*domain.AllocationRequest, error) {
	return getRequest(ctx, r.db, requestID, false)
}

func getRequest(ctx context.Context, q dbtx, requestID string, forUpdate bool) (*domain.AllocationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM allocation_requests WHERE request_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	req, err := scanRequest(q.QueryRowContext(ctx, query, requestID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NotFoundf("allocation request not found: %s", requestID)
		}
		return nil, fmt.Errorf("failed to get allocation request: %w", err)
	}
	return req, nil
}

func (r *PostgresAllocationsRepository) ListRequests(ctx context.Context, status string, page, size int) ([]*domain.AllocationRequest, int, error) {
	where := "TRUE"
	args := []any{}
	argIdx := 1
	if status != "" {
		where = fmt.Sprintf("status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM allocation_requests WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count allocation requests: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	q := `SELECT ` + requestColumns + ` FROM allocation_requests WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list allocation requests: %w", err)
	}
	defer rows.Close()

	out := []*domain.AllocationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

// nextLetterSeqTx bumps the per-year counter atomically inside the caller's
// transaction, so two concurrent creations can never observe the same value.
func nextLetterSeqTx(ctx context.Context, tx *sql.Tx, year int) (int, error) {
	var seq int
	err := tx.QueryRowContext(ctx,
		`INSERT INTO letter_sequences (year, last_seq) VALUES ($1, 1)
		 ON CONFLICT (year) DO UPDATE SET last_seq = letter_sequences.last_seq + 1
		 RETURNING last_seq`, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance letter sequence: %w", err)
	}
	return seq, nil
}

func insertRequestTx(ctx context.Context, tx *sql.Tx, req *domain.AllocationRequest) (string, error) {
	var approvedBy any
	if req.ApprovedBy != "" {
		approvedBy = req.ApprovedBy
	}
	var approvedAt any
	if req.ApprovedAt != nil {
		approvedAt = *req.ApprovedAt
	}
	status := req.Status
	if status == "" {
		status = domain.RequestPending
	}
	var id string
	err := tx.QueryRowContext(ctx,
		`INSERT INTO allocation_requests (
			personnel_id, unit_id, queue_id, letter_id, personnel_data, unit_data,
			status, approved_by, approved_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING request_id::text`,
		req.PersonnelID,
		req.UnitID,
		req.QueueID,
		req.LetterID,
		[]byte(req.PersonnelData),
		[]byte(req.UnitData),
		status,
		approvedBy,
		approvedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert allocation request: %w", err)
	}
	req.RequestID = id
	req.Status = status
	return id, nil
}

func (r *PostgresAllocationsRepository) CreateRequest(ctx context.Context, req *domain.AllocationRequest) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seq, err := nextLetterSeqTx(ctx, tx, time.Now().Year())
	if err != nil {
		return "", err
	}
	req.LetterID = domain.FormatLetterID(time.Now().Year(), seq)
	req.Status = domain.RequestPending

	id, err := insertRequestTx(ctx, tx, req)
	if err != nil {
		return "", err
	}

	// The entry leaves the queue as soon as a unit is proposed for it; the
	// frozen snapshot on the request keeps its data for refusal.
	if _, err := removeQueueEntryTx(ctx, tx, req.QueueID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit allocation request: %w", err)
	}
	return id, nil
}

func (r *PostgresAllocationsRepository) ApproveRequest(ctx context.Context, requestID, approvedBy string) (*ApproveOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, requestID, true)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return nil, domain.Conflictf("allocation request %s is %s, expected pending", requestID, req.Status)
	}

	// Lock before re-checking the vacancy precondition; there is no version
	// column, the row lock is what serializes concurrent approvals.
	unit, err := getUnit(ctx, tx, req.UnitID, true)
	if err != nil {
		return nil, err
	}
	if unit.Status != domain.UnitVacant {
		return nil, domain.Conflictf("unit %s is %s, expected Vacant", unit.UnitID, unit.Status)
	}

	var person domain.FrozenPersonnel
	if err := json.Unmarshal(req.PersonnelData, &person); err != nil {
		return nil, domain.Invariantf("allocation request %s carries an unreadable personnel snapshot", requestID)
	}

	now := time.Now()
	outcome := &ApproveOutcome{}

	// Displacement: the personnel may still occupy another unit from an
	// earlier cycle; archive and vacate it before the new occupancy opens.
	if person.SvcNo != "" {
		oldUnit, err := scanLivingUnit(tx.QueryRowContext(ctx,
			`SELECT `+unitColumns+` FROM living_units
			 WHERE occupant_svc_no = $1 AND status = $2 AND unit_id <> $3
			 LIMIT 1 FOR UPDATE`,
			person.SvcNo, domain.UnitOccupied, unit.UnitID))
		switch {
		case err == sql.ErrNoRows:
			// nothing to displace
		case err != nil:
			return nil, fmt.Errorf("failed to look up existing occupancy: %w", err)
		default:
			reason := fmt.Sprintf("re-allocated to %s", unit.Label())
			if _, err := archiveOccupancyTx(ctx, tx, oldUnit, reason, now); err != nil {
				return nil, err
			}
			if err := vacateUnitTx(ctx, tx, oldUnit, now, reason, false); err != nil {
				return nil, err
			}
			outcome.DisplacedUnitID = oldUnit.UnitID
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE allocation_requests SET status = $2, approved_by = $3, approved_at = $4
		 WHERE request_id = $1`,
		requestID, domain.RequestApproved, approvedBy, now); err != nil {
		return nil, fmt.Errorf("failed to approve request: %w", err)
	}
	req.Status = domain.RequestApproved
	req.ApprovedBy = approvedBy
	req.ApprovedAt = &now

	err = occupyUnitTx(ctx, tx, unit, domain.OccupantSnapshot{
		QueueID:  req.QueueID,
		FullName: person.FullName,
		Rank:     person.Rank,
		SvcNo:    person.SvcNo,
		Start:    now,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}
	outcome.Request = req
	outcome.Unit = unit
	return outcome, nil
}

func (r *PostgresAllocationsRepository) RefuseRequest(ctx context.Context, requestID, reason string) (*RefuseOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, requestID, true)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RequestPending {
		return nil, domain.Conflictf("allocation request %s is %s, expected pending", requestID, req.Status)
	}

	var person domain.FrozenPersonnel
	if err := json.Unmarshal(req.PersonnelData, &person); err != nil {
		return nil, domain.Invariantf("allocation request %s carries an unreadable personnel snapshot", requestID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM allocation_requests WHERE request_id = $1`, requestID); err != nil {
		return nil, fmt.Errorf("failed to delete allocation request: %w", err)
	}

	// The refused personnel goes to the FRONT of the queue: first to be
	// bumped gets first priority to re-apply. An imported entry still has a
	// row (hidden behind has_allocation_request); move it. Otherwise
	// re-materialize from the frozen snapshot.
	var queueID string
	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT queue_id::text FROM queue_entries WHERE svc_no = $1 FOR UPDATE`,
		person.SvcNo).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		entry := &domain.QueueEntry{
			SvcNo:           person.SvcNo,
			FullName:        person.FullName,
			Category:        person.Category,
			Rank:            person.Rank,
			MaritalStatus:   person.MaritalStatus,
			CurrentUnit:     person.CurrentUnit,
			Appointment:     person.Appointment,
			AdultDependents: person.AdultDependents,
			ChildDependents: person.ChildDependents,
		}
		queueID, err = insertQueueEntryAtTx(ctx, tx, entry, 1)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to look up queue entry: %w", err)
	default:
		queueID = existing
		if err := moveQueueEntryToFrontTx(ctx, tx, existing); err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE queue_entries SET has_allocation_request = FALSE WHERE queue_id = $1`,
			existing); err != nil {
			return nil, fmt.Errorf("failed to reset allocation flag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refusal: %w", err)
	}
	req.Status = domain.RequestRefused
	req.RefusalReason = reason
	return &RefuseOutcome{Request: req, QueueID: queueID}, nil
}

// currentOccupantTx returns the is_current row for a unit, or nil when the
// unit has none.
func currentOccupantTx(ctx context.Context, q dbtx, unitID string) (*domain.UnitOccupant, error) {
	var occ domain.UnitOccupant
	var queueID sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT occupant_id::text, unit_id::text, queue_id::text, full_name, rank, svc_no, is_current, created_at
		 FROM unit_occupants WHERE unit_id = $1 AND is_current LIMIT 1`,
		unitID).Scan(&occ.OccupantID, &occ.UnitID, &queueID, &occ.FullName, &occ.Rank, &occ.SvcNo, &occ.IsCurrent, &occ.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current occupant: %w", err)
	}
	if queueID.Valid {
		occ.QueueID = queueID.String
	}
	return &occ, nil
}

// archiveOccupancyTx writes the past_allocations row for a unit's current
// occupancy. Letter id and frozen snapshots come from the approved request
// that opened the occupancy when one exists; otherwise they are synthesized
// from the live rows.
func archiveOccupancyTx(ctx context.Context, tx *sql.Tx, unit *domain.LivingUnit, reason string, end time.Time) (*domain.PastAllocation, error) {
	occ, err := currentOccupantTx(ctx, tx, unit.UnitID)
	if err != nil {
		return nil, err
	}
	if occ == nil {
		return nil, domain.Invariantf("unit %s is Occupied but has no current occupant record", unit.UnitID)
	}
	if occ.QueueID == "" {
		return nil, domain.Invariantf("occupant of unit %s has no queue link; occupancy is not traceable", unit.UnitID)
	}

	start := end
	if unit.OccupancyStartDate != nil {
		start = *unit.OccupancyStartDate
	}

	past := &domain.PastAllocation{
		PersonnelID:         occ.QueueID,
		QueueID:             occ.QueueID,
		UnitID:              unit.UnitID,
		PersonnelData:       freezeJSON(map[string]string{"fullName": occ.FullName, "rank": occ.Rank, "svcNo": occ.SvcNo}),
		UnitData:            freezeJSON(domain.FreezeUnit(unit)),
		AllocationStartDate: start,
		AllocationEndDate:   end,
		DurationDays:        domain.DurationDays(start, end),
		ReasonForLeaving:    reason,
		DeallocationDate:    end,
	}

	var letterID, personnelID string
	var personnelData, unitData []byte
	err = tx.QueryRowContext(ctx,
		`SELECT letter_id, personnel_id::text, personnel_data, unit_data
		 FROM allocation_requests
		 WHERE queue_id = $1 AND unit_id = $2 AND status = $3
		 ORDER BY created_at DESC LIMIT 1`,
		occ.QueueID, unit.UnitID, domain.RequestApproved,
	).Scan(&letterID, &personnelID, &personnelData, &unitData)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up approving request: %w", err)
	}
	if err == nil {
		past.LetterID = letterID
		past.PersonnelID = personnelID
		past.PersonnelData = json.RawMessage(personnelData)
		past.UnitData = json.RawMessage(unitData)
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO past_allocations (
			personnel_id, queue_id, unit_id, letter_id, personnel_data, unit_data,
			allocation_start_date, allocation_end_date, duration_days, reason_for_leaving, deallocation_date
		 ) VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING past_id::text`,
		past.PersonnelID,
		past.QueueID,
		past.UnitID,
		past.LetterID,
		[]byte(past.PersonnelData),
		[]byte(past.UnitData),
		past.AllocationStartDate,
		past.AllocationEndDate,
		past.DurationDays,
		past.ReasonForLeaving,
		past.DeallocationDate,
	).Scan(&past.PastID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert past allocation: %w", err)
	}
	return past, nil
}

func (r *PostgresAllocationsRepository) TransferOccupant(ctx context.Context, fromUnitID, toUnitID string) (*TransferOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock in id order so two opposing transfers cannot deadlock.
	first, second := fromUnitID, toUnitID
	if second < first {
		first, second = second, first
	}
	lockedFirst, err := getUnit(ctx, tx, first, true)
	if err != nil {
		return nil, err
	}
	lockedSecond, err := getUnit(ctx, tx, second, true)
	if err != nil {
		return nil, err
	}
	fromUnit, toUnit := lockedFirst, lockedSecond
	if fromUnit.UnitID != fromUnitID {
		fromUnit, toUnit = lockedSecond, lockedFirst
	}

	if fromUnit.Status != domain.UnitOccupied {
		return nil, domain.Conflictf("unit %s is %s, expected Occupied", fromUnit.UnitID, fromUnit.Status)
	}
	if toUnit.Status != domain.UnitVacant {
		return nil, domain.Conflictf("unit %s is %s, expected Vacant", toUnit.UnitID, toUnit.Status)
	}

	occ, err := currentOccupantTx(ctx, tx, fromUnit.UnitID)
	if err != nil {
		return nil, err
	}
	if occ == nil || occ.QueueID == "" {
		return nil, domain.Invariantf("occupant of unit %s has no queue link; occupancy is not traceable", fromUnit.UnitID)
	}

	// Re-open the approval cycle against the destination: the occupant must
	// be approved into the new unit before it is occupied.
	outcome := &TransferOutcome{}
	var requestID string
	err = tx.QueryRowContext(ctx,
		`SELECT request_id::text FROM allocation_requests
		 WHERE queue_id = $1 AND status = $2
		 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`,
		occ.QueueID, domain.RequestApproved).Scan(&requestID)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to look up approved request: %w", err)
	}
	if err == nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE allocation_requests SET
				status = $2,
				approved_by = NULL,
				approved_at = NULL,
				unit_id = $3,
				unit_data = $4
			 WHERE request_id = $1`,
			requestID, domain.RequestPending, toUnit.UnitID, []byte(freezeJSON(domain.FreezeUnit(toUnit)))); err != nil {
			return nil, fmt.Errorf("failed to revert request to pending: %w", err)
		}
		outcome.RevertedRequestID = requestID
	}

	now := time.Now()
	reason := fmt.Sprintf("Transferred to %s", toUnit.Label())
	past, err := archiveOccupancyTx(ctx, tx, fromUnit, reason, now)
	if err != nil {
		return nil, err
	}
	if err := vacateUnitTx(ctx, tx, fromUnit, now, reason, false); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}
	outcome.FromUnit = fromUnit
	outcome.ToUnit = toUnit
	outcome.Past = past
	return outcome, nil
}

func (r *PostgresAllocationsRepository) DeallocateUnit(ctx context.Context, unitID, reason string) (*DeallocateOutcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	unit, err := getUnit(ctx, tx, unitID, true)
	if err != nil {
		return nil, err
	}
	if unit.Status != domain.UnitOccupied {
		return nil, domain.Conflictf("unit %s is %s, expected Occupied", unit.UnitID, unit.Status)
	}

	occ, err := currentOccupantTx(ctx, tx, unit.UnitID)
	if err != nil {
		return nil, err
	}
	if occ == nil || occ.QueueID == "" {
		return nil, domain.Invariantf("occupant of unit %s has no queue link; occupancy is not traceable", unit.UnitID)
	}

	now := time.Now()
	past, err := archiveOccupancyTx(ctx, tx, unit, reason, now)
	if err != nil {
		return nil, err
	}
	// Synthesize a closed history span when none is open; the register must
	// show the span even for rows predating history tracking.
	if err := vacateUnitTx(ctx, tx, unit, now, reason, true); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit deallocation: %w", err)
	}
	return &DeallocateOutcome{Unit: unit, Past: past}, nil
}

func (r *PostgresAllocationsRepository) ImportBatch(ctx context.Context, records []*ImportRecord, actor string, progress func(done, total int)) (*domain.ImportResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Canonical casing for free-text posting-unit names: first writer wins,
	// later rows that match case-insensitively adopt the existing spelling.
	unitNames := map[string]string{}
	nameRows, err := tx.QueryContext(ctx,
		`SELECT DISTINCT current_unit FROM queue_entries WHERE current_unit <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to load current unit names: %w", err)
	}
	for nameRows.Next() {
		var name string
		if err := nameRows.Scan(&name); err != nil {
			nameRows.Close()
			return nil, fmt.Errorf("failed to scan current unit name: %w", err)
		}
		unitNames[strings.ToLower(name)] = name
	}
	if err := nameRows.Err(); err != nil {
		nameRows.Close()
		return nil, fmt.Errorf("failed to read current unit names: %w", err)
	}
	nameRows.Close()

	result := &domain.ImportResult{Errors: []string{}}
	for i, rec := range records {
		if progress != nil {
			progress(i, len(records))
		}
		if rec.Entry.CurrentUnit != "" {
			key := strings.ToLower(rec.Entry.CurrentUnit)
			if canonical, ok := unitNames[key]; ok {
				rec.Entry.CurrentUnit = canonical
			} else {
				unitNames[key] = rec.Entry.CurrentUnit
			}
		}
		label := fmt.Sprintf("row %d (%s)", i+1, rec.Entry.SvcNo)

		// Per-record savepoint: a rejected row rolls back only its own
		// writes; a store-level failure still aborts the whole batch.
		sp := fmt.Sprintf("import_rec_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("failed to create savepoint: %w", err)
		}
		if err := importRecordTx(ctx, tx, rec, actor); err != nil {
			if domain.IsValidation(err) || domain.IsConflict(err) || domain.IsNotFound(err) {
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
					return nil, fmt.Errorf("failed to roll back record: %w", rbErr)
				}
				result.Skipped++
				result.Errors = append(result.Errors, label+": "+err.Error())
				continue
			}
			return nil, fmt.Errorf("import aborted at %s: %w", label, err)
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return nil, fmt.Errorf("failed to release savepoint: %w", err)
		}
		result.Imported++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import batch: %w", err)
	}
	if progress != nil {
		progress(len(records), len(records))
	}
	return result, nil
}

// importRecordTx runs the full per-record pipeline: duplicate check, unit
// resolution (synthesizing when absent), queue entry creation, occupancy and
// a pre-approved allocation request.
func importRecordTx(ctx context.Context, tx *sql.Tx, rec *ImportRecord, actor string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM queue_entries WHERE svc_no = $1)`,
		rec.Entry.SvcNo).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check service number: %w", err)
	}
	if exists {
		return domain.Conflictf("service number %s already exists", rec.Entry.SvcNo)
	}

	unit, err := findUnitByAddress(ctx, tx, rec.QuarterName, rec.Location, rec.BlockName, rec.FlatHouseRoomName)
	if err != nil {
		if !domain.IsNotFound(err) {
			return err
		}
		unit, err = synthesizeUnitTx(ctx, tx, rec)
		if err != nil {
			return err
		}
	}
	if unit.Status == domain.UnitOccupied {
		return domain.Conflictf("unit %s is already Occupied", unit.Label())
	}

	rec.Entry.HasAllocationRequest = true
	if _, err := appendQueueEntryTx(ctx, tx, rec.Entry); err != nil {
		return err
	}

	if err := occupyUnitTx(ctx, tx, unit, domain.OccupantSnapshot{
		QueueID:  rec.Entry.QueueID,
		FullName: rec.Entry.FullName,
		Rank:     rec.Entry.Rank,
		SvcNo:    rec.Entry.SvcNo,
		Start:    rec.Start,
	}); err != nil {
		return err
	}

	year := time.Now().Year()
	seq, err := nextLetterSeqTx(ctx, tx, year)
	if err != nil {
		return err
	}
	now := time.Now()
	req := &domain.AllocationRequest{
		PersonnelID:   rec.Entry.QueueID,
		UnitID:        unit.UnitID,
		QueueID:       rec.Entry.QueueID,
		LetterID:      domain.FormatLetterID(year, seq),
		PersonnelData: freezeJSON(domain.FreezePersonnel(rec.Entry)),
		UnitData:      freezeJSON(domain.FreezeUnit(unit)),
		Status:        domain.RequestApproved,
		ApprovedBy:    actor,
		ApprovedAt:    &now,
	}
	if _, err := insertRequestTx(ctx, tx, req); err != nil {
		return err
	}
	return nil
}

// synthesizeUnitTx fabricates a missing living unit: attributes come from a
// sibling unit in the same quarter+location when one exists, else defaults.
func synthesizeUnitTx(ctx context.Context, tx *sql.Tx, rec *ImportRecord) (*domain.LivingUnit, error) {
	unit := &domain.LivingUnit{
		QuarterName:       rec.QuarterName,
		Location:          rec.Location,
		Category:          rec.Category,
		AccommodationType: rec.AccommodationType,
		OccupancyType:     rec.OccupancyType,
		BlockName:         rec.BlockName,
		FlatHouseRoomName: rec.FlatHouseRoomName,
		Status:            domain.UnitVacant,
	}
	tmpl, err := findUnitTemplate(ctx, tx, rec.QuarterName, rec.Location)
	if err != nil && !domain.IsNotFound(err) {
		return nil, err
	}
	if err == nil {
		if unit.Category == "" {
			unit.Category = tmpl.Category
		}
		if unit.AccommodationType == "" {
			unit.AccommodationType = tmpl.AccommodationType
		}
		if unit.OccupancyType == "" {
			unit.OccupancyType = tmpl.OccupancyType
		}
		unit.NoOfRooms = tmpl.NoOfRooms
		unit.BoysQuarters = tmpl.BoysQuarters
		unit.BQRooms = tmpl.BQRooms
	}
	if unit.AccommodationType == "" {
		unit.AccommodationType = "Two Bedroom Flat"
	}
	if unit.NoOfRooms == 0 {
		unit.NoOfRooms = 2
	}
	if _, err := insertUnitTx(ctx, tx, unit); err != nil {
		return nil, err
	}
	return unit, nil
}

func (r *PostgresAllocationsRepository) CurrentOccupant(ctx context.Context, unitID string) (*domain.UnitOccupant, error) {
	occ, err := currentOccupantTx(ctx, r.db, unitID)
	if err != nil {
		return nil, err
	}
	if occ == nil {
		return nil, domain.NotFoundf("unit %s has no current occupant", unitID)
	}
	return occ, nil
}

func (r *PostgresAllocationsRepository) ListUnitHistory(ctx context.Context, unitID string) ([]*domain.UnitHistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT history_id::text, unit_id::text, occupant_name, occupant_rank, svc_no,
		        start_date, end_date, duration_days, reason_for_leaving
		 FROM unit_history WHERE unit_id = $1 ORDER BY start_date DESC`, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit history: %w", err)
	}
	defer rows.Close()

	out := []*domain.UnitHistoryRecord{}
	for rows.Next() {
		var h domain.UnitHistoryRecord
		var end sql.NullTime
		if err := rows.Scan(&h.HistoryID, &h.UnitID, &h.OccupantName, &h.OccupantRank, &h.SvcNo,
			&h.StartDate, &end, &h.DurationDays, &h.ReasonForLeaving); err != nil {
			return nil, err
		}
		if end.Valid {
			t := end.Time
			h.EndDate = &t
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresAllocationsRepository) ListPastAllocations(ctx context.Context, page, size int) ([]*domain.PastAllocation, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM past_allocations`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count past allocations: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT past_id::text, personnel_id::text, COALESCE(queue_id::text, ''), unit_id::text, letter_id,
		        personnel_data, unit_data, allocation_start_date, allocation_end_date,
		        duration_days, reason_for_leaving, deallocation_date
		 FROM past_allocations ORDER BY deallocation_date DESC LIMIT $1 OFFSET $2`,
		size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list past allocations: %w", err)
	}
	defer rows.Close()

	out := []*domain.PastAllocation{}
	for rows.Next() {
		var p domain.PastAllocation
		var personnelData, unitData []byte
		if err := rows.Scan(&p.PastID, &p.PersonnelID, &p.QueueID, &p.UnitID, &p.LetterID,
			&personnelData, &unitData, &p.AllocationStartDate, &p.AllocationEndDate,
			&p.DurationDays, &p.ReasonForLeaving, &p.DeallocationDate); err != nil {
			return nil, 0, err
		}
		p.PersonnelData = json.RawMessage(personnelData)
		p.UnitData = json.RawMessage(unitData)
		out = append(out, &p)
	}
	return out, total, rows.Err()
}
