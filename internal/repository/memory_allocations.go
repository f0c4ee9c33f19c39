package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"quarters-data/internal/domain"
)

func cloneRequest(r *domain.AllocationRequest) *domain.AllocationRequest {
	c := *r
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		c.ApprovedAt = &t
	}
	c.PersonnelData = append(json.RawMessage{}, r.PersonnelData...)
	c.UnitData = append(json.RawMessage{}, r.UnitData...)
	return &c
}

func (s *MemoryStore) GetRequest(_ context.Context, requestID string) (*domain.AllocationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, domain.NotFoundf("allocation request not found: %s", requestID)
	}
	return cloneRequest(req), nil
}

func (s *MemoryStore) ListRequests(_ context.Context, status string, page, size int) ([]*domain.AllocationRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.AllocationRequest{}
	for _, req := range s.requests {
		if status != "" && req.Status != status {
			continue
		}
		matched = append(matched, cloneRequest(req))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (s *MemoryStore) nextLetterSeqLocked(year int) int {
	s.letterSeq[year]++
	return s.letterSeq[year]
}

func (s *MemoryStore) insertRequestLocked(req *domain.AllocationRequest) string {
	c := cloneRequest(req)
	c.RequestID = uuid.NewString()
	if c.Status == "" {
		c.Status = domain.RequestPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.requests[c.RequestID] = c
	req.RequestID = c.RequestID
	req.Status = c.Status
	return c.RequestID
}

func (s *MemoryStore) CreateRequest(_ context.Context, req *domain.AllocationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := time.Now().Year()
	req.LetterID = domain.FormatLetterID(year, s.nextLetterSeqLocked(year))
	req.Status = domain.RequestPending
	id := s.insertRequestLocked(req)

	if err := s.removeEntryLocked(req.QueueID); err != nil {
		delete(s.requests, id)
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) ApproveRequest(_ context.Context, requestID, approvedBy string) (*ApproveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, domain.NotFoundf("allocation request not found: %s", requestID)
	}
	if req.Status != domain.RequestPending {
		return nil, domain.Conflictf("allocation request %s is %s, expected pending", requestID, req.Status)
	}
	unit, ok := s.units[req.UnitID]
	if !ok {
		return nil, domain.NotFoundf("unit not found: %s", req.UnitID)
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

	if person.SvcNo != "" {
		for _, old := range s.units {
			if old.UnitID == unit.UnitID || old.Status != domain.UnitOccupied || old.OccupantSvcNo != person.SvcNo {
				continue
			}
			reason := fmt.Sprintf("re-allocated to %s", unit.Label())
			if _, err := s.archiveOccupancyLocked(old, reason, now); err != nil {
				return nil, err
			}
			if err := s.vacateLocked(old.UnitID, now, reason, false); err != nil {
				return nil, err
			}
			outcome.DisplacedUnitID = old.UnitID
			break
		}
	}

	req.Status = domain.RequestApproved
	req.ApprovedBy = approvedBy
	req.ApprovedAt = &now

	err := s.occupyLocked(unit.UnitID, domain.OccupantSnapshot{
		QueueID:  req.QueueID,
		FullName: person.FullName,
		Rank:     person.Rank,
		SvcNo:    person.SvcNo,
		Start:    now,
	})
	if err != nil {
		return nil, err
	}

	outcome.Request = cloneRequest(req)
	outcome.Unit = cloneUnit(unit)
	return outcome, nil
}

func (s *MemoryStore) RefuseRequest(_ context.Context, requestID, reason string) (*RefuseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return nil, domain.NotFoundf("allocation request not found: %s", requestID)
	}
	if req.Status != domain.RequestPending {
		return nil, domain.Conflictf("allocation request %s is %s, expected pending", requestID, req.Status)
	}

	var person domain.FrozenPersonnel
	if err := json.Unmarshal(req.PersonnelData, &person); err != nil {
		return nil, domain.Invariantf("allocation request %s carries an unreadable personnel snapshot", requestID)
	}

	delete(s.requests, requestID)

	var queueID string
	if existing := s.queueBySvcNoLocked(person.SvcNo); existing != nil {
		queueID = existing.QueueID
		if err := s.moveEntryToFrontLocked(existing.QueueID); err != nil {
			return nil, err
		}
		existing.HasAllocationRequest = false
	} else {
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
		queueID = s.insertEntryAtFrontLocked(entry)
	}

	out := cloneRequest(req)
	out.Status = domain.RequestRefused
	out.RefusalReason = reason
	return &RefuseOutcome{Request: out, QueueID: queueID}, nil
}

func (s *MemoryStore) archiveOccupancyLocked(unit *domain.LivingUnit, reason string, end time.Time) (*domain.PastAllocation, error) {
	occ := s.currentOccupantLocked(unit.UnitID)
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
		PastID:              uuid.NewString(),
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

	// Prefer the frozen data of the approving request when one exists.
	var approving *domain.AllocationRequest
	for _, req := range s.requests {
		if req.QueueID != occ.QueueID || req.UnitID != unit.UnitID || req.Status != domain.RequestApproved {
			continue
		}
		if approving == nil || req.CreatedAt.After(approving.CreatedAt) {
			approving = req
		}
	}
	if approving != nil {
		past.LetterID = approving.LetterID
		past.PersonnelID = approving.PersonnelID
		past.PersonnelData = append(json.RawMessage{}, approving.PersonnelData...)
		past.UnitData = append(json.RawMessage{}, approving.UnitData...)
	}

	s.past = append(s.past, past)
	return past, nil
}

func (s *MemoryStore) TransferOccupant(_ context.Context, fromUnitID, toUnitID string) (*TransferOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromUnit, ok := s.units[fromUnitID]
	if !ok {
		return nil, domain.NotFoundf("unit not found: %s", fromUnitID)
	}
	toUnit, ok := s.units[toUnitID]
	if !ok {
		return nil, domain.NotFoundf("unit not found: %s", toUnitID)
	}
	if fromUnit.Status != domain.UnitOccupied {
		return nil, domain.Conflictf("unit %s is %s, expected Occupied", fromUnitID, fromUnit.Status)
	}
	if toUnit.Status != domain.UnitVacant {
		return nil, domain.Conflictf("unit %s is %s, expected Vacant", toUnitID, toUnit.Status)
	}

	occ := s.currentOccupantLocked(fromUnitID)
	if occ == nil || occ.QueueID == "" {
		return nil, domain.Invariantf("occupant of unit %s has no queue link; occupancy is not traceable", fromUnitID)
	}

	outcome := &TransferOutcome{}
	var approved *domain.AllocationRequest
	for _, req := range s.requests {
		if req.QueueID != occ.QueueID || req.Status != domain.RequestApproved {
			continue
		}
		if approved == nil || req.CreatedAt.After(approved.CreatedAt) {
			approved = req
		}
	}

	now := time.Now()
	reason := fmt.Sprintf("Transferred to %s", toUnit.Label())
	past, err := s.archiveOccupancyLocked(fromUnit, reason, now)
	if err != nil {
		return nil, err
	}

	if approved != nil {
		approved.Status = domain.RequestPending
		approved.ApprovedBy = ""
		approved.ApprovedAt = nil
		approved.UnitID = toUnitID
		approved.UnitData = freezeJSON(domain.FreezeUnit(toUnit))
		outcome.RevertedRequestID = approved.RequestID
	}

	if err := s.vacateLocked(fromUnitID, now, reason, false); err != nil {
		return nil, err
	}

	outcome.FromUnit = cloneUnit(fromUnit)
	outcome.ToUnit = cloneUnit(toUnit)
	outcome.Past = past
	return outcome, nil
}

func (s *MemoryStore) DeallocateUnit(_ context.Context, unitID, reason string) (*DeallocateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		return nil, domain.NotFoundf("unit not found: %s", unitID)
	}
	if unit.Status != domain.UnitOccupied {
		return nil, domain.Conflictf("unit %s is %s, expected Occupied", unitID, unit.Status)
	}

	occ := s.currentOccupantLocked(unitID)
	if occ == nil || occ.QueueID == "" {
		return nil, domain.Invariantf("occupant of unit %s has no queue link; occupancy is not traceable", unitID)
	}

	now := time.Now()
	past, err := s.archiveOccupancyLocked(unit, reason, now)
	if err != nil {
		return nil, err
	}
	if err := s.vacateLocked(unitID, now, reason, true); err != nil {
		return nil, err
	}
	return &DeallocateOutcome{Unit: cloneUnit(unit), Past: past}, nil
}

func (s *MemoryStore) ImportBatch(_ context.Context, records []*ImportRecord, actor string, progress func(done, total int)) (*domain.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Canonical casing for free-text posting-unit names: first writer wins,
	// later rows that match case-insensitively adopt the existing spelling.
	unitNames := map[string]string{}
	for _, e := range s.queue {
		if e.CurrentUnit != "" {
			unitNames[strings.ToLower(e.CurrentUnit)] = e.CurrentUnit
		}
	}

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
		if err := s.importRecordLocked(rec, actor); err != nil {
			if domain.IsValidation(err) || domain.IsConflict(err) || domain.IsNotFound(err) {
				result.Skipped++
				result.Errors = append(result.Errors, label+": "+err.Error())
				continue
			}
			return nil, fmt.Errorf("import aborted at %s: %w", label, err)
		}
		result.Imported++
	}
	if progress != nil {
		progress(len(records), len(records))
	}
	return result, nil
}

// importRecordLocked mirrors importRecordTx; checks run before any mutation
// so a rejected record leaves no trace.
func (s *MemoryStore) importRecordLocked(rec *ImportRecord, actor string) error {
	if s.queueBySvcNoLocked(rec.Entry.SvcNo) != nil {
		return domain.Conflictf("service number %s already exists", rec.Entry.SvcNo)
	}

	unit := s.findUnitByAddressLocked(rec.QuarterName, rec.Location, rec.BlockName, rec.FlatHouseRoomName)
	if unit != nil && unit.Status == domain.UnitOccupied {
		return domain.Conflictf("unit %s is already Occupied", unit.Label())
	}
	if unit == nil {
		synth := &domain.LivingUnit{
			QuarterName:       rec.QuarterName,
			Location:          rec.Location,
			Category:          rec.Category,
			AccommodationType: rec.AccommodationType,
			OccupancyType:     rec.OccupancyType,
			BlockName:         rec.BlockName,
			FlatHouseRoomName: rec.FlatHouseRoomName,
			Status:            domain.UnitVacant,
		}
		if tmpl := s.findUnitTemplateLocked(rec.QuarterName, rec.Location); tmpl != nil {
			if synth.Category == "" {
				synth.Category = tmpl.Category
			}
			if synth.AccommodationType == "" {
				synth.AccommodationType = tmpl.AccommodationType
			}
			if synth.OccupancyType == "" {
				synth.OccupancyType = tmpl.OccupancyType
			}
			synth.NoOfRooms = tmpl.NoOfRooms
			synth.BoysQuarters = tmpl.BoysQuarters
			synth.BQRooms = tmpl.BQRooms
		}
		if synth.AccommodationType == "" {
			synth.AccommodationType = "Two Bedroom Flat"
		}
		if synth.NoOfRooms == 0 {
			synth.NoOfRooms = 2
		}
		id := s.insertUnitLocked(synth)
		unit = s.units[id]
	}

	rec.Entry.HasAllocationRequest = true
	if _, err := s.appendEntryLocked(rec.Entry); err != nil {
		return err
	}

	if err := s.occupyLocked(unit.UnitID, domain.OccupantSnapshot{
		QueueID:  rec.Entry.QueueID,
		FullName: rec.Entry.FullName,
		Rank:     rec.Entry.Rank,
		SvcNo:    rec.Entry.SvcNo,
		Start:    rec.Start,
	}); err != nil {
		return err
	}

	year := time.Now().Year()
	now := time.Now()
	req := &domain.AllocationRequest{
		PersonnelID:   rec.Entry.QueueID,
		UnitID:        unit.UnitID,
		QueueID:       rec.Entry.QueueID,
		LetterID:      domain.FormatLetterID(year, s.nextLetterSeqLocked(year)),
		PersonnelData: freezeJSON(domain.FreezePersonnel(rec.Entry)),
		UnitData:      freezeJSON(domain.FreezeUnit(unit)),
		Status:        domain.RequestApproved,
		ApprovedBy:    actor,
		ApprovedAt:    &now,
	}
	s.insertRequestLocked(req)
	return nil
}

func (s *MemoryStore) CurrentOccupant(_ context.Context, unitID string) (*domain.UnitOccupant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	occ := s.currentOccupantLocked(unitID)
	if occ == nil {
		return nil, domain.NotFoundf("unit %s has no current occupant", unitID)
	}
	c := *occ
	return &c, nil
}

func (s *MemoryStore) ListUnitHistory(_ context.Context, unitID string) ([]*domain.UnitHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*domain.UnitHistoryRecord{}
	for _, h := range s.history[unitID] {
		c := *h
		if h.EndDate != nil {
			t := *h.EndDate
			c.EndDate = &t
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartDate.After(out[j].StartDate)
	})
	return out, nil
}

func (s *MemoryStore) ListPastAllocations(_ context.Context, page, size int) ([]*domain.PastAllocation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*domain.PastAllocation, 0, len(s.past))
	for i := len(s.past) - 1; i >= 0; i-- {
		c := *s.past[i]
		matched = append(matched, &c)
	}

	total := len(matched)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
