package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"quarters-data/internal/domain"
)

func cloneUnit(u *domain.LivingUnit) *domain.LivingUnit {
	c := *u
	if u.OccupancyStartDate != nil {
		t := *u.OccupancyStartDate
		c.OccupancyStartDate = &t
	}
	return &c
}

func eqFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (s *MemoryStore) ListUnits(_ context.Context, filters UnitFilters, page, size int) ([]*domain.LivingUnit, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.LivingUnit{}
	for _, u := range s.units {
		if filters.QuarterName != "" && !eqFold(u.QuarterName, filters.QuarterName) {
			continue
		}
		if filters.Location != "" && !eqFold(u.Location, filters.Location) {
			continue
		}
		if filters.Category != "" && u.Category != filters.Category {
			continue
		}
		if filters.Status != "" && u.Status != filters.Status {
			continue
		}
		if filters.Search != "" {
			needle := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(u.QuarterName), needle) &&
				!strings.Contains(strings.ToLower(u.BlockName), needle) &&
				!strings.Contains(strings.ToLower(u.FlatHouseRoomName), needle) {
				continue
			}
		}
		matched = append(matched, cloneUnit(u))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].QuarterName != matched[j].QuarterName {
			return matched[i].QuarterName < matched[j].QuarterName
		}
		if matched[i].BlockName != matched[j].BlockName {
			return matched[i].BlockName < matched[j].BlockName
		}
		return matched[i].FlatHouseRoomName < matched[j].FlatHouseRoomName
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

func (s *MemoryStore) GetUnit(_ context.Context, unitID string) (*domain.LivingUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.units[unitID]
	if !ok {
		return nil, domain.NotFoundf("unit not found: %s", unitID)
	}
	return cloneUnit(u), nil
}

func (s *MemoryStore) CreateUnit(_ context.Context, unit *domain.LivingUnit) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUnitLocked(unit), nil
}

func (s *MemoryStore) insertUnitLocked(unit *domain.LivingUnit) string {
	c := cloneUnit(unit)
	c.UnitID = uuid.NewString()
	if c.Status == "" {
		c.Status = domain.UnitVacant
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.units[c.UnitID] = c
	unit.UnitID = c.UnitID
	unit.Status = c.Status
	return c.UnitID
}

func (s *MemoryStore) UpdateUnit(_ context.Context, unitID string, unit *domain.LivingUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.units[unitID]
	if !ok {
		return domain.NotFoundf("unit not found: %s", unitID)
	}
	u.QuarterName = unit.QuarterName
	u.Location = unit.Location
	u.Category = unit.Category
	u.AccommodationType = unit.AccommodationType
	u.NoOfRooms = unit.NoOfRooms
	u.OccupancyType = unit.OccupancyType
	u.BoysQuarters = unit.BoysQuarters
	u.BQRooms = unit.BQRooms
	u.BlockName = unit.BlockName
	u.FlatHouseRoomName = unit.FlatHouseRoomName
	return nil
}

func (s *MemoryStore) FindUnitByAddress(_ context.Context, quarter, location, block, room string) (*domain.LivingUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.findUnitByAddressLocked(quarter, location, block, room)
	if u == nil {
		return nil, domain.NotFoundf("no unit at %s/%s block %s room %s", quarter, location, block, room)
	}
	return cloneUnit(u), nil
}

func (s *MemoryStore) findUnitByAddressLocked(quarter, location, block, room string) *domain.LivingUnit {
	for _, u := range s.units {
		if eqFold(u.QuarterName, quarter) && eqFold(u.Location, location) &&
			eqFold(u.BlockName, block) && eqFold(u.FlatHouseRoomName, room) {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) FindUnitTemplate(_ context.Context, quarter, location string) (*domain.LivingUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.findUnitTemplateLocked(quarter, location)
	if u == nil {
		return nil, domain.NotFoundf("no unit in quarter %s at %s", quarter, location)
	}
	return cloneUnit(u), nil
}

func (s *MemoryStore) findUnitTemplateLocked(quarter, location string) *domain.LivingUnit {
	var best *domain.LivingUnit
	for _, u := range s.units {
		if !eqFold(u.QuarterName, quarter) || !eqFold(u.Location, location) {
			continue
		}
		if best == nil || u.CreatedAt.Before(best.CreatedAt) {
			best = u
		}
	}
	return best
}

// ============================================
// Occupancy register (mutex-scoped)
// ============================================

// occupyLocked mirrors occupyUnitTx: unit snapshot + current occupant row +
// open history span as one unit under the store mutex.
func (s *MemoryStore) occupyLocked(unitID string, snap domain.OccupantSnapshot) error {
	u, ok := s.units[unitID]
	if !ok {
		return domain.NotFoundf("unit not found: %s", unitID)
	}
	if u.Status != domain.UnitVacant {
		return domain.Conflictf("unit %s is %s, expected Vacant", unitID, u.Status)
	}

	occ := &domain.UnitOccupant{
		OccupantID: uuid.NewString(),
		UnitID:     unitID,
		QueueID:    snap.QueueID,
		FullName:   snap.FullName,
		Rank:       snap.Rank,
		SvcNo:      snap.SvcNo,
		IsCurrent:  true,
		CreatedAt:  time.Now(),
	}
	s.occupants[unitID] = append(s.occupants[unitID], occ)

	u.Status = domain.UnitOccupied
	u.OccupantID = occ.OccupantID
	u.OccupantName = snap.FullName
	u.OccupantRank = snap.Rank
	u.OccupantSvcNo = snap.SvcNo
	start := snap.Start
	u.OccupancyStartDate = &start

	s.history[unitID] = append(s.history[unitID], &domain.UnitHistoryRecord{
		HistoryID:    uuid.NewString(),
		UnitID:       unitID,
		OccupantName: snap.FullName,
		OccupantRank: snap.Rank,
		SvcNo:        snap.SvcNo,
		StartDate:    snap.Start,
	})
	return nil
}

// vacateLocked mirrors vacateUnitTx.
func (s *MemoryStore) vacateLocked(unitID string, end time.Time, reason string, synthesize bool) error {
	u, ok := s.units[unitID]
	if !ok {
		return domain.NotFoundf("unit not found: %s", unitID)
	}
	if u.Status != domain.UnitOccupied {
		return domain.Conflictf("unit %s is %s, expected Occupied", unitID, u.Status)
	}

	start := end
	if u.OccupancyStartDate != nil {
		start = *u.OccupancyStartDate
	}
	days := domain.DurationDays(start, end)

	for _, occ := range s.occupants[unitID] {
		occ.IsCurrent = false
	}

	closed := false
	for _, h := range s.history[unitID] {
		if h.EndDate == nil {
			endCopy := end
			h.EndDate = &endCopy
			h.DurationDays = days
			h.ReasonForLeaving = reason
			closed = true
		}
	}
	if !closed && synthesize {
		endCopy := end
		s.history[unitID] = append(s.history[unitID], &domain.UnitHistoryRecord{
			HistoryID:        uuid.NewString(),
			UnitID:           unitID,
			OccupantName:     u.OccupantName,
			OccupantRank:     u.OccupantRank,
			SvcNo:            u.OccupantSvcNo,
			StartDate:        start,
			EndDate:          &endCopy,
			DurationDays:     days,
			ReasonForLeaving: reason,
		})
	}

	u.Status = domain.UnitVacant
	u.ClearOccupant()
	return nil
}

func (s *MemoryStore) currentOccupantLocked(unitID string) *domain.UnitOccupant {
	for _, occ := range s.occupants[unitID] {
		if occ.IsCurrent {
			return occ
		}
	}
	return nil
}
