package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"quarters-data/internal/domain"
)

// MemoryStore backs all four repositories with in-process state: unit tests
// and DB-less development runs use it in place of Postgres. The workflow
// methods hold the store mutex end to end, which gives the same
// all-or-nothing visibility the Postgres transactions give.
type MemoryStore struct {
	mu sync.RWMutex

	queue     []*domain.QueueEntry // index i holds sequence i+1
	units     map[string]*domain.LivingUnit
	requests  map[string]*domain.AllocationRequest
	occupants map[string][]*domain.UnitOccupant
	history   map[string][]*domain.UnitHistoryRecord
	past      []*domain.PastAllocation
	audit     []*domain.AuditEntry
	letterSeq map[int]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:     map[string]*domain.LivingUnit{},
		requests:  map[string]*domain.AllocationRequest{},
		occupants: map[string][]*domain.UnitOccupant{},
		history:   map[string][]*domain.UnitHistoryRecord{},
		letterSeq: map[int]int{},
	}
}

var (
	_ QueueRepository       = (*MemoryStore)(nil)
	_ UnitsRepository       = (*MemoryStore)(nil)
	_ AllocationsRepository = (*MemoryStore)(nil)
	_ AuditRepository       = (*MemoryStore)(nil)
)

// renumberLocked restores the dense [1..N] contract after any splice.
func (s *MemoryStore) renumberLocked() {
	for i, e := range s.queue {
		e.Sequence = i + 1
	}
}

func (s *MemoryStore) queueIndexLocked(queueID string) int {
	for i, e := range s.queue {
		if e.QueueID == queueID {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) queueBySvcNoLocked(svcNo string) *domain.QueueEntry {
	for _, e := range s.queue {
		if e.SvcNo == svcNo {
			return e
		}
	}
	return nil
}

func cloneEntry(e *domain.QueueEntry) *domain.QueueEntry {
	c := *e
	c.Dependents = append([]domain.Dependent{}, e.Dependents...)
	return &c
}

// ============================================
// QueueRepository
// ============================================

func (s *MemoryStore) ListEntries(_ context.Context, filters QueueFilters, page, size int) ([]*domain.QueueEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.QueueEntry{}
	for _, e := range s.queue {
		if !filters.IncludeAllocated && e.HasAllocationRequest {
			continue
		}
		if filters.Category != "" && e.Category != filters.Category {
			continue
		}
		if filters.Search != "" {
			needle := strings.ToLower(filters.Search)
			if !strings.Contains(strings.ToLower(e.SvcNo), needle) &&
				!strings.Contains(strings.ToLower(e.FullName), needle) {
				continue
			}
		}
		matched = append(matched, cloneEntry(e))
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

func (s *MemoryStore) GetEntry(_ context.Context, queueID string) (*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.queueIndexLocked(queueID)
	if idx < 0 {
		return nil, domain.NotFoundf("queue entry not found: %s", queueID)
	}
	return cloneEntry(s.queue[idx]), nil
}

func (s *MemoryStore) GetEntryBySvcNo(_ context.Context, svcNo string) (*domain.QueueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.queueBySvcNoLocked(svcNo)
	if e == nil {
		return nil, domain.NotFoundf("queue entry not found: svc_no=%s", svcNo)
	}
	return cloneEntry(e), nil
}

func (s *MemoryStore) CreateEntry(_ context.Context, entry *domain.QueueEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendEntryLocked(entry)
}

func (s *MemoryStore) appendEntryLocked(entry *domain.QueueEntry) (string, error) {
	if s.queueBySvcNoLocked(entry.SvcNo) != nil {
		return "", domain.Conflictf("service number %s already exists", entry.SvcNo)
	}
	c := cloneEntry(entry)
	c.QueueID = uuid.NewString()
	if c.DateAdded.IsZero() {
		c.DateAdded = time.Now()
	}
	s.queue = append(s.queue, c)
	s.renumberLocked()
	entry.QueueID = c.QueueID
	entry.Sequence = c.Sequence
	return c.QueueID, nil
}

func (s *MemoryStore) insertEntryAtFrontLocked(entry *domain.QueueEntry) string {
	c := cloneEntry(entry)
	c.QueueID = uuid.NewString()
	if c.DateAdded.IsZero() {
		c.DateAdded = time.Now()
	}
	s.queue = append([]*domain.QueueEntry{c}, s.queue...)
	s.renumberLocked()
	entry.QueueID = c.QueueID
	entry.Sequence = 1
	return c.QueueID
}

func (s *MemoryStore) RemoveEntry(_ context.Context, queueID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeEntryLocked(queueID)
}

func (s *MemoryStore) removeEntryLocked(queueID string) error {
	idx := s.queueIndexLocked(queueID)
	if idx < 0 {
		return domain.NotFoundf("queue entry not found: %s", queueID)
	}
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	s.renumberLocked()
	return nil
}

func (s *MemoryStore) moveEntryToFrontLocked(queueID string) error {
	idx := s.queueIndexLocked(queueID)
	if idx < 0 {
		return domain.NotFoundf("queue entry not found: %s", queueID)
	}
	e := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	s.queue = append([]*domain.QueueEntry{e}, s.queue...)
	s.renumberLocked()
	return nil
}

func (s *MemoryStore) CountEntries(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue), nil
}

func (s *MemoryStore) Sequences(_ context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int, 0, len(s.queue))
	for _, e := range s.queue {
		out = append(out, e.Sequence)
	}
	sort.Ints(out)
	return out, nil
}

func (s *MemoryStore) CurrentUnitNames(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	out := []string{}
	for _, e := range s.queue {
		if e.CurrentUnit == "" || seen[e.CurrentUnit] {
			continue
		}
		seen[e.CurrentUnit] = true
		out = append(out, e.CurrentUnit)
	}
	sort.Strings(out)
	return out, nil
}

// ============================================
// AuditRepository
// ============================================

func (s *MemoryStore) InsertAudit(_ context.Context, entry *domain.AuditEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *entry
	c.AuditID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.audit = append(s.audit, &c)
	entry.AuditID = c.AuditID
	return c.AuditID, nil
}

func (s *MemoryStore) ListAudit(_ context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []*domain.AuditEntry{}
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filters.UserID != "" && e.UserID != filters.UserID {
			continue
		}
		if filters.Action != "" && e.Action != filters.Action {
			continue
		}
		if filters.EntityType != "" && e.EntityType != filters.EntityType {
			continue
		}
		c := *e
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
