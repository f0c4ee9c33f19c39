package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"quarters-data/internal/config"
	"quarters-data/internal/domain"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"
	"quarters-data/internal/store"

	"go.uber.org/zap"
)

// importStatusTTL keeps finished progress records readable for a while after
// the batch completes.
const importStatusTTL = 30 * time.Minute

// ImportService 批量导入服务：reconciles a legacy spreadsheet of existing
// allocations into the queue, unit register and request ledger in one batch.
type ImportService struct {
	allocRepo repository.AllocationsRepository
	kv        store.KV
	audit     *AuditRecorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       config.ImportConfig
}

// NewImportService 创建批量导入服务
func NewImportService(
	allocRepo repository.AllocationsRepository,
	kv store.KV,
	audit *AuditRecorder,
	m *metrics.Metrics,
	cfg config.ImportConfig,
	logger *zap.Logger,
) *ImportService {
	return &ImportService{
		allocRepo: allocRepo,
		kv:        kv,
		audit:     audit,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// ImportProgress is the JSON payload mirrored to the KV store under
// import:status:<actor> while a batch runs.
type ImportProgress struct {
	State     string `json:"state"` // running | done | failed
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	UpdatedAt string `json:"updatedAt"`
}

// ImportRows reconciles a parsed batch. Each row becomes a hidden queue
// entry, an occupied unit (matched by address or synthesized) and a
// pre-approved request. Rows that fail validation are skipped and reported;
// infrastructure errors abort the whole batch.
func (s *ImportService) ImportRows(ctx context.Context, actor domain.Actor, rows []domain.ImportRow) (*domain.ImportResult, error) {
	if len(rows) == 0 {
		return nil, domain.Validationf("no rows to import")
	}
	if s.cfg.MaxRows > 0 && len(rows) > s.cfg.MaxRows {
		return nil, domain.Validationf("batch too large: %d rows (limit %d)", len(rows), s.cfg.MaxRows)
	}

	timeout := time.Duration(s.cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records := make([]*repository.ImportRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, s.buildRecord(row))
	}

	statusKey := "import:status:" + actor.UserID
	s.setProgress(statusKey, ImportProgress{State: "running", Total: len(records)})

	result, err := s.allocRepo.ImportBatch(ctx, records, actor.UserID, func(done, total int) {
		s.setProgress(statusKey, ImportProgress{State: "running", Done: done, Total: total})
	})
	if err != nil {
		s.setProgress(statusKey, ImportProgress{State: "failed", Total: len(records)})
		s.metrics.Op("import", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.Conflictf("import timed out after %s; retry with fewer records", timeout)
		}
		return nil, fmt.Errorf("failed to import batch: %w", err)
	}

	s.setProgress(statusKey, ImportProgress{State: "done", Done: len(records), Total: len(records)})
	s.metrics.Op("import", nil)
	s.metrics.ImportRows.WithLabelValues("imported").Add(float64(result.Imported))
	s.metrics.ImportRows.WithLabelValues("skipped").Add(float64(result.Skipped))

	s.logger.Info("Imported allocation batch",
		zap.Int("rows", len(records)),
		zap.Int("imported", result.Imported),
		zap.Int("skipped", result.Skipped),
	)
	s.audit.Record(ctx, actor, domain.AuditImport, "import_batch", "", nil, result)

	return result, nil
}

// Progress returns the last mirrored progress for the actor, or nil when no
// batch has run recently.
func (s *ImportService) Progress(ctx context.Context, actor domain.Actor) (*ImportProgress, error) {
	raw, err := s.kv.Get(ctx, "import:status:"+actor.UserID)
	if err != nil {
		if errors.Is(err, store.ErrMiss) {
			return nil, nil
		}
		return nil, err
	}
	var p ImportProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode import progress: %w", err)
	}
	return &p, nil
}

func (s *ImportService) setProgress(key string, p ImportProgress) {
	p.UpdatedAt = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	// Progress is advisory; a KV outage must not break the import.
	if err := s.kv.Set(context.Background(), key, string(data), importStatusTTL); err != nil {
		s.logger.Warn("Failed to mirror import progress", zap.Error(err))
	}
}

// buildRecord normalizes a raw row into an import record: trimmed fields,
// inferred category, dependent slots expanded and split, and the allocation
// start date parsed (falling back to now).
func (s *ImportService) buildRecord(row domain.ImportRow) *repository.ImportRecord {
	deps := row.DependentList()
	adults, children := domain.SplitDependents(deps)
	category := domain.InferCategory(row.Category, row.Rank)

	entry := &domain.QueueEntry{
		SvcNo:           strings.TrimSpace(row.SvcNo),
		FullName:        strings.TrimSpace(row.FullName),
		Category:        category,
		Rank:            strings.TrimSpace(row.Rank),
		MaritalStatus:   strings.TrimSpace(row.MaritalStatus),
		CurrentUnit:     strings.TrimSpace(row.CurrentUnit),
		Appointment:     strings.TrimSpace(row.Appointment),
		AdultDependents: adults,
		ChildDependents: children,
		Dependents:      deps,
	}

	start := time.Now()
	if row.DateAllocated != "" {
		if t, err := time.Parse("2006-01-02", strings.TrimSpace(row.DateAllocated)); err == nil {
			start = t
		}
	}

	return &repository.ImportRecord{
		Entry:             entry,
		QuarterName:       strings.TrimSpace(row.QuarterName),
		Location:          strings.TrimSpace(row.Location),
		BlockName:         strings.TrimSpace(row.BlockName),
		FlatHouseRoomName: strings.TrimSpace(row.FlatHouseRoomName),
		Category:          category,
		AccommodationType: strings.TrimSpace(row.AccommodationType),
		OccupancyType:     strings.TrimSpace(row.OccupancyType),
		Start:             start,
	}
}
