package service

import (
	"context"
	"strings"

	"quarters-data/internal/domain"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"

	"go.uber.org/zap"
)

// QueueService 排队队列服务
type QueueService struct {
	queueRepo repository.QueueRepository
	audit     *AuditRecorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewQueueService 创建队列服务
func NewQueueService(queueRepo repository.QueueRepository, audit *AuditRecorder, m *metrics.Metrics, logger *zap.Logger) *QueueService {
	return &QueueService{
		queueRepo: queueRepo,
		audit:     audit,
		metrics:   m,
		logger:    logger,
	}
}

// refreshQueueGauge keeps the queue-length gauge in step with the ledger.
// Advisory: a count failure never fails the calling operation.
func (s *QueueService) refreshQueueGauge(ctx context.Context) {
	n, err := s.queueRepo.CountEntries(ctx)
	if err != nil {
		return
	}
	s.metrics.QueueLength.Set(float64(n))
}

// ListQueueRequest 查询队列请求
type ListQueueRequest struct {
	Category         string
	Search           string
	IncludeAllocated bool
	Page             int
	Size             int
}

// ListQueueResponse 查询队列响应
type ListQueueResponse struct {
	Items []*domain.QueueEntry `json:"items"`
	Total int                  `json:"total"`
}

// ListQueue 查询队列（按 sequence 升序）
func (s *QueueService) ListQueue(ctx context.Context, req ListQueueRequest) (*ListQueueResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.Category != "" {
		if err := validateCategory(req.Category); err != nil {
			return nil, err
		}
	}

	entries, total, err := s.queueRepo.ListEntries(ctx, repository.QueueFilters{
		Category:         req.Category,
		Search:           strings.TrimSpace(req.Search),
		IncludeAllocated: req.IncludeAllocated,
	}, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	return &ListQueueResponse{Items: entries, Total: total}, nil
}

// GetEntry 查询队列条目
func (s *QueueService) GetEntry(ctx context.Context, queueID string) (*domain.QueueEntry, error) {
	if queueID == "" {
		return nil, domain.Validationf("queue_id is required")
	}
	return s.queueRepo.GetEntry(ctx, queueID)
}

// AddEntryRequest 加入队列请求
type AddEntryRequest struct {
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

// AddEntryResponse 加入队列响应
type AddEntryResponse struct {
	QueueID  string `json:"queueId"`
	Sequence int    `json:"sequence"`
}

// AddEntry 追加队列条目（sequence = N+1）
func (s *QueueService) AddEntry(ctx context.Context, actor domain.Actor, req AddEntryRequest) (*AddEntryResponse, error) {
	req.SvcNo = strings.TrimSpace(req.SvcNo)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.SvcNo == "" {
		return nil, domain.Validationf("svc_no is required")
	}
	if req.FullName == "" {
		return nil, domain.Validationf("full_name is required")
	}
	if err := validateCategory(req.Category); err != nil {
		return nil, err
	}
	if req.AdultDependents < 0 || req.ChildDependents < 0 {
		return nil, domain.Validationf("dependent counts cannot be negative")
	}

	entry := &domain.QueueEntry{
		SvcNo:           req.SvcNo,
		FullName:        req.FullName,
		Category:        req.Category,
		Rank:            strings.TrimSpace(req.Rank),
		MaritalStatus:   strings.TrimSpace(req.MaritalStatus),
		CurrentUnit:     strings.TrimSpace(req.CurrentUnit),
		Appointment:     strings.TrimSpace(req.Appointment),
		AdultDependents: req.AdultDependents,
		ChildDependents: req.ChildDependents,
	}
	queueID, err := s.queueRepo.CreateEntry(ctx, entry)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Added queue entry",
		zap.String("queue_id", queueID),
		zap.String("svc_no", entry.SvcNo),
		zap.Int("sequence", entry.Sequence),
	)
	s.audit.Record(ctx, actor, domain.AuditQueueCreate, "queue_entry", queueID, nil, entry)
	s.refreshQueueGauge(ctx)

	return &AddEntryResponse{QueueID: queueID, Sequence: entry.Sequence}, nil
}

// RemoveEntry 删除队列条目并收紧序号
func (s *QueueService) RemoveEntry(ctx context.Context, actor domain.Actor, queueID string) error {
	if queueID == "" {
		return domain.Validationf("queue_id is required")
	}

	entry, err := s.queueRepo.GetEntry(ctx, queueID)
	if err != nil {
		return err
	}
	if err := s.queueRepo.RemoveEntry(ctx, queueID); err != nil {
		return err
	}

	s.logger.Info("Removed queue entry",
		zap.String("queue_id", queueID),
		zap.String("svc_no", entry.SvcNo),
	)
	s.audit.Record(ctx, actor, domain.AuditQueueRemove, "queue_entry", queueID, entry, nil)
	s.refreshQueueGauge(ctx)
	return nil
}

// CurrentUnitNames 返回队列中出现过的去重 current_unit 值，供前端在录入时
// 归一化自由文本。
func (s *QueueService) CurrentUnitNames(ctx context.Context) ([]string, error) {
	return s.queueRepo.CurrentUnitNames(ctx)
}

// CheckSequenceResponse 队列稠密性体检结果
type CheckSequenceResponse struct {
	Count      int   `json:"count"`
	Dense      bool  `json:"dense"`
	Gaps       []int `json:"gaps"` // expected values that are missing
	Duplicates []int `json:"duplicates"`
}

// CheckSequences verifies the dense [1..N] invariant and reports any gaps or
// duplicates. A healthy ledger returns Dense=true with empty slices.
func (s *QueueService) CheckSequences(ctx context.Context) (*CheckSequenceResponse, error) {
	seqs, err := s.queueRepo.Sequences(ctx)
	if err != nil {
		return nil, err
	}

	resp := &CheckSequenceResponse{Count: len(seqs), Dense: true, Gaps: []int{}, Duplicates: []int{}}
	seen := map[int]bool{}
	for _, v := range seqs {
		if seen[v] {
			resp.Duplicates = append(resp.Duplicates, v)
		}
		seen[v] = true
	}
	for want := 1; want <= len(seqs); want++ {
		if !seen[want] {
			resp.Gaps = append(resp.Gaps, want)
		}
	}
	if len(resp.Gaps) > 0 || len(resp.Duplicates) > 0 {
		resp.Dense = false
	}
	return resp, nil
}

func validateCategory(category string) error {
	if category != domain.CategoryOfficer && category != domain.CategoryNCO {
		return domain.Validationf("invalid category: %s (expected %s or %s)",
			category, domain.CategoryOfficer, domain.CategoryNCO)
	}
	return nil
}
