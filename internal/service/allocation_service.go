package service

import (
	"context"
	"strings"
	"time"

	"quarters-data/internal/domain"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"

	"go.uber.org/zap"
)

// AllocationService 分配流程服务：request creation and the approve/refuse
// decision. All multi-row effects happen inside the repository transaction;
// the service validates, audits and dispatches letters.
type AllocationService struct {
	queueRepo repository.QueueRepository
	unitsRepo repository.UnitsRepository
	allocRepo repository.AllocationsRepository
	letters   *LetterClient
	audit     *AuditRecorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewAllocationService 创建分配流程服务
func NewAllocationService(
	queueRepo repository.QueueRepository,
	unitsRepo repository.UnitsRepository,
	allocRepo repository.AllocationsRepository,
	letters *LetterClient,
	audit *AuditRecorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AllocationService {
	return &AllocationService{
		queueRepo: queueRepo,
		unitsRepo: unitsRepo,
		allocRepo: allocRepo,
		letters:   letters,
		audit:     audit,
		metrics:   m,
		logger:    logger,
	}
}

// ListRequestsRequest 查询分配请求列表
type ListRequestsRequest struct {
	Status string
	Page   int
	Size   int
}

// ListRequestsResponse 查询分配请求列表响应
type ListRequestsResponse struct {
	Items []*domain.AllocationRequest `json:"items"`
	Total int                         `json:"total"`
}

// ListRequests 查询分配请求
func (s *AllocationService) ListRequests(ctx context.Context, req ListRequestsRequest) (*ListRequestsResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.Status != "" &&
		req.Status != domain.RequestPending &&
		req.Status != domain.RequestApproved &&
		req.Status != domain.RequestRefused {
		return nil, domain.Validationf("invalid status filter: %s", req.Status)
	}

	items, total, err := s.allocRepo.ListRequests(ctx, req.Status, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	return &ListRequestsResponse{Items: items, Total: total}, nil
}

// GetRequest 查询分配请求详情
func (s *AllocationService) GetRequest(ctx context.Context, requestID string) (*domain.AllocationRequest, error) {
	if requestID == "" {
		return nil, domain.Validationf("request_id is required")
	}
	return s.allocRepo.GetRequest(ctx, requestID)
}

// CreateRequestRequest 创建分配请求
type CreateRequestRequest struct {
	QueueID string `json:"queueId"`
	UnitID  string `json:"unitId"`
}

// CreateRequestResponse 创建分配请求响应
type CreateRequestResponse struct {
	RequestID string `json:"requestId"`
	LetterID  string `json:"letterId"`
}

// CreateRequest proposes a queue entry into a vacant unit of the same
// category. The entry's data is frozen onto the request and the queue row is
// removed; the unit stays Vacant until approval.
func (s *AllocationService) CreateRequest(ctx context.Context, actor domain.Actor, req CreateRequestRequest) (*CreateRequestResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Second)
	defer cancel()

	if req.QueueID == "" {
		return nil, domain.Validationf("queue_id is required")
	}
	if req.UnitID == "" {
		return nil, domain.Validationf("unit_id is required")
	}

	entry, err := s.queueRepo.GetEntry(ctx, req.QueueID)
	if err != nil {
		return nil, err
	}
	if entry.HasAllocationRequest {
		return nil, domain.Conflictf("queue entry %s already has an allocation request", req.QueueID)
	}
	unit, err := s.unitsRepo.GetUnit(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	// Vacancy is not checked here. The unit may be taken by the time the
	// request is decided; approval re-checks under a row lock.
	if unit.Category != entry.Category {
		return nil, domain.Validationf("category mismatch: %s entry cannot be proposed into a %s unit",
			entry.Category, unit.Category)
	}

	request := &domain.AllocationRequest{
		PersonnelID:   entry.QueueID,
		UnitID:        unit.UnitID,
		QueueID:       entry.QueueID,
		PersonnelData: marshalAudit(domain.FreezePersonnel(entry)),
		UnitData:      marshalAudit(domain.FreezeUnit(unit)),
	}
	requestID, err := s.allocRepo.CreateRequest(ctx, request)
	s.metrics.Op("allocation_create", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created allocation request",
		zap.String("request_id", requestID),
		zap.String("letter_id", request.LetterID),
		zap.String("queue_id", entry.QueueID),
		zap.String("unit_id", unit.UnitID),
	)
	s.audit.Record(ctx, actor, domain.AuditAllocationCreate, "allocation_request", requestID, nil, request)

	return &CreateRequestResponse{RequestID: requestID, LetterID: request.LetterID}, nil
}

// ApproveResponse 批准响应
type ApproveResponse struct {
	Request         *domain.AllocationRequest `json:"request"`
	Unit            *domain.LivingUnit        `json:"unit"`
	DisplacedUnitID string                    `json:"displacedUnitId,omitempty"`
}

// Approve marks a pending request approved and occupies the unit. When the
// person already occupies another unit (a pending transfer), that unit is
// vacated in the same transaction. The allocation letter is dispatched after
// commit.
func (s *AllocationService) Approve(ctx context.Context, actor domain.Actor, requestID string) (*ApproveResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Second)
	defer cancel()

	if requestID == "" {
		return nil, domain.Validationf("request_id is required")
	}
	if actor.UserID == "" {
		return nil, domain.Validationf("approver identity is required")
	}

	outcome, err := s.allocRepo.ApproveRequest(ctx, requestID, actor.UserID)
	s.metrics.Op("allocation_approve", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approved allocation request",
		zap.String("request_id", requestID),
		zap.String("letter_id", outcome.Request.LetterID),
		zap.String("unit_id", outcome.Unit.UnitID),
		zap.String("displaced_unit_id", outcome.DisplacedUnitID),
	)
	s.audit.Record(ctx, actor, domain.AuditAllocationApprove, "allocation_request", requestID, nil, outcome.Request)

	approvedAt := ""
	if outcome.Request.ApprovedAt != nil {
		approvedAt = outcome.Request.ApprovedAt.Format(time.RFC3339)
	}
	s.letters.Dispatch(AllocationLetter{
		LetterID:   outcome.Request.LetterID,
		SvcNo:      outcome.Unit.OccupantSvcNo,
		FullName:   outcome.Unit.OccupantName,
		Rank:       outcome.Unit.OccupantRank,
		UnitLabel:  outcome.Unit.Label(),
		ApprovedBy: actor.UserID,
		ApprovedAt: approvedAt,
	})

	return &ApproveResponse{
		Request:         outcome.Request,
		Unit:            outcome.Unit,
		DisplacedUnitID: outcome.DisplacedUnitID,
	}, nil
}

// RefuseRequestCommand 拒绝请求
type RefuseRequestCommand struct {
	RequestID string `json:"requestId"`
	Reason    string `json:"reason"`
}

// RefuseResponse 拒绝响应
type RefuseResponse struct {
	QueueID string `json:"queueId"` // the re-materialized front-of-queue entry
}

// Refuse deletes a pending request and puts the person back at the front of
// the queue with a clean allocation flag.
func (s *AllocationService) Refuse(ctx context.Context, actor domain.Actor, cmd RefuseRequestCommand) (*RefuseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Second)
	defer cancel()

	if cmd.RequestID == "" {
		return nil, domain.Validationf("request_id is required")
	}
	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, domain.Validationf("reason is required")
	}

	outcome, err := s.allocRepo.RefuseRequest(ctx, cmd.RequestID, strings.TrimSpace(cmd.Reason))
	s.metrics.Op("allocation_refuse", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Refused allocation request",
		zap.String("request_id", cmd.RequestID),
		zap.String("queue_id", outcome.QueueID),
		zap.String("reason", cmd.Reason),
	)
	s.audit.Record(ctx, actor, domain.AuditAllocationRefuse, "allocation_request", cmd.RequestID, outcome.Request, nil)

	return &RefuseResponse{QueueID: outcome.QueueID}, nil
}
