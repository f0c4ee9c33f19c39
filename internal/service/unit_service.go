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

// UnitService 住房单元服务：register CRUD plus the occupancy operations
// (transfer, deallocation) that move people between units.
type UnitService struct {
	unitsRepo repository.UnitsRepository
	allocRepo repository.AllocationsRepository
	audit     *AuditRecorder
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewUnitService 创建住房单元服务
func NewUnitService(
	unitsRepo repository.UnitsRepository,
	allocRepo repository.AllocationsRepository,
	audit *AuditRecorder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *UnitService {
	return &UnitService{
		unitsRepo: unitsRepo,
		allocRepo: allocRepo,
		audit:     audit,
		metrics:   m,
		logger:    logger,
	}
}

// ListUnitsRequest 查询单元列表请求
type ListUnitsRequest struct {
	QuarterName string
	Location    string
	Category    string
	Status      string
	Search      string
	Page        int
	Size        int
}

// ListUnitsResponse 查询单元列表响应
type ListUnitsResponse struct {
	Items []*domain.LivingUnit `json:"items"`
	Total int                  `json:"total"`
}

// ListUnits 查询单元列表
func (s *UnitService) ListUnits(ctx context.Context, req ListUnitsRequest) (*ListUnitsResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Size <= 0 {
		req.Size = 50
	}
	if req.Status != "" && req.Status != domain.UnitVacant && req.Status != domain.UnitOccupied && req.Status != domain.UnitNotInUse {
		return nil, domain.Validationf("invalid status filter: %s", req.Status)
	}

	units, total, err := s.unitsRepo.ListUnits(ctx, repository.UnitFilters{
		QuarterName: strings.TrimSpace(req.QuarterName),
		Location:    strings.TrimSpace(req.Location),
		Category:    req.Category,
		Status:      req.Status,
		Search:      strings.TrimSpace(req.Search),
	}, req.Page, req.Size)
	if err != nil {
		return nil, err
	}
	return &ListUnitsResponse{Items: units, Total: total}, nil
}

// UnitDetailResponse 单元详情：unit plus occupancy history spans.
type UnitDetailResponse struct {
	Unit    *domain.LivingUnit          `json:"unit"`
	History []*domain.UnitHistoryRecord `json:"history"`
}

// GetUnit 查询单元详情（含占用历史）
func (s *UnitService) GetUnit(ctx context.Context, unitID string) (*UnitDetailResponse, error) {
	if unitID == "" {
		return nil, domain.Validationf("unit_id is required")
	}
	unit, err := s.unitsRepo.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	history, err := s.allocRepo.ListUnitHistory(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return &UnitDetailResponse{Unit: unit, History: history}, nil
}

// SaveUnitRequest 创建/更新单元请求（descriptive attributes only）
type SaveUnitRequest struct {
	QuarterName       string `json:"quarterName"`
	Location          string `json:"location"`
	Category          string `json:"category"`
	AccommodationType string `json:"accommodationType"`
	NoOfRooms         int    `json:"noOfRooms"`
	OccupancyType     string `json:"occupancyType"`
	BoysQuarters      bool   `json:"boysQuarters"`
	BQRooms           int    `json:"bqRooms"`
	BlockName         string `json:"blockName"`
	FlatHouseRoomName string `json:"flatHouseRoomName"`
}

func (r *SaveUnitRequest) validate() error {
	if strings.TrimSpace(r.QuarterName) == "" {
		return domain.Validationf("quarter_name is required")
	}
	if strings.TrimSpace(r.FlatHouseRoomName) == "" {
		return domain.Validationf("flat_house_room_name is required")
	}
	if err := validateCategory(r.Category); err != nil {
		return err
	}
	if r.NoOfRooms < 0 || r.BQRooms < 0 {
		return domain.Validationf("room counts cannot be negative")
	}
	return nil
}

func (r *SaveUnitRequest) toUnit() *domain.LivingUnit {
	return &domain.LivingUnit{
		QuarterName:       strings.TrimSpace(r.QuarterName),
		Location:          strings.TrimSpace(r.Location),
		Category:          r.Category,
		AccommodationType: strings.TrimSpace(r.AccommodationType),
		NoOfRooms:         r.NoOfRooms,
		OccupancyType:     strings.TrimSpace(r.OccupancyType),
		BoysQuarters:      r.BoysQuarters,
		BQRooms:           r.BQRooms,
		BlockName:         strings.TrimSpace(r.BlockName),
		FlatHouseRoomName: strings.TrimSpace(r.FlatHouseRoomName),
	}
}

// CreateUnitResponse 创建单元响应
type CreateUnitResponse struct {
	UnitID string `json:"unitId"`
}

// CreateUnit 登记一个新单元（初始 Vacant）
func (s *UnitService) CreateUnit(ctx context.Context, actor domain.Actor, req SaveUnitRequest) (*CreateUnitResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	unit := req.toUnit()
	unit.Status = domain.UnitVacant
	unitID, err := s.unitsRepo.CreateUnit(ctx, unit)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Created living unit",
		zap.String("unit_id", unitID),
		zap.String("label", unit.Label()),
	)
	s.audit.Record(ctx, actor, domain.AuditUnitCreate, "living_unit", unitID, nil, unit)
	return &CreateUnitResponse{UnitID: unitID}, nil
}

// UpdateUnit 更新单元描述属性。Status and the occupant snapshot cannot be
// edited here; only the occupancy operations change them.
func (s *UnitService) UpdateUnit(ctx context.Context, actor domain.Actor, unitID string, req SaveUnitRequest) error {
	if unitID == "" {
		return domain.Validationf("unit_id is required")
	}
	if err := req.validate(); err != nil {
		return err
	}

	before, err := s.unitsRepo.GetUnit(ctx, unitID)
	if err != nil {
		return err
	}
	if err := s.unitsRepo.UpdateUnit(ctx, unitID, req.toUnit()); err != nil {
		return err
	}

	s.audit.Record(ctx, actor, domain.AuditUnitUpdate, "living_unit", unitID, before, req)
	return nil
}

// TransferRequest 单元间调房请求
type TransferRequest struct {
	FromUnitID string `json:"fromUnitId"`
	ToUnitID   string `json:"toUnitId"`
}

// TransferResponse 调房响应
type TransferResponse struct {
	FromUnit          *domain.LivingUnit `json:"fromUnit"`
	ToUnit            *domain.LivingUnit `json:"toUnit"`
	RevertedRequestID string             `json:"revertedRequestId,omitempty"`
}

// Transfer moves the occupant of one unit toward another: the source is
// vacated and archived, and the occupant's approved request (when one exists)
// reverts to pending against the destination. The destination stays Vacant
// until that request is approved again.
func (s *UnitService) Transfer(ctx context.Context, actor domain.Actor, req TransferRequest) (*TransferResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Second)
	defer cancel()

	if req.FromUnitID == "" || req.ToUnitID == "" {
		return nil, domain.Validationf("from_unit_id and to_unit_id are required")
	}
	if req.FromUnitID == req.ToUnitID {
		return nil, domain.Validationf("cannot transfer a unit to itself")
	}

	outcome, err := s.allocRepo.TransferOccupant(ctx, req.FromUnitID, req.ToUnitID)
	s.metrics.Op("transfer", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Transferred occupant",
		zap.String("from_unit", req.FromUnitID),
		zap.String("to_unit", req.ToUnitID),
		zap.String("reverted_request", outcome.RevertedRequestID),
	)
	s.audit.Record(ctx, actor, domain.AuditUnitTransfer, "living_unit", req.FromUnitID, nil, map[string]string{
		"fromUnitId":        req.FromUnitID,
		"toUnitId":          req.ToUnitID,
		"revertedRequestId": outcome.RevertedRequestID,
	})

	return &TransferResponse{
		FromUnit:          outcome.FromUnit,
		ToUnit:            outcome.ToUnit,
		RevertedRequestID: outcome.RevertedRequestID,
	}, nil
}

// DeallocateRequest 退房请求
type DeallocateRequest struct {
	UnitID string `json:"unitId"`
	Reason string `json:"reason"`
}

// Deallocate vacates an occupied unit and archives the tenure as a past
// allocation. Reason is mandatory: the archive row must say why the person
// left.
func (s *UnitService) Deallocate(ctx context.Context, actor domain.Actor, req DeallocateRequest) (*domain.LivingUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, 100*time.Second)
	defer cancel()

	if req.UnitID == "" {
		return nil, domain.Validationf("unit_id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, domain.Validationf("reason is required")
	}

	outcome, err := s.allocRepo.DeallocateUnit(ctx, req.UnitID, strings.TrimSpace(req.Reason))
	s.metrics.Op("deallocate", err)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Deallocated unit",
		zap.String("unit_id", req.UnitID),
		zap.String("reason", req.Reason),
	)
	s.audit.Record(ctx, actor, domain.AuditUnitDeallocate, "living_unit", req.UnitID, nil, outcome.Past)
	return outcome.Unit, nil
}

// ListPastAllocationsResponse 历史分配归档
type ListPastAllocationsResponse struct {
	Items []*domain.PastAllocation `json:"items"`
	Total int                      `json:"total"`
}

// ListPastAllocations 查询归档的历史分配（新的在前）
func (s *UnitService) ListPastAllocations(ctx context.Context, page, size int) (*ListPastAllocationsResponse, error) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	items, total, err := s.allocRepo.ListPastAllocations(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return &ListPastAllocationsResponse{Items: items, Total: total}, nil
}
