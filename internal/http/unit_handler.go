package httpapi

import (
	"net/http"

	"quarters-data/internal/service"

	"go.uber.org/zap"
)

// UnitHandler 住房单元接口
type UnitHandler struct {
	unitService *service.UnitService
	logger      *zap.Logger
}

func NewUnitHandler(unitService *service.UnitService, logger *zap.Logger) *UnitHandler {
	return &UnitHandler{unitService: unitService, logger: logger}
}

// List GET /api/v1/units
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.unitService.ListUnits(r.Context(), service.ListUnitsRequest{
		QuarterName: q.Get("quarterName"),
		Location:    q.Get("location"),
		Category:    q.Get("category"),
		Status:      q.Get("status"),
		Search:      q.Get("search"),
		Page:        parseInt(q.Get("page"), 1),
		Size:        parseInt(q.Get("size"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Create POST /api/v1/units
func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.SaveUnitRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.unitService.CreateUnit(r.Context(), actorFromRequest(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Get GET /api/v1/units/{id}
func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request, unitID string) {
	resp, err := h.unitService.GetUnit(r.Context(), unitID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Update PUT /api/v1/units/{id}
func (h *UnitHandler) Update(w http.ResponseWriter, r *http.Request, unitID string) {
	var req service.SaveUnitRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.unitService.UpdateUnit(r.Context(), actorFromRequest(r), unitID, req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"unitId": unitID}))
}

// Transfer POST /api/v1/units/transfer
func (h *UnitHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.unitService.Transfer(r.Context(), actorFromRequest(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Deallocate POST /api/v1/units/deallocate
func (h *UnitHandler) Deallocate(w http.ResponseWriter, r *http.Request) {
	var req service.DeallocateRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	unit, err := h.unitService.Deallocate(r.Context(), actorFromRequest(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(unit))
}

// PastAllocations GET /api/v1/past-allocations
func (h *UnitHandler) PastAllocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.unitService.ListPastAllocations(r.Context(),
		parseInt(q.Get("page"), 1), parseInt(q.Get("size"), 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
