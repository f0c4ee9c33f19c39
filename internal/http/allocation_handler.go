package httpapi

import (
	"net/http"

	"quarters-data/internal/service"

	"go.uber.org/zap"
)

// AllocationHandler 分配流程接口
type AllocationHandler struct {
	allocService *service.AllocationService
	logger       *zap.Logger
}

func NewAllocationHandler(allocService *service.AllocationService, logger *zap.Logger) *AllocationHandler {
	return &AllocationHandler{allocService: allocService, logger: logger}
}

// List GET /api/v1/allocations
func (h *AllocationHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.allocService.ListRequests(r.Context(), service.ListRequestsRequest{
		Status: q.Get("status"),
		Page:   parseInt(q.Get("page"), 1),
		Size:   parseInt(q.Get("size"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Create POST /api/v1/allocations
func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequestRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.allocService.CreateRequest(r.Context(), actorFromRequest(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Get GET /api/v1/allocations/{id}
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request, requestID string) {
	req, err := h.allocService.GetRequest(r.Context(), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(req))
}

// Approve POST /api/v1/allocations/{id}/approve
func (h *AllocationHandler) Approve(w http.ResponseWriter, r *http.Request, requestID string) {
	resp, err := h.allocService.Approve(r.Context(), actorFromRequest(r), requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Refuse POST /api/v1/allocations/{id}/refuse
func (h *AllocationHandler) Refuse(w http.ResponseWriter, r *http.Request, requestID string) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.allocService.Refuse(r.Context(), actorFromRequest(r), service.RefuseRequestCommand{
		RequestID: requestID,
		Reason:    body.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
