package httpapi

import (
	"net/http"

	"quarters-data/internal/service"

	"go.uber.org/zap"
)

// QueueHandler 队列接口
type QueueHandler struct {
	queueService *service.QueueService
	logger       *zap.Logger
}

func NewQueueHandler(queueService *service.QueueService, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{queueService: queueService, logger: logger}
}

// List GET /api/v1/queue
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.queueService.ListQueue(r.Context(), service.ListQueueRequest{
		Category:         q.Get("category"),
		Search:           q.Get("search"),
		IncludeAllocated: q.Get("includeAllocated") == "true",
		Page:             parseInt(q.Get("page"), 1),
		Size:             parseInt(q.Get("size"), 50),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Create POST /api/v1/queue
func (h *QueueHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.AddEntryRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	resp, err := h.queueService.AddEntry(r.Context(), actorFromRequest(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Get GET /api/v1/queue/{id}
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request, queueID string) {
	entry, err := h.queueService.GetEntry(r.Context(), queueID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(entry))
}

// Delete DELETE /api/v1/queue/{id}
func (h *QueueHandler) Delete(w http.ResponseWriter, r *http.Request, queueID string) {
	if err := h.queueService.RemoveEntry(r.Context(), actorFromRequest(r), queueID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"queueId": queueID}))
}

// CurrentUnits GET /api/v1/queue/current-units
func (h *QueueHandler) CurrentUnits(w http.ResponseWriter, r *http.Request) {
	names, err := h.queueService.CurrentUnitNames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(names))
}

// Check GET /api/v1/queue/check
func (h *QueueHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp, err := h.queueService.CheckSequences(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Export GET /api/v1/queue/export （xlsx 下载）
func (h *QueueHandler) Export(w http.ResponseWriter, r *http.Request) {
	resp, err := h.queueService.ListQueue(r.Context(), service.ListQueueRequest{Page: 1, Size: 10000})
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := buildQueueWorkbook(resp.Items)
	if err != nil {
		h.logger.Error("Failed to build queue workbook", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build workbook"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="queue.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
