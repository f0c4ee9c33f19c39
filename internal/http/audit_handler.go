package httpapi

import (
	"net/http"

	"quarters-data/internal/repository"

	"go.uber.org/zap"
)

// AuditHandler 审计台账接口（read-only）
type AuditHandler struct {
	auditRepo repository.AuditRepository
	logger    *zap.Logger
}

func NewAuditHandler(auditRepo repository.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{auditRepo: auditRepo, logger: logger}
}

// List GET /api/v1/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, total, err := h.auditRepo.ListAudit(r.Context(), repository.AuditFilters{
		UserID:     q.Get("userId"),
		Action:     q.Get("action"),
		EntityType: q.Get("entityType"),
	}, parseInt(q.Get("page"), 1), parseInt(q.Get("size"), 50))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": entries, "total": total}))
}
