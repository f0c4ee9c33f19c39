package httpapi

import (
	"net/http"

	"quarters-data/internal/domain"
	"quarters-data/internal/service"

	"go.uber.org/zap"
)

// maxImportUpload caps the accepted workbook size.
const maxImportUpload = 20 << 20 // 20 MiB

// ImportHandler 批量导入接口
type ImportHandler struct {
	importService *service.ImportService
	logger        *zap.Logger
}

func NewImportHandler(importService *service.ImportService, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{importService: importService, logger: logger}
}

// Template GET /api/v1/import/template （xlsx 下载）
func (h *ImportHandler) Template(w http.ResponseWriter, r *http.Request) {
	data, err := GenerateImportTemplate()
	if err != nil {
		h.logger.Error("Failed to build import template", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to build template"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="import_template.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Upload POST /api/v1/import （multipart form, field "file"）
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid multipart form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("missing file field"))
		return
	}
	defer file.Close()

	rows, err := parseImportWorkbook(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	h.runImport(w, r, rows)
}

// UploadJSON POST /api/v1/import/rows （pre-parsed rows, JSON body）
func (h *ImportHandler) UploadJSON(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rows []domain.ImportRow `json:"rows"`
	}
	if err := readBodyJSON(r, maxImportUpload, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	h.runImport(w, r, body.Rows)
}

func (h *ImportHandler) runImport(w http.ResponseWriter, r *http.Request, rows []domain.ImportRow) {
	result, err := h.importService.ImportRows(r.Context(), actorFromRequest(r), rows)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(result))
}

// Progress GET /api/v1/import/progress
func (h *ImportHandler) Progress(w http.ResponseWriter, r *http.Request) {
	p, err := h.importService.Progress(r.Context(), actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(p))
}
