package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quarters-data/internal/config"
	"quarters-data/internal/metrics"
	"quarters-data/internal/repository"
	"quarters-data/internal/service"
	"quarters-data/internal/store"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	logger := zap.NewNop()
	mem := repository.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	audit := service.NewAuditRecorder(mem, logger)
	letters := service.NewLetterClient(config.LetterConfig{}, logger)

	router := NewRouter(m, logger)
	router.RegisterQueueRoutes(NewQueueHandler(service.NewQueueService(mem, audit, m, logger), logger))
	router.RegisterUnitRoutes(NewUnitHandler(service.NewUnitService(mem, mem, audit, m, logger), logger))
	router.RegisterAllocationRoutes(NewAllocationHandler(
		service.NewAllocationService(mem, mem, mem, letters, audit, m, logger), logger))
	router.RegisterImportRoutes(NewImportHandler(
		service.NewImportService(mem, store.NewMemoryKV(), audit, m, config.ImportConfig{MaxRows: 100, TimeoutSec: 60}, logger), logger))
	router.RegisterAuditRoutes(NewAuditHandler(mem, logger))
	return router
}

type envelope struct {
	Code    int             `json:"code"`
	Type    string          `json:"type"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func doJSON(t *testing.T, router *Router, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "admin-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env),
		"body: %s", rec.Body.String())
	return rec.Code, env
}

func decodeResult(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Result, out))
}

func TestQueueEndpoints(t *testing.T) {
	router := newTestRouter(t)

	status, env := doJSON(t, router, http.MethodPost, "/api/v1/queue", map[string]any{
		"svcNo":    "N/12345",
		"fullName": "John Okoro",
		"category": "Officer",
		"rank":     "Maj",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, ResultSuccess, env.Code)

	var created struct {
		QueueID  string `json:"queueId"`
		Sequence int    `json:"sequence"`
	}
	decodeResult(t, env, &created)
	assert.NotEmpty(t, created.QueueID)
	assert.Equal(t, 1, created.Sequence)

	status, env = doJSON(t, router, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	}
	decodeResult(t, env, &list)
	assert.Equal(t, 1, list.Total)

	status, env = doJSON(t, router, http.MethodGet, "/api/v1/queue/"+created.QueueID, nil)
	require.Equal(t, http.StatusOK, status)

	status, env = doJSON(t, router, http.MethodGet, "/api/v1/queue/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, "error", env.Type)

	status, _ = doJSON(t, router, http.MethodGet, "/api/v1/queue/check", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestQueueCreate_ValidationMapsTo400(t *testing.T) {
	router := newTestRouter(t)

	status, env := doJSON(t, router, http.MethodPost, "/api/v1/queue", map[string]any{
		"fullName": "No Service Number",
		"category": "Officer",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ResultError, env.Code)
	assert.Contains(t, env.Message, "svc_no")
}

func TestAllocationWorkflowOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	_, env := doJSON(t, router, http.MethodPost, "/api/v1/queue", map[string]any{
		"svcNo": "N/12345", "fullName": "John Okoro", "category": "Officer", "rank": "Maj",
	})
	var entry struct {
		QueueID string `json:"queueId"`
	}
	decodeResult(t, env, &entry)

	status, env := doJSON(t, router, http.MethodPost, "/api/v1/units", map[string]any{
		"quarterName":       "Eagle Quarters",
		"location":          "Mogadishu Cantonment",
		"category":          "Officer",
		"accommodationType": "Two Bedroom Flat",
		"noOfRooms":         2,
		"blockName":         "1",
		"flatHouseRoomName": "Flat 5",
	})
	require.Equal(t, http.StatusOK, status)
	var unit struct {
		UnitID string `json:"unitId"`
	}
	decodeResult(t, env, &unit)

	status, env = doJSON(t, router, http.MethodPost, "/api/v1/allocations", map[string]any{
		"queueId": entry.QueueID,
		"unitId":  unit.UnitID,
	})
	require.Equal(t, http.StatusOK, status, "message: %s", env.Message)
	var request struct {
		RequestID string `json:"requestId"`
		LetterID  string `json:"letterId"`
	}
	decodeResult(t, env, &request)
	assert.Contains(t, request.LetterID, "DHQ/GAR/ABJ/")

	status, env = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/allocations/%s/approve", request.RequestID), nil)
	require.Equal(t, http.StatusOK, status, "message: %s", env.Message)

	status, env = doJSON(t, router, http.MethodGet, "/api/v1/units/"+unit.UnitID, nil)
	require.Equal(t, http.StatusOK, status)
	var detail struct {
		Unit struct {
			Status        string `json:"Status"`
			OccupantSvcNo string `json:"OccupantSvcNo"`
		} `json:"unit"`
	}
	decodeResult(t, env, &detail)
	assert.Equal(t, "Occupied", detail.Unit.Status)
	assert.Equal(t, "N/12345", detail.Unit.OccupantSvcNo)

	// Approving twice maps to 409.
	status, env = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/allocations/%s/approve", request.RequestID), nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, ResultError, env.Code)
}

func TestRefuseRequiresReasonOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	status, env := doJSON(t, router, http.MethodPost, "/api/v1/allocations/some-id/refuse", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "reason")
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/queue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestImportTemplateDownload(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/import/template", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}
