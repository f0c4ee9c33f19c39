package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"quarters-data/internal/metrics"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux     *http.ServeMux
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRouter(m *metrics.Metrics, logger *zap.Logger) *Router {
	return &Router{
		mux:     http.NewServeMux(),
		metrics: m,
		logger:  logger,
	}
}

// Handle 注册路由并记录延迟（route label = 注册的 pattern）
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		h(w, req)
		r.metrics.RequestLatency.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// HandleHandler 支持 http.Handler 接口（用于 promhttp 等）
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterOpsRoutes 注册运维路由（health + metrics）
func (r *Router) RegisterOpsRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.HandleHandler("/metrics", promhttp.Handler())
}

// RegisterQueueRoutes 注册队列路由
func (r *Router) RegisterQueueRoutes(h *QueueHandler) {
	r.Handle("/api/v1/queue", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/queue/current-units", methodGet(h.CurrentUnits))
	r.Handle("/api/v1/queue/check", methodGet(h.Check))
	r.Handle("/api/v1/queue/export", methodGet(h.Export))

	r.Handle("/api/v1/queue/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/queue/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, id)
		case http.MethodDelete:
			h.Delete(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterUnitRoutes 注册住房单元路由
func (r *Router) RegisterUnitRoutes(h *UnitHandler) {
	r.Handle("/api/v1/units", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	r.Handle("/api/v1/units/transfer", methodPost(h.Transfer))
	r.Handle("/api/v1/units/deallocate", methodPost(h.Deallocate))
	r.Handle("/api/v1/past-allocations", methodGet(h.PastAllocations))

	r.Handle("/api/v1/units/", func(w http.ResponseWriter, req *http.Request) {
		id := strings.TrimPrefix(req.URL.Path, "/api/v1/units/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch req.Method {
		case http.MethodGet:
			h.Get(w, req, id)
		case http.MethodPut:
			h.Update(w, req, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
}

// RegisterAllocationRoutes 注册分配流程路由
func (r *Router) RegisterAllocationRoutes(h *AllocationHandler) {
	r.Handle("/api/v1/allocations", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.List(w, req)
		case http.MethodPost:
			h.Create(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// /api/v1/allocations/{id} and /api/v1/allocations/{id}/(approve|refuse)
	r.Handle("/api/v1/allocations/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/v1/allocations/")
		parts := strings.Split(rest, "/")
		switch {
		case len(parts) == 1 && parts[0] != "":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Get(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "approve":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Approve(w, req, parts[0])
		case len(parts) == 2 && parts[1] == "refuse":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.Refuse(w, req, parts[0])
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

// RegisterImportRoutes 注册批量导入路由
func (r *Router) RegisterImportRoutes(h *ImportHandler) {
	r.Handle("/api/v1/import", methodPost(h.Upload))
	r.Handle("/api/v1/import/rows", methodPost(h.UploadJSON))
	r.Handle("/api/v1/import/template", methodGet(h.Template))
	r.Handle("/api/v1/import/progress", methodGet(h.Progress))
}

// RegisterAuditRoutes 注册审计路由
func (r *Router) RegisterAuditRoutes(h *AuditHandler) {
	r.Handle("/api/v1/audit", methodGet(h.List))
}

func methodGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

func methodPost(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}
