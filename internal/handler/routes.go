package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zynqcloud/photo-storage/internal/baseurl"
	"github.com/zynqcloud/photo-storage/internal/config"
	"github.com/zynqcloud/photo-storage/internal/middleware"
	"github.com/zynqcloud/photo-storage/internal/pathutil"
	"github.com/zynqcloud/photo-storage/internal/store"
)

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	cfg     *config.Config
	store   *store.Local
	logger  *slog.Logger
	metrics *Metrics
}

// New registers all routes and returns the root http.Handler.
//
// Middleware stack (outer → inner):
//
//	RequestLog → baseurl.Middleware → chi router → ServiceToken auth → UploadLimiter → handler
func New(cfg *config.Config, st *store.Local, logger *slog.Logger) http.Handler {
	h := &Handler{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		metrics: &Metrics{},
	}

	auth := middleware.ServiceToken(cfg.Server.ServiceToken)
	limiter := middleware.NewUploadLimiter(cfg.Server.MaxConcurrentUploads)

	r := chi.NewRouter()
	// Logging sits outermost so auth failures and limiter 503s are logged too.
	r.Use(middleware.RequestLog(logger))
	r.Use(baseurl.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth)

		// POST /v1/photos
		//   Headers: X-File-Name (required), X-Destination, X-No-Overwrite: 1
		//   Body:    raw photo bytes
		r.With(limiter.Limit).Post("/v1/photos", h.Upload)

		r.Get("/v1/photos/*", h.Download)
		r.Head("/v1/photos/*", h.Download)
		r.Delete("/v1/photos/*", h.Delete)
		r.Get("/v1/urls/*", h.URL)

		r.Get("/healthz/ready", h.Readiness)
		r.Get("/metrics", h.metrics.metricsHandler(limiter.Active))
	})

	// Public, read-only view of the save directory. Its mount point mirrors
	// the save path under the project root, which is what PhotoURL produces
	// when the base URL points at this service.
	if cfg.Server.ServePublic {
		prefix := "/" + pathutil.Normalize(st.SavePath())
		if prefix == "/" {
			prefix = ""
		}
		r.Get(prefix+"/*", h.Download)
		r.Head(prefix+"/*", h.Download)
	}

	return r
}

// Readiness is the readiness probe handler.
// Returns 200 when the service can accept uploads; 503 when it cannot.
// Checks performed:
//  1. Save directory exists
//  2. Free disk space ≥ cfg.Storage.MinFreeBytes (Linux only)
func (h *Handler) Readiness(w http.ResponseWriter, _ *http.Request) {
	type check struct {
		Name string `json:"name"`
		OK   bool   `json:"ok"`
		Msg  string `json:"msg,omitempty"`
	}
	var checks []check
	allOK := true

	if h.store.DirectoryExists(h.store.Path()) {
		checks = append(checks, check{"save_dir", true, ""})
	} else {
		checks = append(checks, check{"save_dir", false, "save directory missing"})
		allOK = false
	}

	// (0, 0) means the platform cannot tell; skip rather than false-alarm.
	avail, total := h.store.DiskStats()
	if total > 0 {
		if avail < uint64(h.cfg.Storage.MinFreeBytes) {
			checks = append(checks, check{
				"disk_space", false,
				fmt.Sprintf("%d MB free, need %d MB", avail>>20, h.cfg.Storage.MinFreeBytes>>20),
			})
			allOK = false
		} else {
			checks = append(checks, check{
				"disk_space", true,
				fmt.Sprintf("%d MB free of %d MB", avail>>20, total>>20),
			})
		}
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"ready": allOK, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
