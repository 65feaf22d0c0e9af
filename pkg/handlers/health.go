package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/kgcorpus/tagging-console/pkg/config"
)

// healthCheckTimeout bounds each dependency check.
const healthCheckTimeout = 2 * time.Second

// BackendChecker reports whether the tagging backend answers.
type BackendChecker interface {
	Reachable(ctx context.Context) error
}

// DraftPinger reports whether the draft store can be reached.
type DraftPinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Drafts  string `json:"drafts"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	BackendURL  string `json:"backend_url"`
	DraftStore  string `json:"draft_store"`
}

// HealthHandler reports whether the console can serve editors: the backend
// must answer and the draft store must be reachable.
type HealthHandler struct {
	cfg     *config.Config
	backend BackendChecker
	drafts  DraftPinger
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg *config.Config, backend BackendChecker, drafts DraftPinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, backend: backend, drafts: drafts, logger: logger.Named("health")}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It answers 503 when either dependency
// fails so a load balancer stops routing to this replica.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Backend: h.check(r.Context(), "backend", h.backend.Reachable),
		Drafts:  h.check(r.Context(), "drafts", h.drafts.Ping),
	}
	status := http.StatusOK
	if resp.Backend != "ok" || resp.Drafts != "ok" {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

func (h *HealthHandler) check(ctx context.Context, name string, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.logger.Warn("Health check failed", zap.String("dependency", name), zap.Error(err))
		return err.Error()
	}
	return "ok"
}

// Ping handles GET /ping requests.
// Returns service information including version and where drafts are kept.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	draftStore := "memory"
	if h.cfg.Redis.Host != "" {
		draftStore = "redis"
	}
	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "tagging-console",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		BackendURL:  h.cfg.API.BaseURL,
		DraftStore:  draftStore,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
