package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/handler"
	"github.com/drewdunne/docshub/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// Server is the HTTP server for docshub.
type Server struct {
	cfg    *config.Config
	router chi.Router
	logger *zap.Logger

	ctx          context.Context // cancelled when shutdown begins
	cancel       context.CancelFunc
	drainTimeout time.Duration
	ready        chan struct{} // closed once the listener is bound

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a new Server with the given config. api may be nil, in
// which case only /health and /metrics are served.
func New(cfg *config.Config, api *handler.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		drainTimeout: defaultDrainTimeout,
		ready:        make(chan struct{}),
	}
	s.routes(api)
	return s
}

// Ready returns a channel that is closed when the server is ready to accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// routes sets up middleware and HTTP routes.
func (s *Server) routes(api *handler.Handler) {
	s.router.Use(RequestID)
	s.router.Use(AccessLog(s.logger))
	s.router.Use(middleware.Recoverer)
	if len(s.cfg.Server.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
			ExposedHeaders: []string{RequestIDHeader},
			MaxAge:         300,
		}))
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", s.handleMetrics)

	if api != nil {
		api.RegisterRoutes(s.router)
	}
}

// handleHealth responds with server health status. The server is degraded
// when the clone cache directory cannot be created.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cacheReady := os.MkdirAll(s.cfg.CacheDir, 0755) == nil
	checks := map[string]interface{}{
		"cache_dir": cacheReady,
		"repos":     len(s.cfg.Repos),
	}

	status := "ok"
	if !cacheReady {
		status = "degraded"
	}

	health := HealthResponse{
		Status: status,
		Checks: checks,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleMetrics responds with current operational metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := metrics.Get()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m)
}
