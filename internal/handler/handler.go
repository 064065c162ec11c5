// Package handler implements the HTTP API: pull request reviews and
// read access to the configured documentation repositories.
package handler

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/provider"
	"github.com/drewdunne/docshub/internal/registry"
	"github.com/drewdunne/docshub/internal/repocache"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Providers resolves the review provider for a repo and session.
// A nil provider with a nil error means no credential is available.
type Providers interface {
	Get(repo config.RepoConfig, session *registry.Session) (provider.ReviewProvider, error)
}

// Repos resolves the repository backing a repo configuration.
type Repos interface {
	Get(cfg config.RepoConfig) repocache.Repository
}

// Handler serves the /api routes.
type Handler struct {
	cfg       *config.Config
	providers Providers
	repos     Repos
	logger    *zap.Logger
}

// New creates a new API handler.
func New(cfg *config.Config, providers Providers, repos Repos, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:       cfg,
		providers: providers,
		repos:     repos,
		logger:    logger,
	}
}

// RegisterRoutes registers the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/reviews/{repo}", h.GetReview)
		r.Post("/reviews/{repo}", h.PostReview)

		r.Get("/repos", h.ListRepos)
		r.Route("/repos/{repo}", func(r chi.Router) {
			r.Get("/branches", h.ListBranches)
			r.Get("/tree", h.Tree)
			r.Get("/file", h.File)
			r.Post("/sync", h.Sync)
			r.Get("/{branch}/assets/*", h.Asset)
		})
	})
}

// repoConfig looks up the repo named in the URL, writing a 404 when it is
// not configured.
func (h *Handler) repoConfig(w http.ResponseWriter, r *http.Request) (config.RepoConfig, bool) {
	repo, err := h.cfg.Repo(pathParam(r, "repo"))
	if err != nil {
		h.writeError(w, r, http.StatusNotFound, err)
		return config.RepoConfig{}, false
	}
	return repo, true
}

// pathParam returns the decoded URL parameter. chi matches on the raw path
// when it holds escapes such as %2F, so parameters may still be encoded.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
