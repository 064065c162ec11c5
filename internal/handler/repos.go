package handler

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/metrics"
	"github.com/drewdunne/docshub/internal/repocache"
	"go.uber.org/zap"
)

// RepoSummary is the public view of a configured repo.
type RepoSummary struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	DefaultBranch string `json:"defaultBranch"`
	DocsDir       string `json:"docsDir"`
	AuthMode      string `json:"authMode"`
}

// FileResponse is the body of GET /api/repos/{repo}/file.
type FileResponse struct {
	Content string `json:"content"`
	Path    string `json:"path"`
	Branch  string `json:"branch"`
}

var assetTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".ico":  "image/x-icon",
}

// ListRepos handles GET /api/repos.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos := make([]RepoSummary, 0, len(h.cfg.Repos))
	for _, repo := range h.cfg.Repos {
		repos = append(repos, RepoSummary{
			Name:          repo.Name,
			Type:          repo.Type,
			DefaultBranch: repo.DefaultBranch,
			DocsDir:       repo.DocsDir,
			AuthMode:      repo.AuthMode,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

// ListBranches handles GET /api/repos/{repo}/branches.
func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	repo, err := h.repository(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	branches, err := repo.ListBranches(r.Context())
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

// Tree handles GET /api/repos/{repo}/tree?branch=.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	repo, err := h.repository(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	tree, err := repo.DocsTree(r.Context(), branchParam(r, cfg))
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tree": tree})
}

// File handles GET /api/repos/{repo}/file?branch=&path=.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("path")
	if filePath == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing path parameter"))
		return
	}
	cfg, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	repo, err := h.repository(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	branch := branchParam(r, cfg)
	content, err := repo.ReadFile(r.Context(), branch, filePath)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, FileResponse{Content: content, Path: filePath, Branch: branch})
}

// Sync handles POST /api/repos/{repo}/sync.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	if err := h.sync(r.Context(), cfg, h.repos.Get(cfg)); err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Repository synced"})
}

// Asset handles GET /api/repos/{repo}/{branch}/assets/*, serving raw file
// bytes for images and documents linked from the docs.
func (h *Handler) Asset(w http.ResponseWriter, r *http.Request) {
	cfg, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	filePath := pathParam(r, "*")
	if filePath == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing asset path"))
		return
	}
	repo, err := h.repository(r.Context(), cfg)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}
	data, err := repo.ReadFileBuffer(r.Context(), pathParam(r, "branch"), filePath)
	if err != nil {
		h.writeError(w, r, statusFor(err), err)
		return
	}

	contentType, ok := assetTypes[strings.ToLower(path.Ext(filePath))]
	if !ok {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// repository returns the repo, cloning it first when a remote repo has no
// working copy yet.
func (h *Handler) repository(ctx context.Context, cfg config.RepoConfig) (repocache.Repository, error) {
	repo := h.repos.Get(cfg)
	if cfg.IsLocal() || repo.IsAvailable(ctx) {
		return repo, nil
	}
	if err := h.sync(ctx, cfg, repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (h *Handler) sync(ctx context.Context, cfg config.RepoConfig, repo repocache.Repository) error {
	if err := repo.Sync(ctx); err != nil {
		metrics.SyncFailed()
		return err
	}
	metrics.RepoSynced()
	h.logger.Debug("synced repository", zap.String("repo", cfg.Name))
	return nil
}

func branchParam(r *http.Request, cfg config.RepoConfig) string {
	if b := r.URL.Query().Get("branch"); b != "" {
		return b
	}
	return cfg.DefaultBranch
}
