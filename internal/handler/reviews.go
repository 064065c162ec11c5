package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/metrics"
	"github.com/drewdunne/docshub/internal/provider"
	"go.uber.org/zap"
)

// actionCreatePR opens a pull request; the other actions are provider actions.
const actionCreatePR = "create_pr"

// ReviewResponse is the review state of a branch.
type ReviewResponse struct {
	PR            *provider.PullRequest `json:"pr"`
	Comments      []provider.Comment    `json:"comments"`
	CanReview     bool                  `json:"canReview"`
	AuthMode      string                `json:"authMode"`
	RepoType      string                `json:"repoType"`
	DefaultBranch string                `json:"defaultBranch"`
}

// ReviewRequest is the body of POST /api/reviews/{repo}.
type ReviewRequest struct {
	Action     string `json:"action"`
	PRNumber   int    `json:"prNumber"`
	Comment    string `json:"comment"`
	FilePath   string `json:"filePath"`
	Line       int    `json:"line"`
	CommitSHA  string `json:"commitSha"`
	Branch     string `json:"branch"`
	BaseBranch string `json:"baseBranch"`
	Title      string `json:"title"`
}

// GetReview handles GET /api/reviews/{repo}?branch=.
func (h *Handler) GetReview(w http.ResponseWriter, r *http.Request) {
	branch := r.URL.Query().Get("branch")
	if branch == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing branch parameter"))
		return
	}
	repo, ok := h.repoConfig(w, r)
	if !ok {
		return
	}
	metrics.ReviewRequested()

	resp := ReviewResponse{
		Comments:      []provider.Comment{},
		AuthMode:      repo.AuthMode,
		RepoType:      repo.Type,
		DefaultBranch: repo.DefaultBranch,
	}

	p, err := h.providers.Get(repo, SessionFromHeaders(r.Header))
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	// A provider means the credential can act, even before a PR exists.
	resp.CanReview = true

	apiRepo := repo.APIPath()
	pr, err := p.FindPR(r.Context(), apiRepo, branch)
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	if pr == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.PR = pr

	comments, err := p.ListComments(r.Context(), apiRepo, pr.Number)
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	if comments != nil {
		resp.Comments = comments
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostReview handles POST /api/reviews/{repo}: opening a PR, commenting,
// approving and requesting changes.
func (h *Handler) PostReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	repo, ok := h.repoConfig(w, r)
	if !ok {
		return
	}

	p, err := h.providers.Get(repo, SessionFromHeaders(r.Header))
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	if p == nil {
		h.writeError(w, r, http.StatusBadRequest, errNoProvider)
		return
	}

	switch req.Action {
	case actionCreatePR:
		h.createPR(w, r, p, repo, req)
	case string(provider.ActionComment):
		h.comment(w, r, p, repo, req)
	case string(provider.ActionApprove), string(provider.ActionRequestChanges):
		h.submitReview(w, r, p, repo, req)
	default:
		h.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: %q", provider.ErrUnsupportedAction, req.Action))
	}
}

func (h *Handler) createPR(w http.ResponseWriter, r *http.Request, p provider.ReviewProvider, repo config.RepoConfig, req ReviewRequest) {
	if req.Branch == "" || req.BaseBranch == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing branch parameters"))
		return
	}
	pr, err := p.CreatePR(r.Context(), repo.APIPath(), req.Branch, req.BaseBranch, req.Title)
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	h.logger.Info("opened pull request",
		zap.String("repo", repo.Name),
		zap.Int("number", pr.Number),
		zap.String("head", req.Branch),
		zap.String("base", req.BaseBranch))
	writeJSON(w, http.StatusOK, map[string]any{"pr": pr})
}

func (h *Handler) comment(w http.ResponseWriter, r *http.Request, p provider.ReviewProvider, repo config.RepoConfig, req ReviewRequest) {
	if req.PRNumber <= 0 || req.Comment == "" {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing prNumber or comment"))
		return
	}

	var (
		c   *provider.Comment
		err error
	)
	if req.FilePath != "" && req.Line > 0 {
		c, err = p.AddInlineComment(r.Context(), repo.APIPath(), req.PRNumber, req.FilePath, req.Line, req.Comment, req.CommitSHA)
	} else {
		c, err = p.AddComment(r.Context(), repo.APIPath(), req.PRNumber, req.Comment)
	}
	if err != nil {
		h.platformError(w, r, err)
		return
	}
	metrics.CommentPosted()
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) submitReview(w http.ResponseWriter, r *http.Request, p provider.ReviewProvider, repo config.RepoConfig, req ReviewRequest) {
	if req.PRNumber <= 0 {
		h.writeError(w, r, http.StatusBadRequest, errors.New("missing prNumber"))
		return
	}
	payload := provider.SubmitReviewPayload{
		Action: provider.Action(req.Action),
		Body:   req.Comment,
	}
	if err := p.SubmitReview(r.Context(), repo.APIPath(), req.PRNumber, payload); err != nil {
		h.platformError(w, r, err)
		return
	}
	metrics.ReviewActionSubmitted()
	h.logger.Info("submitted review",
		zap.String("repo", repo.Name),
		zap.Int("number", req.PRNumber),
		zap.String("action", req.Action))
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) platformError(w http.ResponseWriter, r *http.Request, err error) {
	metrics.PlatformError()
	h.writeError(w, r, statusFor(err), err)
}
