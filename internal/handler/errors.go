package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/provider"
	"github.com/drewdunne/docshub/internal/repocache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed API call. Error carries the
// raw message; Hint, when present, suggests a fix.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

var errNoProvider = errors.New("no review provider available")

// Hint translates common failures into an actionable suggestion. It
// returns "" when nothing better than the raw error can be said.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, provider.ErrLineNotInDiff):
		return "Inline comments can only target lines that are part of the pull request diff."
	case errors.Is(err, provider.ErrMissingUsername):
		return "Set username on the repository so change requests can be recorded."
	case errors.Is(err, provider.ErrMissingOrigin):
		return "Set url or api_url to the origin of the Bitbucket Server instance."
	case errors.Is(err, repocache.ErrNoURL):
		return "Set url on the repository, or declare it with type local and a path."
	case errors.Is(err, errNoProvider):
		return "Configure a token for the repository or sign in with its platform."
	}

	status := provider.StatusCode(err)
	msg := strings.ToLower(err.Error())
	switch {
	case status == http.StatusUnauthorized,
		errors.Is(err, transport.ErrAuthenticationRequired),
		strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "bad credentials"):
		return "Authentication failed. Check that the repository token is set and has not expired."
	case status == http.StatusForbidden,
		errors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(msg, "403"):
		return "Access denied. The token needs read access to the repository and write access to pull requests."
	case status == http.StatusNotFound,
		errors.Is(err, transport.ErrRepositoryNotFound),
		strings.Contains(msg, "404"):
		return "Not found. Check the repository URL and that the token can see the repository."
	case strings.Contains(msg, "no such host"),
		strings.Contains(msg, "enotfound"),
		strings.Contains(msg, "could not resolve host"):
		return "The host could not be resolved. Check the repository URL and network access."
	}
	return ""
}

// statusFor picks the HTTP status for an error raised while serving a
// request that passed validation.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrRepoNotFound),
		errors.Is(err, repocache.ErrBranchNotFound),
		errors.Is(err, repocache.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, provider.ErrLineNotInDiff):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Debug("request rejected", fields...)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Hint: Hint(err)})
}
