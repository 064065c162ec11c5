package handler

import (
	"net/http"
	"strings"

	"github.com/drewdunne/docshub/internal/registry"
)

// Headers set by the authenticating proxy in front of the service.
const (
	HeaderAccessToken       = "X-Forwarded-Access-Token"
	HeaderAuthProvider      = "X-Auth-Provider"
	HeaderUser              = "X-Forwarded-User"
	HeaderPreferredUsername = "X-Forwarded-Preferred-Username"
)

// SessionFromHeaders returns the signed-in user's session, or nil when the
// request carries no access token.
func SessionFromHeaders(h http.Header) *registry.Session {
	token := h.Get(HeaderAccessToken)
	if token == "" {
		return nil
	}
	return &registry.Session{
		Token:    token,
		Provider: strings.ToLower(strings.TrimSpace(h.Get(HeaderAuthProvider))),
		Name:     h.Get(HeaderUser),
		Login:    h.Get(HeaderPreferredUsername),
	}
}
