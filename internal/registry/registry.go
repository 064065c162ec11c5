package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/drewdunne/docshub/internal/provider"
	"github.com/drewdunne/docshub/internal/provider/bitbucket"
	"github.com/drewdunne/docshub/internal/provider/github"
	"github.com/drewdunne/docshub/internal/provider/gitlab"
	"go.uber.org/zap"
)

// Session is the signed-in user's OAuth context as forwarded by the auth proxy.
type Session struct {
	Token    string
	Provider string
	Name     string
	Login    string
}

// credential is the token an adapter is built with and who it acts for.
type credential struct {
	token    string
	identity provider.Identity
}

// activeCredential picks the session token when the repo is in oauth mode
// and the session was issued by the repo's platform, the service token
// otherwise. ok is false when neither is available.
func activeCredential(repo config.RepoConfig, session *Session) (credential, bool) {
	if repo.AuthMode == config.AuthOAuth && session != nil && session.Token != "" && session.Provider == repo.Type {
		display := session.Name
		if display == "" {
			display = session.Login
		}
		username := session.Login
		if username == "" {
			username = session.Name
		}
		return credential{
			token:    session.Token,
			identity: provider.Identity{DisplayName: display, Username: username},
		}, true
	}
	if repo.Token == "" {
		return credential{}, false
	}
	return credential{token: repo.Token, identity: provider.Identity{Username: repo.Username}}, true
}

// New builds the review provider for repo. It returns nil without an error
// when no credential is available or the repo type has no review platform.
func New(repo config.RepoConfig, session *Session, logger *zap.Logger) (provider.ReviewProvider, error) {
	cred, ok := activeCredential(repo, session)
	if !ok {
		return nil, nil
	}
	return build(repo, cred, logger)
}

func build(repo config.RepoConfig, cred credential, logger *zap.Logger) (provider.ReviewProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("repo", repo.Name), zap.String("platform", repo.Type))

	switch repo.Type {
	case config.TypeGitHub:
		opts := []github.Option{github.WithIdentity(cred.identity), github.WithLogger(logger)}
		if repo.APIURL != "" {
			opts = append(opts, github.WithBaseURL(repo.APIURL))
		}
		return github.New(cred.token, opts...), nil

	case config.TypeGitLab:
		opts := []gitlab.Option{gitlab.WithIdentity(cred.identity), gitlab.WithLogger(logger)}
		if repo.APIURL != "" {
			opts = append(opts, gitlab.WithBaseURL(repo.APIURL))
		} else if origin := repo.Origin(); origin != "" && origin != "https://gitlab.com" {
			opts = append(opts, gitlab.WithBaseURL(origin))
		}
		p, err := gitlab.New(cred.token, opts...)
		if err != nil {
			return nil, fmt.Errorf("repo %q: %w", repo.Name, err)
		}
		return p, nil

	case config.TypeBitbucket:
		opts := []bitbucket.Option{
			bitbucket.WithVariant(bitbucket.Variant(repo.BitbucketVariant)),
			bitbucket.WithIdentity(cred.identity),
			bitbucket.WithLogger(logger),
		}
		if repo.BitbucketVariant == config.BitbucketServer {
			opts = append(opts, bitbucket.WithOrigin(repo.Origin()))
		} else if repo.APIURL != "" {
			opts = append(opts, bitbucket.WithBaseURL(repo.APIURL))
		}
		p, err := bitbucket.New(cred.token, opts...)
		if err != nil {
			return nil, fmt.Errorf("repo %q: %w", repo.Name, err)
		}
		return p, nil
	}
	return nil, nil
}

// Registry caches constructed providers. Entries are keyed by repo, token
// fingerprint and identity, so a new session or rotated token builds a
// fresh adapter.
type Registry struct {
	mu        sync.Mutex
	providers map[string]provider.ReviewProvider
	logger    *zap.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		providers: make(map[string]provider.ReviewProvider),
		logger:    logger,
	}
}

// Get returns the cached provider for repo and session, building it on
// first use. A nil provider is never cached.
func (r *Registry) Get(repo config.RepoConfig, session *Session) (provider.ReviewProvider, error) {
	cred, ok := activeCredential(repo, session)
	if !ok {
		return nil, nil
	}
	key := cacheKey(repo, cred)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.providers[key]; ok {
		return p, nil
	}

	p, err := build(repo, cred, r.logger)
	if err != nil || p == nil {
		return nil, err
	}
	r.providers[key] = p
	return p, nil
}

// Len returns the number of cached providers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

// Clear drops every cached provider.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]provider.ReviewProvider)
}

func cacheKey(repo config.RepoConfig, cred credential) string {
	sum := sha256.Sum256([]byte(cred.token))
	return fmt.Sprintf("%s|%s|%s|%s|%s", repo.Name, repo.Type, hex.EncodeToString(sum[:8]), cred.identity.DisplayName, cred.identity.Username)
}
