package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Platform types.
const (
	TypeGitHub    = "github"
	TypeGitLab    = "gitlab"
	TypeBitbucket = "bitbucket"
	TypeLocal     = "local"
)

// Auth modes.
const (
	AuthToken = "token"
	AuthOAuth = "oauth"
)

// Bitbucket variants.
const (
	BitbucketCloud  = "cloud"
	BitbucketServer = "server"
)

// RepoConfig describes one documentation repository.
type RepoConfig struct {
	Name             string `yaml:"name" json:"name"`
	Type             string `yaml:"type" json:"type"`
	URL              string `yaml:"url,omitempty" json:"url,omitempty"`
	Path             string `yaml:"path,omitempty" json:"path,omitempty"`
	DocsDir          string `yaml:"docs_dir" json:"docsDir"`
	DefaultBranch    string `yaml:"default_branch" json:"defaultBranch"`
	Token            string `yaml:"token,omitempty" json:"-"`
	AuthMode         string `yaml:"auth_mode" json:"authMode"`
	BitbucketVariant string `yaml:"bitbucket_variant,omitempty" json:"bitbucketVariant,omitempty"`
	Username         string `yaml:"username,omitempty" json:"-"`
	APIURL           string `yaml:"api_url,omitempty" json:"-"`
}

// Validate checks the fields that have no default.
func (r RepoConfig) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("each repo must have a name")
	}
	if r.Name == "." || r.Name == ".." || strings.ContainsAny(r.Name, `/\`) {
		return fmt.Errorf("repo name %q must not contain path separators or be a relative path element", r.Name)
	}
	switch r.Type {
	case TypeGitHub, TypeGitLab, TypeBitbucket, TypeLocal:
	case "":
		return fmt.Errorf("repo %q must have a type", r.Name)
	default:
		return fmt.Errorf("repo %q has unknown type %q", r.Name, r.Type)
	}
	switch r.AuthMode {
	case AuthToken, AuthOAuth:
	default:
		return fmt.Errorf("repo %q has unknown auth_mode %q", r.Name, r.AuthMode)
	}
	switch r.BitbucketVariant {
	case BitbucketCloud, BitbucketServer:
	default:
		return fmt.Errorf("repo %q has unknown bitbucket_variant %q", r.Name, r.BitbucketVariant)
	}
	if r.Type == TypeLocal && r.Path == "" {
		return fmt.Errorf("local repo %q must have a path", r.Name)
	}
	if r.Type != TypeLocal && r.URL == "" {
		return fmt.Errorf("repo %q must have a url", r.Name)
	}
	return nil
}

// IsLocal reports whether the repo is read from a local working copy.
func (r RepoConfig) IsLocal() bool {
	return r.Type == TypeLocal
}

// APIPath returns the "owner/repo" path platform adapters address the
// repository by. Repos without a URL are addressed by name.
func (r RepoConfig) APIPath() string {
	if r.URL == "" {
		return r.Name
	}
	return ExtractRepoPath(r.URL, r.Type)
}

// Origin returns the platform origin: APIURL when set, otherwise the
// scheme and host of the clone URL. SSH clone URLs map to https.
func (r RepoConfig) Origin() string {
	if r.APIURL != "" {
		return strings.TrimSuffix(r.APIURL, "/")
	}
	if m := scpURLPattern.FindStringSubmatch(r.URL); m != nil {
		return "https://" + m[1]
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := u.Scheme
	if scheme != "http" {
		scheme = "https"
	}
	return scheme + "://" + u.Host
}

var (
	repoPathPattern = regexp.MustCompile(`[/:]([\w-]+/[\w.-]+)$`)
	scpURLPattern   = regexp.MustCompile(`^[\w.-]+@([\w.-]+):`)
)

// ExtractRepoPath derives "owner/repo" from a clone URL such as
// https://github.com/acme/widgets.git or git@gitlab.com:acme/widgets.git.
// Input that does not look like a clone URL is returned unchanged.
func ExtractRepoPath(rawURL, platform string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(rawURL, "/"), ".git")
	if m := repoPathPattern.FindStringSubmatch(trimmed); m != nil {
		return m[1]
	}
	return rawURL
}
