package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_ValidFile(t *testing.T) {
	t.Setenv("DOCSHUB_TEST_GH_TOKEN", "ghp_secret")

	// Create temp config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  host: "127.0.0.1"
  port: 8080

logging:
  dir: "/var/log/docshub"
  retention_days: 14

cache_dir: /tmp/docshub

repos:
  - name: handbook
    type: github
    url: https://github.com/acme/handbook.git
    token: $DOCSHUB_TEST_GH_TOKEN
  - name: local-docs
    type: local
    path: ./docs-repo
    docs_dir: content
    default_branch: trunk
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Addr() != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", cfg.Addr(), "127.0.0.1:8080")
	}
	if cfg.Logging.Dir != "/var/log/docshub" {
		t.Errorf("Logging.Dir = %q, want %q", cfg.Logging.Dir, "/var/log/docshub")
	}
	if cfg.Logging.RetentionDays != 14 {
		t.Errorf("Logging.RetentionDays = %d, want %d", cfg.Logging.RetentionDays, 14)
	}
	if cfg.CacheDir != "/tmp/docshub" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, "/tmp/docshub")
	}
	if len(cfg.Repos) != 2 {
		t.Fatalf("len(Repos) = %d, want 2", len(cfg.Repos))
	}

	gh := cfg.Repos[0]
	if gh.Token != "ghp_secret" {
		t.Errorf("Token = %q, want resolved env value", gh.Token)
	}
	if gh.DocsDir != "docs" || gh.DefaultBranch != "main" || gh.AuthMode != AuthToken || gh.BitbucketVariant != BitbucketCloud {
		t.Errorf("defaults not applied: %+v", gh)
	}

	local := cfg.Repos[1]
	if local.DocsDir != "content" || local.DefaultBranch != "trunk" {
		t.Errorf("configured values overridden: %+v", local)
	}
}

func TestLoadConfig_BracedEnvSubstitution(t *testing.T) {
	t.Setenv("DOCSHUB_TEST_GL_TOKEN", "glpat-123")

	cfg, err := Parse([]byte(`
repos:
  - name: wiki
    type: gitlab
    url: https://gitlab.com/acme/wiki.git
    token: ${DOCSHUB_TEST_GL_TOKEN}
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Repos[0].Token != "glpat-123" {
		t.Errorf("Token = %q, want %q", cfg.Repos[0].Token, "glpat-123")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Repos) != 0 {
		t.Errorf("len(Repos) = %d, want 0", len(cfg.Repos))
	}
	if cfg.CacheDir != ".docshub-cache" {
		t.Errorf("CacheDir = %q, want %q", cfg.CacheDir, ".docshub-cache")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 3000)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "repos:\n  - type: github\n    url: https://github.com/a/b\n"},
		{"name escapes cache", "repos:\n  - name: ../x\n    type: github\n    url: https://github.com/a/b\n"},
		{"name with separator", "repos:\n  - name: acme/docs\n    type: github\n    url: https://github.com/a/b\n"},
		{"name with backslash", "repos:\n  - name: 'acme\\docs'\n    type: github\n    url: https://github.com/a/b\n"},
		{"dot name", "repos:\n  - name: ..\n    type: local\n    path: x\n"},
		{"missing type", "repos:\n  - name: a\n    url: https://github.com/a/b\n"},
		{"unknown type", "repos:\n  - name: a\n    type: svn\n    url: https://x/a/b\n"},
		{"unknown auth mode", "repos:\n  - name: a\n    type: github\n    url: https://github.com/a/b\n    auth_mode: saml\n"},
		{"unknown variant", "repos:\n  - name: a\n    type: bitbucket\n    url: https://bitbucket.org/a/b\n    bitbucket_variant: dc\n"},
		{"local without path", "repos:\n  - name: a\n    type: local\n"},
		{"remote without url", "repos:\n  - name: a\n    type: gitlab\n"},
		{"duplicate name", "repos:\n  - name: a\n    type: local\n    path: x\n  - name: a\n    type: local\n    path: y\n"},
		{"bad yaml", "repos: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.content)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestConfig_Repo(t *testing.T) {
	cfg := &Config{Repos: []RepoConfig{{Name: "handbook"}, {Name: "wiki"}}}

	r, err := cfg.Repo("wiki")
	if err != nil {
		t.Fatalf("Repo() error = %v", err)
	}
	if r.Name != "wiki" {
		t.Errorf("Repo().Name = %q, want %q", r.Name, "wiki")
	}

	_, err = cfg.Repo("missing")
	if !errors.Is(err, ErrRepoNotFound) {
		t.Errorf("Repo(missing) error = %v, want ErrRepoNotFound", err)
	}
}
