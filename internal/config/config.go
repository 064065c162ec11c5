package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = ".docshub.yml"

// ErrRepoNotFound indicates a repo name that is not configured.
var ErrRepoNotFound = errors.New("repo not found in configuration")

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Logging  LoggingConfig `yaml:"logging"`
	CacheDir string        `yaml:"cache_dir"`
	Repos    []RepoConfig  `yaml:"repos"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Development   bool   `yaml:"development"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// envVarPattern matches ${VAR_NAME} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Logging: LoggingConfig{
			Level:         "info",
			RetentionDays: 30,
		},
		CacheDir: ".docshub-cache",
	}
}

// Load reads and parses the config file at the given path. A missing file
// yields the defaults with no repos.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, normalizes and validates configuration data.
func Parse(data []byte) (*Config, error) {
	// Substitute environment variables
	data = envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultConfig().CacheDir
	}

	seen := make(map[string]bool, len(cfg.Repos))
	for i := range cfg.Repos {
		repo := normalizeRepo(cfg.Repos[i], os.LookupEnv)
		if err := repo.Validate(); err != nil {
			return nil, err
		}
		if seen[repo.Name] {
			return nil, fmt.Errorf("repo %q is configured more than once", repo.Name)
		}
		seen[repo.Name] = true
		cfg.Repos[i] = repo
	}

	return cfg, nil
}

// Repo returns the repo configured under name.
func (c *Config) Repo(name string) (RepoConfig, error) {
	for _, r := range c.Repos {
		if r.Name == name {
			return r, nil
		}
	}
	return RepoConfig{}, fmt.Errorf("%w: %q", ErrRepoNotFound, name)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
