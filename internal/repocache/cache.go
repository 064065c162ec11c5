package repocache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/drewdunne/docshub/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// syncParallelism bounds concurrent clones in SyncAll.
const syncParallelism = 4

// Cache hands out one Repository per configured repo name.
type Cache struct {
	baseDir string
	logger  *zap.Logger

	mu    sync.Mutex
	repos map[string]Repository
}

// New creates a new repo cache at the given directory.
func New(baseDir string, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		baseDir: baseDir,
		logger:  logger,
		repos:   make(map[string]Repository),
	}
}

// Get returns the repository for cfg, creating its mirror on first use.
func (c *Cache) Get(cfg config.RepoConfig) Repository {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.repos[cfg.Name]; ok {
		return r
	}
	r := NewMirror(cfg, c.RepoPath(cfg), c.logger)
	c.repos[cfg.Name] = r
	return r
}

// RepoPath returns where a repo is read from: the configured path for
// local repos, a directory under the cache for remote ones.
func (c *Cache) RepoPath(cfg config.RepoConfig) string {
	if cfg.IsLocal() {
		if abs, err := filepath.Abs(cfg.Path); err == nil {
			return abs
		}
		return cfg.Path
	}
	return filepath.Join(c.baseDir, cfg.Name)
}

// Clear forgets every repository. Clones on disk are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repos = make(map[string]Repository)
}

// SyncAll syncs every remote repo in repos, a few at a time. A failing repo
// does not stop the others; all failures are returned joined.
func (c *Cache) SyncAll(ctx context.Context, repos []config.RepoConfig) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncParallelism)
	for _, cfg := range repos {
		cfg := cfg
		if cfg.IsLocal() {
			continue
		}
		repo := c.Get(cfg)
		g.Go(func() error {
			if err := repo.Sync(gctx); err != nil {
				c.logger.Warn("repo sync failed", zap.String("repo", cfg.Name), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("repo %q: %w", cfg.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
