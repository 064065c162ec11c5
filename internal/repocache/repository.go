package repocache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/drewdunne/docshub/internal/config"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

var (
	// ErrBranchNotFound indicates a branch that exists neither locally nor on the remote.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrFileNotFound indicates a path missing from the branch.
	ErrFileNotFound = errors.New("file not found")

	// ErrNoURL indicates a remote repo configured without a clone URL.
	ErrNoURL = errors.New("repo has no url configured")
)

// Repository is read access to one documentation repository.
type Repository interface {
	Sync(ctx context.Context) error
	ListBranches(ctx context.Context) ([]Branch, error)
	DocsTree(ctx context.Context, branch string) ([]*TreeNode, error)
	ReadFile(ctx context.Context, branch, path string) (string, error)
	ReadFileBuffer(ctx context.Context, branch, path string) ([]byte, error)
	IsAvailable(ctx context.Context) bool
	Path() string
}

// Branch is a local or remote-tracking branch.
type Branch struct {
	Name      string `json:"name"`
	IsRemote  bool   `json:"isRemote"`
	IsCurrent bool   `json:"isCurrent"`
}

// Node types.
const (
	NodeFile      = "file"
	NodeDirectory = "directory"
)

// TreeNode is a file or directory of the docs tree.
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"`
	Children []*TreeNode `json:"children,omitempty"`
}

// Mirror is a Repository backed by go-git. Remote repos are cloned into the
// cache directory; local repos are read in place. Operations on one mirror
// are serialized.
type Mirror struct {
	cfg    config.RepoConfig
	path   string
	logger *zap.Logger

	mu   sync.Mutex
	repo *git.Repository
}

var _ Repository = (*Mirror)(nil)

// NewMirror creates a mirror of cfg stored at path.
func NewMirror(cfg config.RepoConfig, path string, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{
		cfg:    cfg,
		path:   path,
		logger: logger.With(zap.String("repo", cfg.Name)),
	}
}

// Path returns the working copy location.
func (m *Mirror) Path() string {
	return m.path
}

// Sync clones the remote on first use and fetches all branches afterwards.
// It is a no-op for local repos.
func (m *Mirror) Sync(ctx context.Context) error {
	if m.cfg.IsLocal() {
		return nil
	}
	if m.cfg.URL == "" {
		return fmt.Errorf("%w: %q", ErrNoURL, m.cfg.Name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := git.PlainOpen(m.path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		repo, err = git.PlainCloneContext(ctx, m.path, false, &git.CloneOptions{
			URL:  m.cfg.URL,
			Auth: m.auth(),
		})
		if err != nil {
			return fmt.Errorf("cloning repo: %w", err)
		}
		m.repo = repo
		m.logger.Info("cloned repository", zap.String("path", m.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening repo: %w", err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Prune:      true,
		Auth:       m.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching repo: %w", err)
	}
	m.repo = repo
	m.logger.Info("fetched repository", zap.String("path", m.path))
	return nil
}

// auth returns HTTP basic credentials for the configured token. Each
// platform accepts a token as password under its own well-known username.
func (m *Mirror) auth() transport.AuthMethod {
	if m.cfg.Token == "" {
		return nil
	}
	u, err := url.Parse(m.cfg.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return nil
	}
	user := m.cfg.Username
	switch {
	case user != "":
	case m.cfg.Type == config.TypeGitLab:
		user = "oauth2"
	case m.cfg.Type == config.TypeBitbucket:
		user = "x-token-auth"
	default:
		user = "x-access-token"
	}
	return &githttp.BasicAuth{Username: user, Password: m.cfg.Token}
}

// open returns the repository, opening it on first use. Callers hold m.mu.
func (m *Mirror) open() (*git.Repository, error) {
	if m.repo != nil {
		return m.repo, nil
	}
	repo, err := git.PlainOpen(m.path)
	if err != nil {
		return nil, fmt.Errorf("opening repo %q: %w", m.cfg.Name, err)
	}
	m.repo = repo
	return repo, nil
}

// IsAvailable reports whether the repository can be opened.
func (m *Mirror) IsAvailable(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.open()
	return err == nil
}

// ListBranches returns local branches followed by remote-tracking branches
// not already present locally. HEAD references are skipped.
func (m *Mirror) ListBranches(ctx context.Context) ([]Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		return nil, err
	}

	current := ""
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		current = head.Name().Short()
	}

	refs, err := repo.References()
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	var local, remote []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name()
		switch {
		case name.IsBranch():
			local = append(local, name.Short())
		case name.IsRemote():
			// refs/remotes/<remote>/<branch>
			parts := strings.SplitN(strings.TrimPrefix(name.String(), "refs/remotes/"), "/", 2)
			if len(parts) == 2 && parts[1] != "HEAD" {
				remote = append(remote, parts[1])
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	sort.Strings(local)
	sort.Strings(remote)

	seen := make(map[string]bool)
	branches := make([]Branch, 0, len(local)+len(remote))
	for _, name := range local {
		if !seen[name] {
			seen[name] = true
			branches = append(branches, Branch{Name: name, IsCurrent: name == current})
		}
	}
	for _, name := range remote {
		if !seen[name] {
			seen[name] = true
			branches = append(branches, Branch{Name: name, IsRemote: true})
		}
	}
	return branches, nil
}

// commit resolves branch to its tip commit: local branch first, then the
// origin remote-tracking branch, then any revision go-git understands.
func (m *Mirror) commit(repo *git.Repository, branch string) (*object.Commit, error) {
	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch),
	}
	for _, name := range candidates {
		ref, err := repo.Reference(name, true)
		if err == nil {
			return repo.CommitObject(ref.Hash())
		}
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(branch))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBranchNotFound, branch)
	}
	return repo.CommitObject(*hash)
}

// DocsTree returns the docs directory at branch as a tree, directories
// first, then by name. A branch without the docs directory has an empty tree.
func (m *Mirror) DocsTree(ctx context.Context, branch string) ([]*TreeNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		return nil, err
	}
	c, err := m.commit(repo, branch)
	if err != nil {
		return nil, err
	}
	root, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("reading tree: %w", err)
	}

	docsDir := strings.Trim(m.cfg.DocsDir, "/")
	tree := root
	if docsDir != "" && docsDir != "." {
		tree, err = root.Tree(docsDir)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return []*TreeNode{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", docsDir, err)
		}
	} else {
		docsDir = ""
	}

	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", docsDir, err)
	}
	return BuildTree(files, docsDir), nil
}

// ReadFile returns the contents of path at branch.
func (m *Mirror) ReadFile(ctx context.Context, branch, path string) (string, error) {
	data, err := m.ReadFileBuffer(ctx, branch, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadFileBuffer returns the raw bytes of path at branch.
func (m *Mirror) ReadFileBuffer(ctx context.Context, branch, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	repo, err := m.open()
	if err != nil {
		return nil, err
	}
	c, err := m.commit(repo, branch)
	if err != nil {
		return nil, err
	}

	f, err := c.File(strings.TrimPrefix(path, "/"))
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, fmt.Errorf("%w: %q on branch %q", ErrFileNotFound, path, branch)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	r, err := f.Reader()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}
