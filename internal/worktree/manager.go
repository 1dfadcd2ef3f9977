// Package worktree manages isolated VCS worktrees, one per bead,
// indexed per project with a short-lived cache that is force-refreshed
// around every mutation. It also materializes per-bead assistant
// settings into each new worktree (see settings.go).
package worktree

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/vcs"
)

// cacheTTL is how long a project's worktree index is trusted before a
// read forces a rescan.
const cacheTTL = 2 * time.Second

// retryAttempts/retryDelay bound the post-create rescan retry loop
// that tolerates filesystems lagging behind `git worktree add`.
const retryAttempts = 5
const retryDelay = 100 * time.Millisecond

var pathSuffixPattern = regexp.MustCompile(`-([a-z]+-[a-z0-9]+)$`)

type cacheEntry struct {
	builtAt   time.Time
	worktrees map[bead.ID]*Worktree
}

// Manager indexes and mutates worktrees across any number of projects.
// The zero value is not usable; construct with New.
type Manager struct {
	git *vcs.Git
	log *slog.Logger

	mu    sync.Mutex
	cache map[string]*cacheEntry // projectPath -> entry
}

// New returns a Manager using git on PATH.
func New(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{git: &vcs.Git{}, log: log, cache: make(map[string]*cacheEntry)}
}

// computePath implements the sibling-directory path convention:
// <parent>/<projectName>-<beadId>.
func computePath(projectPath string, id bead.ID) string {
	parent := filepath.Dir(projectPath)
	projectName := filepath.Base(projectPath)
	return filepath.Join(parent, fmt.Sprintf("%s-%s", projectName, id))
}

// deriveBeadID recovers a beadId from a worktree entry: the branch
// name if it's a valid bead id, otherwise the path's trailing
// -<beadId> suffix.
func deriveBeadID(e vcs.WorktreeEntry) (bead.ID, bool) {
	if e.Branch != "" && bead.Valid(e.Branch) {
		return bead.ID(e.Branch), true
	}
	if m := pathSuffixPattern.FindStringSubmatch(e.Path); m != nil {
		return bead.ID(m[1]), true
	}
	return "", false
}

// refresh rescans projectPath's worktree list unless a cached entry is
// still within TTL and force is false.
func (m *Manager) refresh(ctx context.Context, projectPath string, force bool) (map[bead.ID]*Worktree, error) {
	m.mu.Lock()
	entry, ok := m.cache[projectPath]
	if ok && !force && time.Since(entry.builtAt) < cacheTTL {
		snapshot := entry.worktrees
		m.mu.Unlock()
		return snapshot, nil
	}
	m.mu.Unlock()

	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("resolving project path %s: %w", projectPath, err)
	}

	entries, err := m.git.ListWorktrees(ctx, projectPath)
	if err != nil {
		return nil, err
	}

	worktrees := make(map[bead.ID]*Worktree)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.Path)
		if err != nil {
			continue
		}
		if absPath == absProject {
			continue
		}
		id, ok := deriveBeadID(e)
		if !ok {
			continue
		}
		worktrees[id] = &Worktree{
			Path:     e.Path,
			BeadID:   id,
			Branch:   e.Branch,
			Head:     e.Head,
			IsLocked: e.IsLocked,
		}
	}

	m.mu.Lock()
	m.cache[projectPath] = &cacheEntry{builtAt: time.Now(), worktrees: worktrees}
	m.mu.Unlock()

	return worktrees, nil
}

func (m *Manager) invalidate(projectPath string) {
	m.mu.Lock()
	delete(m.cache, projectPath)
	m.mu.Unlock()
}

// Create returns the worktree for opts.BeadID, creating it if absent.
// Create is idempotent: calling it twice in a row returns the same
// Worktree both times.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Worktree, error) {
	if !m.git.IsRepo(ctx, opts.ProjectPath) {
		return nil, fmt.Errorf("%s: %w", opts.ProjectPath, vcs.ErrNotAGitRepo)
	}

	idx, err := m.refresh(ctx, opts.ProjectPath, true)
	if err != nil {
		return nil, err
	}
	if wt, ok := idx[opts.BeadID]; ok {
		return wt, nil
	}

	path := computePath(opts.ProjectPath, opts.BeadID)
	branchName := string(opts.BeadID)
	branchExists := m.git.BranchExists(ctx, opts.ProjectPath, branchName)

	if branchExists {
		if err := m.git.AddWorktree(ctx, opts.ProjectPath, path, branchName, "", false); err != nil {
			return nil, err
		}
	} else {
		base := opts.BaseBranch
		if base == "" {
			base, err = m.git.CurrentBranch(ctx, opts.ProjectPath)
			if err != nil {
				return nil, err
			}
		}
		if err := m.git.AddWorktree(ctx, opts.ProjectPath, path, branchName, base, true); err != nil {
			return nil, err
		}
	}

	source := opts.SourceWorktreePath
	if source == "" {
		source = opts.ProjectPath
	}
	if err := m.materializeHooks(path, source, opts.BeadID); err != nil {
		m.log.Warn("materializing assistant settings failed", "beadId", opts.BeadID, "error", err)
	}

	copyPaths := opts.UntrackedCopyPaths
	if copyPaths == nil {
		copyPaths = []string{".direnv"}
	}
	m.copyUntrackedPaths(source, path, copyPaths)

	m.invalidate(opts.ProjectPath)

	var wt *Worktree
	for attempt := 0; attempt < retryAttempts; attempt++ {
		idx, err = m.refresh(ctx, opts.ProjectPath, true)
		if err != nil {
			return nil, err
		}
		if found, ok := idx[opts.BeadID]; ok {
			wt = found
			break
		}
		time.Sleep(retryDelay)
	}
	if wt == nil {
		return nil, fmt.Errorf("%s: %w", opts.BeadID, ErrNotVisible)
	}
	return wt, nil
}

// Remove deletes the worktree for opts.BeadID. A missing worktree is a
// no-op, so Remove is idempotent.
func (m *Manager) Remove(ctx context.Context, opts RemoveOptions) error {
	idx, err := m.refresh(ctx, opts.ProjectPath, true)
	if err != nil {
		return err
	}
	wt, ok := idx[opts.BeadID]
	if !ok {
		return nil
	}

	if err := m.syncSettingsBack(opts.ProjectPath, wt.Path); err != nil {
		m.log.Warn("syncing worktree settings back to project failed", "beadId", opts.BeadID, "error", err)
	}

	if err := m.git.RemoveWorktree(ctx, opts.ProjectPath, wt.Path); err != nil {
		return err
	}
	m.invalidate(opts.ProjectPath)
	_, err = m.refresh(ctx, opts.ProjectPath, true)
	return err
}

// List returns every tracked worktree for projectPath.
func (m *Manager) List(ctx context.Context, projectPath string) ([]*Worktree, error) {
	idx, err := m.refresh(ctx, projectPath, false)
	if err != nil {
		return nil, err
	}
	out := make([]*Worktree, 0, len(idx))
	for _, wt := range idx {
		out = append(out, wt)
	}
	return out, nil
}

// Exists reports whether a worktree exists for the given project/bead.
func (m *Manager) Exists(ctx context.Context, projectPath string, id bead.ID) (bool, error) {
	idx, err := m.refresh(ctx, projectPath, false)
	if err != nil {
		return false, err
	}
	_, ok := idx[id]
	return ok, nil
}

// Get returns the worktree for the given project/bead, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, projectPath string, id bead.ID) (*Worktree, error) {
	idx, err := m.refresh(ctx, projectPath, false)
	if err != nil {
		return nil, err
	}
	wt, ok := idx[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return wt, nil
}

// copyUntrackedPaths copies each of paths from source into dest,
// skipping paths that don't exist and logging (not failing) any copy
// error.
func (m *Manager) copyUntrackedPaths(source, dest string, paths []string) {
	g := new(errgroup.Group)
	for _, p := range paths {
		p := p
		g.Go(func() error {
			src := filepath.Join(source, p)
			if _, err := os.Stat(src); os.IsNotExist(err) {
				return nil
			}
			if err := copyPath(src, filepath.Join(dest, p)); err != nil {
				m.log.Warn("copying untracked path failed", "path", p, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyDir(src, dst)
	}
	return copyFile(src, dst, info.Mode())
}

func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s := filepath.Join(src, e.Name())
		d := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyDir(s, d); err != nil {
				return err
			}
			continue
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if err := copyFile(s, d, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, mode)
}
