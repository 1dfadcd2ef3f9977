// Package merge implements the merge engine: landing a
// bead's branch onto the base branch, predicting conflicts before
// mutating any VCS state, and running the configured validation/fix
// cycle around the merge.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/beads"
	"github.com/azedarach-dev/azedarach/internal/config"
	"github.com/azedarach-dev/azedarach/internal/session"
	"github.com/azedarach-dev/azedarach/internal/tmux"
	"github.com/azedarach-dev/azedarach/internal/vcs"
	"github.com/azedarach-dev/azedarach/internal/worktree"
)

// pushRetryCount/pushRetryDelay bound the post-merge push backoff.
const pushRetryCount = 3
const pushRetryDelay = 2 * time.Second

// beadsSyncTimeout bounds how long Run waits for the beads-sync
// sentinel; acquisition failure degrades silently rather than failing
// the merge.
const beadsSyncTimeout = 60 * time.Second

// Engine runs merges for a single project. The zero value is not
// usable; construct with New.
type Engine struct {
	git       *vcs.Git
	tmux      *tmux.Tmux
	tracker   *beads.Client
	worktrees *worktree.Manager
	sessions  *session.Manager
	sentinel  Sentinel
	cfg       *config.Config
	log       *slog.Logger

	// AutoCommitDirty controls step 3 of mergeToMain: whether dirty
	// worktree changes are staged and committed automatically before
	// merging, rather than refusing to proceed. Default true; it is a
	// field rather than configuration so programmatic callers can
	// refuse instead.
	AutoCommitDirty bool
}

// Sentinel is the subset of lock.Sentinel Engine depends on, narrowed
// to keep this package's import surface to what it actually calls.
type Sentinel interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// New returns an Engine. cfg may be nil, in which case config.Default()
// is used.
func New(tracker *beads.Client, worktrees *worktree.Manager, sessions *session.Manager, t *tmux.Tmux, sentinel Sentinel, cfg *config.Config, log *slog.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		git:             &vcs.Git{},
		tmux:            t,
		tracker:         tracker,
		worktrees:       worktrees,
		sessions:        sessions,
		sentinel:        sentinel,
		cfg:             cfg,
		log:             log,
		AutoCommitDirty: true,
	}
}

// Run executes mergeToMain for beadId: stop the agent, commit dirty
// changes, predict and merge, reconcile the tracker, validate with a
// bounded auto-fix loop, fold settings back, remove the worktree, and
// optionally push.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (Result, error) {
	id := bead.ID(opts.BeadID)
	base := opts.BaseBranch
	if base == "" {
		base = e.cfg.Git.BaseBranch
	}

	issue, err := e.tracker.Show(ctx, opts.BeadID)
	if err != nil {
		return Result{}, err
	}
	wt, err := e.worktrees.Get(ctx, opts.ProjectPath, id)
	if err != nil {
		return Result{}, err
	}

	if e.sessions != nil {
		if err := e.sessions.Stop(ctx, id); err != nil && e.tmux != nil {
			// best-effort: the session may already be gone.
			_ = e.tmux.KillSession(ctx, string(id))
		}
	} else if e.tmux != nil {
		_ = e.tmux.KillSession(ctx, string(id))
	}

	if e.AutoCommitDirty {
		if err := e.commitDirty(ctx, wt.Path, fmt.Sprintf("Complete %s: %s", id, issue.Title)); err != nil {
			return Result{}, err
		}
	} else {
		dirty, err := e.CheckUncommittedChanges(ctx, wt.Path)
		if err != nil {
			return Result{}, err
		}
		if len(dirty) > 0 {
			return Result{}, fmt.Errorf("worktree %s has uncommitted changes: %s", wt.Path, strings.Join(dirty, ", "))
		}
	}

	conflictResult, err := e.checkMergeConflicts(ctx, opts.ProjectPath, base, string(id))
	if err != nil {
		return Result{}, err
	}
	if conflictResult.HasConflicts {
		_ = e.git.Merge(ctx, wt.Path, base, vcs.MergeOptions{NoEdit: true})
		e.startConflictResolution(ctx, wt.Path, id, conflictResult.ConflictPaths)
		return Result{Conflict: true, ConflictPaths: conflictResult.ConflictPaths},
			&MergeConflictError{Paths: conflictResult.ConflictPaths}
	}

	if err := e.git.Checkout(ctx, opts.ProjectPath, base); err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("Merge %s: %s", id, issue.Title)
	stdout, stderr, code, runErr := e.git.RunRaw(ctx, opts.ProjectPath, "merge", string(id), "--no-ff", "-m", msg, "-X", "ours")
	if runErr != nil {
		return Result{}, runErr
	}
	if strings.Contains(stderr, "CONFLICT") || strings.Contains(stdout, "CONFLICT") {
		return Result{Conflict: true}, &MergeConflictError{}
	}
	if code != 0 {
		_ = e.AbortMerge(ctx, opts.ProjectPath)
		return Result{}, &vcs.Error{Args: []string{"merge", string(id)}, Stderr: stderr, Err: fmt.Errorf("exit code %d", code)}
	}

	e.syncUnderLock(ctx, opts.ProjectPath)

	fixAttempts, validationErr := e.runValidation(ctx, opts.ProjectPath, id)
	if validationErr != nil {
		// Leave the worktree, branch, and issue alone: the partial fix is
		// already committed by runValidation, and the caller takes over
		// from there rather than having the merge tear everything down.
		return Result{FixAttempts: fixAttempts}, validationErr
	}

	if err := e.worktrees.Remove(ctx, worktree.RemoveOptions{ProjectPath: opts.ProjectPath, BeadID: id}); err != nil {
		e.log.Warn("removing worktree after merge failed", "beadId", id, "error", err)
	}
	if err := e.git.DeleteBranch(ctx, opts.ProjectPath, string(id)); err != nil {
		e.log.Warn("deleting merged branch failed", "beadId", id, "error", err)
	}
	if err := e.tracker.Close(ctx, opts.BeadID, "merged"); err != nil {
		e.log.Warn("closing issue after merge failed", "beadId", id, "error", err)
	}
	e.syncUnderLock(ctx, opts.ProjectPath)

	head, err := e.git.Run(ctx, opts.ProjectPath, "rev-parse", "HEAD")
	if err != nil {
		return Result{FixAttempts: fixAttempts}, err
	}

	if e.cfg.Merge.PushToOrigin {
		if err := e.pushWithRetry(ctx, opts.ProjectPath, base); err != nil {
			return Result{FixAttempts: fixAttempts, MergeCommit: head}, err
		}
	}

	return Result{Success: true, MergeCommit: head, FixAttempts: fixAttempts}, nil
}

// commitDirty stages and commits any uncommitted changes in dir with
// msg, a no-op if the tree is clean.
func (e *Engine) commitDirty(ctx context.Context, dir, msg string) error {
	paths, err := e.git.StatusPorcelain(ctx, dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	if err := e.git.AddAll(ctx, dir); err != nil {
		return err
	}
	if err := e.git.Commit(ctx, dir, msg); err != nil && !vcs.HasNothingToCommit(err) {
		return err
	}
	return nil
}

// startConflictResolution spawns an agent session for beadId with an
// initial prompt naming the conflicting files. The merge always fails to the caller regardless of whether this
// succeeds; it is best-effort.
func (e *Engine) startConflictResolution(ctx context.Context, worktreePath string, id bead.ID, paths []string) {
	if e.sessions == nil || e.tmux == nil {
		return
	}
	if err := e.tmux.NewSession(ctx, string(id)+"-resolve", worktreePath, e.cfg.Session.Command); err != nil {
		e.log.Warn("starting conflict-resolution session failed", "beadId", id, "error", err)
		return
	}
	prompt := fmt.Sprintf("Merge conflict in %s. Resolve and commit: %s", id, strings.Join(paths, ", "))
	if err := e.tmux.SendKeys(ctx, string(id)+"-resolve", prompt); err != nil {
		e.log.Warn("sending conflict-resolution prompt failed", "beadId", id, "error", err)
	}
}

// checkMergeConflicts predicts whether merging branch into base would
// conflict, without mutating any VCS state, filtering out .beads/
// paths since those are reconciled by tracker sync rather than git
// merge.
func (e *Engine) checkMergeConflicts(ctx context.Context, projectPath, base, branch string) (vcs.MergeTreeResult, error) {
	result, err := e.git.MergeTree(ctx, projectPath, base, branch)
	if err != nil {
		return vcs.MergeTreeResult{}, err
	}
	e.logSideCounts(ctx, projectPath, base, branch)
	if !result.HasConflicts {
		return result, nil
	}
	var real []string
	for _, p := range result.ConflictPaths {
		if !strings.HasPrefix(p, ".beads/") {
			real = append(real, p)
		}
	}
	if len(real) == 0 {
		return vcs.MergeTreeResult{}, nil
	}
	return vcs.MergeTreeResult{HasConflicts: true, ConflictPaths: real}, nil
}

// CheckUncommittedChanges parses `git status --porcelain` in dir,
// returning the changed paths.
func (e *Engine) CheckUncommittedChanges(ctx context.Context, dir string) ([]string, error) {
	return e.git.StatusPorcelain(ctx, dir)
}

// logSideCounts logs how far base and branch have diverged, purely
// informational context alongside a conflict prediction.
func (e *Engine) logSideCounts(ctx context.Context, projectPath, base, branch string) {
	baseChanged, err := e.git.DiffNameOnly(ctx, projectPath, branch, base)
	if err != nil {
		return
	}
	branchChanged, err := e.git.DiffNameOnly(ctx, projectPath, base, branch)
	if err != nil {
		return
	}
	baseAhead, _ := e.git.RevListCount(ctx, projectPath, branch, base)
	branchAhead, _ := e.git.RevListCount(ctx, projectPath, base, branch)
	e.log.Info("merge conflict prediction",
		"base", base, "branch", branch,
		"filesChangedOnBase", len(baseChanged), "filesChangedOnBranch", len(branchChanged),
		"commitsBaseAhead", baseAhead, "commitsBranchAhead", branchAhead)
}

// UpdateFromBase brings base into a bead's worktree: fetch, predict
// conflicts excluding .beads/, and either merge directly or spawn an
// agent to resolve.
func (e *Engine) UpdateFromBase(ctx context.Context, projectPath string, id bead.ID, base string) error {
	wt, err := e.worktrees.Get(ctx, projectPath, id)
	if err != nil {
		return err
	}
	if err := e.git.Fetch(ctx, wt.Path, base+":"+base); err != nil {
		e.log.Warn("fast-forwarding local base from origin failed, proceeding with local refs", "base", base, "error", err)
	}
	result, err := e.checkMergeConflicts(ctx, wt.Path, base, "HEAD")
	if err != nil {
		return err
	}
	if result.HasConflicts {
		_ = e.git.Merge(ctx, wt.Path, base, vcs.MergeOptions{NoEdit: true})
		e.startConflictResolution(ctx, wt.Path, id, result.ConflictPaths)
		return &MergeConflictError{Paths: result.ConflictPaths}
	}
	if err := e.git.Merge(ctx, wt.Path, base, vcs.MergeOptions{NoEdit: true}); err != nil {
		_ = e.AbortMerge(ctx, wt.Path)
		return err
	}
	e.syncUnderLock(ctx, projectPath)
	return nil
}

// MergeMainIntoBranch is like UpdateFromBase but auto-stashes
// uncommitted worktree changes around the merge, popping the stash on
// clean completion.
func (e *Engine) MergeMainIntoBranch(ctx context.Context, projectPath string, id bead.ID, base string) error {
	wt, err := e.worktrees.Get(ctx, projectPath, id)
	if err != nil {
		return err
	}
	paths, err := e.CheckUncommittedChanges(ctx, wt.Path)
	if err != nil {
		return err
	}
	stashed := false
	if len(paths) > 0 {
		if err := e.git.StashPush(ctx, wt.Path, "azedarach: auto-stash before base merge"); err != nil {
			return err
		}
		stashed = true
	}
	err = e.UpdateFromBase(ctx, projectPath, id, base)
	if stashed && err == nil {
		if popErr := e.git.StashPop(ctx, wt.Path); popErr != nil {
			e.log.Warn("restoring stashed changes failed", "beadId", id, "error", popErr)
		}
	}
	return err
}

// AbortMerge aborts an in-progress merge, best-effort.
func (e *Engine) AbortMerge(ctx context.Context, dir string) error {
	return e.git.MergeAbort(ctx, dir)
}

// syncUnderLock runs syncImportOnly, recoverTombstones, then sync
// under the beads-sync sentinel. Any failure, including failure to
// acquire the lock, logs a warning and does not abort the merge.
func (e *Engine) syncUnderLock(ctx context.Context, projectPath string) {
	if e.sentinel == nil {
		return
	}
	lockCtx, cancel := context.WithTimeout(ctx, beadsSyncTimeout)
	defer cancel()
	if err := e.sentinel.Lock(lockCtx); err != nil {
		e.log.Warn("acquiring beads-sync lock failed, skipping sync", "error", err)
		return
	}
	defer func() {
		if err := e.sentinel.Unlock(); err != nil {
			e.log.Warn("releasing beads-sync sentinel failed", "error", err)
		}
	}()

	if err := e.tracker.SyncImportOnly(ctx, beads.WithCWD(projectPath)); err != nil {
		e.log.Warn("syncImportOnly failed", "error", err)
	}
	if _, err := e.tracker.RecoverTombstones(ctx, beads.WithCWD(projectPath)); err != nil {
		e.log.Warn("recoverTombstones failed", "error", err)
	}
	if _, err := e.tracker.Sync(ctx, beads.WithCWD(projectPath)); err != nil {
		e.log.Warn("sync failed", "error", err)
	}
}

// runValidation runs cfg.Merge.ValidateCommands in the project root,
// retrying via cfg.Merge.FixCommand up to cfg.Merge.MaxFixAttempts
// times on failure, committing partial fixes as it goes.
func (e *Engine) runValidation(ctx context.Context, projectPath string, id bead.ID) (int, error) {
	cmds := e.cfg.Merge.ValidateCommands
	if len(cmds) == 0 {
		return 0, nil
	}

	attempts := 0
	var lastErr error
	for {
		failedCmd, err := e.runCommands(ctx, projectPath, cmds)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if attempts >= e.cfg.Merge.MaxFixAttempts || e.cfg.Merge.FixCommand == "" {
			if err := e.commitDirty(ctx, projectPath, fmt.Sprintf("wip: partial fix after merging %s", id)); err != nil {
				e.log.Warn("committing partial fix failed", "beadId", id, "error", err)
			}
			if e.cfg.Merge.StartClaudeOnFailure {
				e.startValidationFailureSession(ctx, projectPath, id, failedCmd)
			}
			return attempts, &TypeCheckError{Command: failedCmd, Output: lastErr.Error(), Attempts: attempts}
		}
		attempts++
		if err := runShell(ctx, projectPath, e.cfg.Merge.FixCommand); err != nil {
			e.log.Warn("fix command failed", "attempt", attempts, "error", err)
		}
		if err := e.commitDirty(ctx, projectPath, fmt.Sprintf("fix: auto-fix after merging %s", id)); err != nil {
			e.log.Warn("committing auto-fix failed", "beadId", id, "error", err)
		}
	}
}

// startValidationFailureSession spawns an agent session describing the
// failed validate command. Best-effort.
func (e *Engine) startValidationFailureSession(ctx context.Context, projectPath string, id bead.ID, failedCmd string) {
	if e.tmux == nil {
		return
	}
	name := string(id) + "-fix"
	if err := e.tmux.NewSession(ctx, name, projectPath, e.cfg.Session.Command); err != nil {
		e.log.Warn("starting post-merge fix session failed", "beadId", id, "error", err)
		return
	}
	prompt := fmt.Sprintf("Post-merge validation failed for %s: %s", id, failedCmd)
	if err := e.tmux.SendKeys(ctx, name, prompt); err != nil {
		e.log.Warn("sending post-merge fix prompt failed", "beadId", id, "error", err)
	}
}

func (e *Engine) runCommands(ctx context.Context, dir string, cmds []string) (string, error) {
	for _, cmd := range cmds {
		if err := runShell(ctx, dir, cmd); err != nil {
			return cmd, err
		}
	}
	return "", nil
}

// pushWithRetry pushes branch to origin with exponential backoff. A
// push failure never undoes the local merge; the caller reports it
// with a retry hint instead.
func (e *Engine) pushWithRetry(ctx context.Context, projectPath, branch string) error {
	var lastErr error
	delay := pushRetryDelay
	for attempt := 0; attempt <= pushRetryCount; attempt++ {
		if attempt > 0 {
			e.log.Warn("push retry", "attempt", attempt, "of", pushRetryCount, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		if err := e.git.Push(ctx, projectPath, branch); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("push failed after %d retries: %w", pushRetryCount, lastErr)
}
