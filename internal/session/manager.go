// Package session implements the session orchestrator: it owns
// the one authoritative registry of in-flight coding-assistant
// sessions, each bound one-to-one to a bead and a worktree.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/beads"
	"github.com/azedarach-dev/azedarach/internal/config"
	"github.com/azedarach-dev/azedarach/internal/hookreceiver"
	"github.com/azedarach-dev/azedarach/internal/state"
	"github.com/azedarach-dev/azedarach/internal/tmux"
	"github.com/azedarach-dev/azedarach/internal/vcs"
	"github.com/azedarach-dev/azedarach/internal/worktree"
)

// Errors surfaced by Manager.
var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("session in invalid state for this operation")
	// ErrSessionFailed wraps an init-command failure that aborted Start
	// before the session was registered (continueOnFailure == false).
	ErrSessionFailed = errors.New("session failed to start")
)

// pauseSettleDelay is how long Pause waits after sending the interrupt
// before syncing and committing, giving the agent process time to
// actually stop writing to the worktree.
const pauseSettleDelay = 500 * time.Millisecond

// beadsSyncTimeout bounds how long Stop/Pause wait for the beads-sync
// sentinel before giving up on the best-effort sync.
const beadsSyncTimeout = 60 * time.Second

// Sentinel is the subset of lock.Sentinel Manager depends on, the same
// host-wide beads-sync lock merge.Engine serializes tracker syncs
// through.
type Sentinel interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// Session is one live agent session bound to a bead and worktree.
type Session struct {
	BeadID                 bead.ID
	WorktreePath           string
	MultiplexerSessionName string
	State                  state.SessionState
	StartedAt              time.Time
	ProjectPath            string
}

// StateChange is re-exported from hookreceiver so callers of Manager
// don't need to import both packages to read a subscription.
type StateChange = hookreceiver.StateChange

// Manager owns the session registry. The zero value is not usable;
// construct with New.
type Manager struct {
	tmux      *tmux.Tmux
	worktrees *worktree.Manager
	tracker   *beads.Client
	sentinel  Sentinel
	git       *vcs.Git
	cfg       *config.Config
	log       *slog.Logger

	mu          sync.RWMutex
	registry    map[bead.ID]*Session
	projectPath string

	subMu sync.Mutex
	subs  map[chan StateChange]struct{}
}

// New returns a Manager. cfg may be nil, in which case config.Default()
// is used. sentinel is the host-wide beads-sync lock; it may be nil, in
// which case stop/pause skip the best-effort tracker sync entirely.
func New(t *tmux.Tmux, w *worktree.Manager, tracker *beads.Client, sentinel Sentinel, cfg *config.Config, log *slog.Logger) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		tmux:      t,
		worktrees: w,
		tracker:   tracker,
		sentinel:  sentinel,
		git:       &vcs.Git{},
		cfg:       cfg,
		log:       log,
		registry:  make(map[bead.ID]*Session),
		subs:      make(map[chan StateChange]struct{}),
	}
}

// Subscribe returns a channel of StateChange events published by
// Start, Stop and UpdateState. The fan-out is unbounded and lossy, matching
// hookreceiver's pub/sub posture.
func (m *Manager) Subscribe() (<-chan StateChange, func()) {
	ch := make(chan StateChange, 32)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch, func() {
		m.subMu.Lock()
		delete(m.subs, ch)
		m.subMu.Unlock()
		close(ch)
	}
}

func (m *Manager) publish(change StateChange) {
	change.ID = uuid.NewString()
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- change:
		default:
			m.log.Warn("dropping state change for slow subscriber", "beadId", change.BeadID)
		}
	}
}

// Start brings up a session for id: validates the bead, creates its
// worktree, runs configured init commands, and launches the
// multiplexer session.
func (m *Manager) Start(ctx context.Context, projectPath string, id bead.ID) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.registry[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", id, ErrSessionExists)
	}
	m.mu.Unlock()

	issue, err := m.tracker.Show(ctx, string(id))
	if err != nil {
		return nil, err
	}
	if issue.Status == beads.StatusClosed {
		m.log.Warn("starting session on closed issue", "beadId", id)
	}
	if issue.Status != beads.StatusInProgress {
		inProgress := beads.StatusInProgress
		if err := m.tracker.Update(ctx, string(id), beads.UpdateFields{Status: &inProgress}); err != nil {
			m.log.Warn("updating issue to in_progress failed", "beadId", id, "error", err)
		}
	}

	wt, err := m.worktrees.Create(ctx, worktree.CreateOptions{
		ProjectPath:        projectPath,
		BeadID:             id,
		BaseBranch:         m.cfg.Git.BaseBranch,
		UntrackedCopyPaths: m.cfg.Worktree.UntrackedCopyPaths,
	})
	if err != nil {
		return nil, err
	}

	if err := m.runInitCommands(ctx, wt.Path); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", id, ErrSessionFailed, err)
	}

	sessionName := string(id)
	exists, err := m.tmux.HasSession(ctx, sessionName)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := m.tmux.NewSession(ctx, sessionName, wt.Path, m.buildSessionCommand(wt.Path)); err != nil {
			return nil, err
		}
	}
	// Seed the IPC options the agent's hooks update and HookReceiver
	// reads back, so a poll between session start and the first hook
	// firing still sees where this session lives.
	if err := m.tmux.SetOption(ctx, sessionName, "@az_worktree", wt.Path); err != nil {
		m.log.Warn("setting @az_worktree failed", "beadId", id, "error", err)
	}
	if err := m.tmux.SetOption(ctx, sessionName, "@az_project", projectPath); err != nil {
		m.log.Warn("setting @az_project failed", "beadId", id, "error", err)
	}

	sess := &Session{
		BeadID:                 id,
		WorktreePath:           wt.Path,
		MultiplexerSessionName: sessionName,
		State:                  state.Busy,
		StartedAt:              time.Now(),
		ProjectPath:            projectPath,
	}

	m.mu.Lock()
	m.registry[id] = sess
	m.projectPath = projectPath
	m.mu.Unlock()

	m.publish(StateChange{BeadID: id, OldState: state.Idle, NewState: state.Busy, Timestamp: sess.StartedAt})
	return sess, nil
}

// buildSessionCommand builds the inner shell command a multiplexer
// session runs: the configured assistant
// invocation, optionally wrapped so an `.envrc` in worktreePath loads,
// optionally suffixed with the configured initial prompt, all run
// by `<shell> -c`, which execs a fresh shell on exit so the pane
// stays attachable after the assistant quits.
func (m *Manager) buildSessionCommand(worktreePath string) string {
	shell := m.cfg.Session.Shell
	if shell == "" {
		shell = "bash"
	}

	effective := m.cfg.Session.Command
	if m.cfg.Session.DangerouslySkipPermissions {
		effective += " --dangerously-skip-permissions"
	}
	if _, err := os.Stat(filepath.Join(worktreePath, ".envrc")); err == nil {
		effective = fmt.Sprintf("direnv exec %s %s", worktreePath, effective)
	}
	if m.cfg.Session.InitialPrompt != "" {
		effective = fmt.Sprintf(`%s "%s"`, effective, escapeDoubleQuoted(m.cfg.Session.InitialPrompt))
	}

	return fmt.Sprintf("%s -c '%s; exec %s'", shell, effective, shell)
}

// escapeDoubleQuoted backslash-escapes the characters that are special
// inside a double-quoted POSIX shell argument.
func escapeDoubleQuoted(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return r.Replace(s)
}

// runInitCommands runs cfg.Worktree.InitCommands inside the new
// worktree with cfg.Worktree.Env layered over the process environment,
// before the multiplexer session exists. Commands run sequentially
// unless cfg.Worktree.Parallel is set. A non-zero exit is logged as a
// warning; with ContinueOnFailure false it also aborts Start.
func (m *Manager) runInitCommands(ctx context.Context, worktreePath string) error {
	cmds := m.cfg.Worktree.InitCommands
	if len(cmds) == 0 {
		return nil
	}

	env := os.Environ()
	for k, v := range m.cfg.Worktree.Env {
		env = append(env, k+"="+v)
	}
	run := func(cmdLine string) error {
		cmd := exec.CommandContext(ctx, "sh", "-c", cmdLine)
		cmd.Dir = worktreePath
		cmd.Env = env
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("init command %q: %s: %w", cmdLine, strings.TrimSpace(stderr.String()), err)
		}
		return nil
	}

	if m.cfg.Worktree.Parallel {
		g := new(errgroup.Group)
		for _, cmdLine := range cmds {
			cmdLine := cmdLine
			g.Go(func() error {
				if err := run(cmdLine); err != nil {
					m.log.Warn("init command failed", "error", err)
					if !m.cfg.Worktree.ContinueOnFailure {
						return err
					}
				}
				return nil
			})
		}
		return g.Wait()
	}

	for _, cmdLine := range cmds {
		if err := run(cmdLine); err != nil {
			m.log.Warn("init command failed", "error", err)
			if !m.cfg.Worktree.ContinueOnFailure {
				return err
			}
		}
	}
	return nil
}

// Stop runs a best-effort tracker sync for id's worktree, kills its
// multiplexer session (ignoring errors — many callers invoke this
// after the session is already gone), and removes it from the
// registry. The worktree survives; callers use worktree.Manager.Remove
// separately once any merge has landed.
func (m *Manager) Stop(ctx context.Context, id bead.ID) error {
	m.mu.Lock()
	sess, exists := m.registry[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	delete(m.registry, id)
	m.mu.Unlock()

	m.syncUnderLock(ctx, sess.WorktreePath)

	pgid, pidErr := m.tmux.PanePID(ctx, sess.MultiplexerSessionName)
	_ = m.tmux.KillSession(ctx, sess.MultiplexerSessionName)
	if pidErr == nil && pgid > 0 {
		tmux.KillProcessGroup(pgid)
	}

	m.publish(StateChange{BeadID: id, OldState: sess.State, NewState: state.Idle, Timestamp: time.Now()})
	return nil
}

// Pause sends an interrupt to id's session, waits for it to settle,
// syncs the tracker best-effort, and commits any resulting worktree
// changes as a WIP commit before marking the session paused.
func (m *Manager) Pause(ctx context.Context, id bead.ID) error {
	sess, err := m.mustGet(id)
	if err != nil {
		return err
	}
	if err := m.tmux.SendInterrupt(ctx, sess.MultiplexerSessionName); err != nil {
		return err
	}

	select {
	case <-time.After(pauseSettleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	m.syncUnderLock(ctx, sess.WorktreePath)

	if err := m.commitDirty(ctx, sess.WorktreePath, "WIP: Paused session"); err != nil {
		m.log.Warn("committing paused worktree state failed", "beadId", id, "error", err)
	}

	m.UpdateState(id, state.Paused)
	return nil
}

// syncUnderLock runs a best-effort tracker sync for worktreePath under
// the host-wide beads-sync sentinel. Acquisition or sync failure logs a
// warning rather than propagating, matching MergeEngine's policy for
// the same lock.
func (m *Manager) syncUnderLock(ctx context.Context, worktreePath string) {
	if m.sentinel == nil {
		return
	}
	lockCtx, cancel := context.WithTimeout(ctx, beadsSyncTimeout)
	defer cancel()
	if err := m.sentinel.Lock(lockCtx); err != nil {
		m.log.Warn("acquiring beads-sync lock failed, skipping sync", "error", err)
		return
	}
	defer func() {
		if err := m.sentinel.Unlock(); err != nil {
			m.log.Warn("releasing beads-sync sentinel failed", "error", err)
		}
	}()
	if _, err := m.tracker.Sync(ctx, beads.WithCWD(worktreePath)); err != nil {
		m.log.Warn("tracker sync failed", "error", err)
	}
}

// commitDirty stages and commits any uncommitted changes in dir with
// msg, a no-op if the tree is clean.
func (m *Manager) commitDirty(ctx context.Context, dir, msg string) error {
	paths, err := m.git.StatusPorcelain(ctx, dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}
	if err := m.git.AddAll(ctx, dir); err != nil {
		return err
	}
	if err := m.git.Commit(ctx, dir, msg); err != nil && !vcs.HasNothingToCommit(err) {
		return err
	}
	return nil
}

// Resume marks a paused session busy again. It does not reattach the
// multiplexer session; that is the user's to do.
func (m *Manager) Resume(ctx context.Context, id bead.ID) error {
	sess, err := m.mustGet(id)
	if err != nil {
		return err
	}
	if sess.State != state.Paused {
		return fmt.Errorf("%s: %w", id, ErrInvalidState)
	}
	m.UpdateState(id, state.Busy)
	return nil
}

func (m *Manager) mustGet(id bead.ID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.registry[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrSessionNotFound)
	}
	return sess, nil
}

// GetState returns id's current state.
func (m *Manager) GetState(id bead.ID) (state.SessionState, error) {
	sess, err := m.mustGet(id)
	if err != nil {
		return "", err
	}
	return sess.State, nil
}

// UpdateState records a new state for id, publishing a StateChange if
// it differs from the prior state. Done and error are sticky: once
// set, only Stop (which deletes the registry entry entirely) can clear
// them.
func (m *Manager) UpdateState(id bead.ID, newState state.SessionState) {
	m.mu.Lock()
	sess, ok := m.registry[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	old := sess.State
	if old == state.Done || old == state.Error {
		m.mu.Unlock()
		return
	}
	if old == newState {
		m.mu.Unlock()
		return
	}
	sess.State = newState
	m.mu.Unlock()

	m.publish(StateChange{BeadID: id, OldState: old, NewState: newState, Timestamp: time.Now()})
}

// ListActive returns every registered session, plus a synthesized
// orphan entry for any multiplexer session whose name matches the bead
// pattern but is absent from the registry (e.g. after a process
// restart), so one-off inconsistencies self-heal. Orphans are attributed
// to the current project; see the multi-project caveat in DESIGN.md.
func (m *Manager) ListActive(ctx context.Context) []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.registry))
	known := make(map[bead.ID]struct{}, len(m.registry))
	for id, sess := range m.registry {
		copySess := *sess
		out = append(out, &copySess)
		known[id] = struct{}{}
	}
	projectPath := m.projectPath
	m.mu.RUnlock()

	sessions, err := m.tmux.ListSessions(ctx)
	if err != nil {
		m.log.Warn("listing multiplexer sessions for reconciliation failed", "error", err)
		return out
	}
	for _, sess := range sessions {
		name := bead.ParseSessionName(sess.Name)
		if !name.IsBead {
			continue
		}
		if _, ok := known[name.ID]; ok {
			continue
		}
		out = append(out, &Session{
			BeadID:                 name.ID,
			MultiplexerSessionName: sess.Name,
			State:                  state.Busy,
			StartedAt:              sess.CreatedAt,
			ProjectPath:            projectPath,
		})
	}
	return out
}
