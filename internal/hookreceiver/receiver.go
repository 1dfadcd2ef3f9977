// Package hookreceiver polls the multiplexer for the session-scoped
// options the agent's hooks write (@az_status, @az_worktree,
// @az_project) and turns changes into SessionStateUpdate events.
package hookreceiver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/state"
	"github.com/azedarach-dev/azedarach/internal/tmux"
)

// errNoMultiplexer is returned by WorktreePath/ProjectPath when the
// Receiver has no tmux adapter wired, which only happens in tests that
// exercise applyState/applyVanished directly.
var errNoMultiplexer = errors.New("hookreceiver: no multiplexer adapter configured")

// PollInterval is how often the receiver rescans multiplexer sessions.
const PollInterval = 500 * time.Millisecond

const (
	optStatus   = "@az_status"
	optWorktree = "@az_worktree"
	optProject  = "@az_project"
)

// StateChange records one observed session-state transition. ID is a
// per-event correlation id assigned at publish time, so subscribers
// that fan events out further (logs, the TUI) can tie their records
// back to one emission.
type StateChange struct {
	ID        string
	BeadID    bead.ID
	OldState  state.SessionState
	NewState  state.SessionState
	Timestamp time.Time
}

// SessionStateUpdate is the richer per-poll event,
// carrying enough identity to let a subscriber locate the session
// without a second round-trip through the registry. WorktreePath and
// ProjectPath are nil when the session has vanished (CreatedAt is also
// zeroed in that case, per the disappearance contract). ID is a
// per-event correlation id assigned at publish time.
type SessionStateUpdate struct {
	ID           string
	BeadID       bead.ID
	Status       state.SessionState
	SessionName  string
	CreatedAt    int64
	WorktreePath *string
	ProjectPath  *string
}

// statusToState is deliberately narrow: hooks only ever write busy,
// waiting, or idle to @az_status, and any other value is skipped,
// since every other SessionState is either a registry-only concept
// (initializing, paused) or derived from StateDetector/UpdateState
// rather than written by a hook.
var statusToState = map[string]state.SessionState{
	"idle":    state.Idle,
	"busy":    state.Busy,
	"waiting": state.Waiting,
}

// Receiver polls known multiplexer sessions and fans SessionStateUpdate
// events out to subscribers. The fan-out is unbounded and lossy: a
// slow subscriber drops events rather than blocking the poll loop.
type Receiver struct {
	tmux *tmux.Tmux
	log  *slog.Logger

	mu   sync.Mutex
	last map[bead.ID]state.SessionState
	subs map[chan SessionStateUpdate]struct{}
}

// New returns a Receiver driving t.
func New(t *tmux.Tmux, log *slog.Logger) *Receiver {
	if log == nil {
		log = slog.Default()
	}
	return &Receiver{
		tmux: t,
		log:  log,
		last: make(map[bead.ID]state.SessionState),
		subs: make(map[chan SessionStateUpdate]struct{}),
	}
}

// Subscribe returns a channel of SessionStateUpdate events. Call the
// returned func to unsubscribe.
func (r *Receiver) Subscribe() (<-chan SessionStateUpdate, func()) {
	ch := make(chan SessionStateUpdate, 32)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
		close(ch)
	}
}

func (r *Receiver) publish(update SessionStateUpdate) {
	update.ID = uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- update:
		default:
			r.log.Warn("dropping state update for slow subscriber", "beadId", update.BeadID)
		}
	}
}

// Run polls until ctx is cancelled.
func (r *Receiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Receiver) poll(ctx context.Context) {
	sessions, err := r.tmux.ListSessions(ctx)
	if err != nil {
		r.log.Warn("listing multiplexer sessions failed", "error", err)
		return
	}

	seen := make(map[bead.ID]struct{}, len(sessions))
	for _, sess := range sessions {
		name := bead.ParseSessionName(sess.Name)
		if !name.IsBead {
			continue
		}
		seen[name.ID] = struct{}{}

		raw, err := r.tmux.ShowOption(ctx, sess.Name, optStatus)
		if err != nil {
			continue
		}
		newState, ok := statusToState[raw]
		if !ok {
			continue
		}
		r.applyState(sess, name.ID, newState)
	}

	r.mu.Lock()
	var vanished []bead.ID
	for id := range r.last {
		if _, ok := seen[id]; !ok {
			vanished = append(vanished, id)
		}
	}
	r.mu.Unlock()
	for _, id := range vanished {
		r.applyVanished(id)
	}
}

// applyState emits a SessionStateUpdate for sess iff its status
// differs from the last-seen status for that beadId, fetching the worktree/project paths the agent's hooks
// wrote so subscribers don't need a second round-trip.
func (r *Receiver) applyState(sess tmux.Session, id bead.ID, newState state.SessionState) {
	r.mu.Lock()
	old, existed := r.last[id]
	if existed && old == newState {
		r.mu.Unlock()
		return
	}
	r.last[id] = newState
	r.mu.Unlock()

	worktreePath, err := r.WorktreePath(context.Background(), sess.Name)
	var worktreePathPtr *string
	if err == nil {
		worktreePathPtr = &worktreePath
	}
	projectPath, err := r.ProjectPath(context.Background(), sess.Name)
	var projectPathPtr *string
	if err == nil {
		projectPathPtr = &projectPath
	}

	r.publish(SessionStateUpdate{
		BeadID:       id,
		Status:       newState,
		SessionName:  sess.Name,
		CreatedAt:    sess.CreatedAt.Unix(),
		WorktreePath: worktreePathPtr,
		ProjectPath:  projectPathPtr,
	})
}

// applyVanished emits the disappearance update for a beadId that was
// present in the previous poll but is absent now: an idle
// update with createdAt=0 and null paths.
func (r *Receiver) applyVanished(id bead.ID) {
	r.mu.Lock()
	old, existed := r.last[id]
	if !existed {
		r.mu.Unlock()
		return
	}
	if old == state.Idle {
		delete(r.last, id)
		r.mu.Unlock()
		return
	}
	r.last[id] = state.Idle
	r.mu.Unlock()

	r.publish(SessionStateUpdate{
		BeadID:      id,
		Status:      state.Idle,
		SessionName: string(id),
		CreatedAt:   0,
	})
}

// WorktreePath reads @az_worktree for session, the path the agent
// reports it is running in.
func (r *Receiver) WorktreePath(ctx context.Context, sessionName string) (string, error) {
	if r.tmux == nil {
		return "", errNoMultiplexer
	}
	return r.tmux.ShowOption(ctx, sessionName, optWorktree)
}

// ProjectPath reads @az_project for session.
func (r *Receiver) ProjectPath(ctx context.Context, sessionName string) (string, error) {
	if r.tmux == nil {
		return "", errNoMultiplexer
	}
	return r.tmux.ShowOption(ctx, sessionName, optProject)
}
