// Package lock implements an in-process, keyed reader/writer lock
// registry with a strict FIFO wait queue, for any caller that needs
// mutual exclusion over a string-keyed resource for the lifetime of
// this process.
//
// Locks here are host-local and in-memory only; they are not a
// substitute for cross-process coordination. The Sentinel type in this
// package (sentinel.go) is a separate OS advisory file lock for the
// "beads-sync" lock, which must also be held across separate
// orchestrator processes on the same host; it does not go through
// Manager.
package lock

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrTimeout  = errors.New("lock acquisition timed out")
	ErrConflict = errors.New("lock held by another session")
)

// Type distinguishes exclusive (writer) from shared (reader) locks.
type Type int

const (
	Shared Type = iota
	Exclusive
)

func (t Type) String() string {
	if t == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Lock is a granted hold on a key. It is returned by Acquire and
// passed back to Release.
type Lock struct {
	ID         string
	Path       string
	Type       Type
	AcquiredAt time.Time
	SessionID  string
}

// State is a point-in-time snapshot of a key's holders and queue,
// returned by GetLockState and Snapshot.
type State struct {
	ExclusiveHolder *Lock
	SharedHolders   []*Lock
	WaitingCount    int
}

// DefaultTimeout is used by Acquire when no timeout is supplied.
const DefaultTimeout = 30 * time.Second

type waiter struct {
	lockType  Type
	sessionID string
	grant     chan *Lock
}

type pathState struct {
	exclusiveHolder *Lock
	sharedHolders   map[string]*Lock // lock ID -> Lock
	waiters         []*waiter
}

func (ps *pathState) empty() bool {
	return ps.exclusiveHolder == nil && len(ps.sharedHolders) == 0 && len(ps.waiters) == 0
}

// Manager is a registry of reader/writer locks keyed by normalized
// path. The zero value is not usable; construct with NewManager.
type Manager struct {
	mu    sync.Mutex
	state map[string]*pathState
}

// NewManager returns an empty lock registry.
func NewManager() *Manager {
	return &Manager{state: make(map[string]*pathState)}
}

func normalize(path string) string {
	return filepath.Clean(path)
}

// Acquire grants a lock on path, suspending the caller if the
// requested type is not currently compatible with existing holders.
// It fails with ErrTimeout if not granted within timeout (DefaultTimeout
// if timeout <= 0), and respects ctx cancellation the same way —
// cancellation always removes the waiter from the queue before
// returning, so no zombie waiters are left behind.
func (m *Manager) Acquire(ctx context.Context, path string, typ Type, timeout time.Duration, sessionID string) (*Lock, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	key := normalize(path)

	m.mu.Lock()
	ps, ok := m.state[key]
	if !ok {
		ps = &pathState{sharedHolders: make(map[string]*Lock)}
		m.state[key] = ps
	}

	if len(ps.waiters) == 0 && compatible(ps, typ) {
		l := m.grant(ps, key, typ, sessionID)
		m.mu.Unlock()
		return l, nil
	}

	w := &waiter{lockType: typ, sessionID: sessionID, grant: make(chan *Lock, 1)}
	ps.waiters = append(ps.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case l := <-w.grant:
		return l, nil
	case <-timer.C:
		m.abandon(key, w)
		return nil, fmt.Errorf("%w: %s lock on %q after %s", ErrTimeout, typ, key, timeout)
	case <-ctx.Done():
		m.abandon(key, w)
		return nil, fmt.Errorf("%w: %s lock on %q: %w", ErrTimeout, typ, key, ctx.Err())
	}
}

// abandon is the timeout/cancellation cleanup path: remove w from the
// queue, and if the grant walk already handed w a lock concurrently
// with the deadline firing, give that lock straight back so it doesn't
// leak a holder nobody owns.
func (m *Manager) abandon(key string, w *waiter) {
	m.dequeue(key, w)
	select {
	case l := <-w.grant:
		_ = m.Release(l)
	default:
	}
}

// compatible reports whether typ can be granted immediately given the
// current holders of ps (ignoring the wait queue).
func compatible(ps *pathState, typ Type) bool {
	if typ == Exclusive {
		return ps.exclusiveHolder == nil && len(ps.sharedHolders) == 0
	}
	return ps.exclusiveHolder == nil
}

// grant must be called with m.mu held. It creates and records a Lock.
func (m *Manager) grant(ps *pathState, key string, typ Type, sessionID string) *Lock {
	l := &Lock{
		ID:         uuid.NewString(),
		Path:       key,
		Type:       typ,
		AcquiredAt: time.Now(),
		SessionID:  sessionID,
	}
	if typ == Exclusive {
		ps.exclusiveHolder = l
	} else {
		ps.sharedHolders[l.ID] = l
	}
	return l
}

// dequeue removes w from path's wait queue if it is still present
// (it may already have been granted concurrently with the timeout
// firing, in which case this is a no-op).
func (m *Manager) dequeue(path string, w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.state[path]
	if !ok {
		return
	}
	for i, q := range ps.waiters {
		if q == w {
			ps.waiters = append(ps.waiters[:i], ps.waiters[i+1:]...)
			break
		}
	}
	// w may have been ahead of a waiter whose lock type is already
	// compatible with the current holders, so re-run the grant walk
	// rather than leaving it stuck behind a waiter that just left.
	m.grantWaitersLocked(ps, path)
	m.reclaimLocked(path, ps)
}

// Release releases l. It is idempotent: releasing a lock that is no
// longer held (or was never tracked) is not an error.
func (m *Manager) Release(l *Lock) error {
	if l == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ps, ok := m.state[l.Path]
	if !ok {
		return nil
	}

	switch l.Type {
	case Exclusive:
		if ps.exclusiveHolder != nil && ps.exclusiveHolder.ID == l.ID {
			ps.exclusiveHolder = nil
		}
	case Shared:
		delete(ps.sharedHolders, l.ID)
	}

	m.grantWaitersLocked(ps, l.Path)
	m.reclaimLocked(l.Path, ps)
	return nil
}

// grantWaitersLocked walks the FIFO queue from the front, granting as
// many consecutive compatible waiters as possible. A waiter that
// cannot yet be granted blocks everyone behind it — this is what makes
// the queue fair in both directions (no reader or writer starvation).
func (m *Manager) grantWaitersLocked(ps *pathState, path string) {
	for len(ps.waiters) > 0 {
		w := ps.waiters[0]
		if !compatible(ps, w.lockType) {
			return
		}
		l := m.grant(ps, path, w.lockType, w.sessionID)
		ps.waiters = ps.waiters[1:]
		w.grant <- l
	}
}

// reclaimLocked removes path's entry once it has no holders and no
// waiters, so the map never accumulates dead keys.
func (m *Manager) reclaimLocked(path string, ps *pathState) {
	if ps.empty() {
		delete(m.state, path)
	}
}

// GetLockState returns the current snapshot for path, or nil if the
// key has no holders and no waiters (equivalently, is not tracked).
func (m *Manager) GetLockState(path string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.state[normalize(path)]
	if !ok {
		return nil
	}
	return snapshot(ps)
}

// Snapshot returns the state of every currently tracked key, for
// introspection (the `azedarach lock status` CLI subcommand).
func (m *Manager) Snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.state))
	for k, ps := range m.state {
		out[k] = *snapshot(ps)
	}
	return out
}

func snapshot(ps *pathState) *State {
	shared := make([]*Lock, 0, len(ps.sharedHolders))
	for _, l := range ps.sharedHolders {
		shared = append(shared, l)
	}
	return &State{
		ExclusiveHolder: ps.exclusiveHolder,
		SharedHolders:   shared,
		WaitingCount:    len(ps.waiters),
	}
}
