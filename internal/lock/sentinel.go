package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// BeadsSyncKey is the name of the beads-sync lock. The merge engine and
// session manager serialize their tracker sync/syncImportOnly/
// recoverTombstones invocations through a Sentinel, not through a
// Manager key.
const BeadsSyncKey = "beads-sync"

// BeadsSyncTimeout is the acquisition timeout used for the beads-sync
// key, longer than the default lock timeout since a sync can itself
// shell out to a slow tracker daemon.
const BeadsSyncTimeout = 60 * time.Second

// Sentinel wraps an OS advisory file lock so that the beads-sync key
// is also serialized across separate orchestrator processes on the
// same host. Callers (merge.Engine, session.Manager) hold a Sentinel
// and call Lock/Unlock on it directly; it is independent of Manager.
type Sentinel struct {
	path string
	fl   *flock.Flock
}

// NewSentinel returns a sentinel backed by /tmp/<app>-beads-sync.lock.
func NewSentinel(appName string) *Sentinel {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-beads-sync.lock", appName))
	return &Sentinel{path: path, fl: flock.New(path)}
}

// Lock blocks until the OS-level lock is acquired or ctx is done.
func (s *Sentinel) Lock(ctx context.Context) error {
	ok, err := s.fl.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring beads-sync sentinel %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("acquiring beads-sync sentinel %s: %w", s.path, ctx.Err())
	}
	return nil
}

// Unlock releases the OS-level lock. Safe to call even if Lock never
// succeeded.
func (s *Sentinel) Unlock() error {
	return s.fl.Unlock()
}
