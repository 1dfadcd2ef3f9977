package worktree

import "errors"

// Error kinds surfaced by Manager: create is idempotent
// so WorktreeExists is never produced; remove treats a missing entry
// as a no-op so WorktreeNotFound is likewise never surfaced from
// remove, only from get/exists callers that require presence.
var (
	ErrNotFound = errors.New("worktree not found")
	// ErrNotVisible means `git worktree add` succeeded but the new
	// entry never showed up in the worktree listing within the
	// post-create retry window (a lagging filesystem, usually).
	ErrNotVisible = errors.New("worktree not visible after create")
)
