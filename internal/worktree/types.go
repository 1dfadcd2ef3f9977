package worktree

import "github.com/azedarach-dev/azedarach/internal/bead"

// Worktree is an isolated VCS
// working directory bound one-to-one to a bead and branch of the
// same name.
type Worktree struct {
	Path     string
	BeadID   bead.ID
	Branch   string
	Head     string
	IsLocked bool
}

// CreateOptions configures Manager.Create.
type CreateOptions struct {
	ProjectPath string
	BeadID      bead.ID
	// BaseBranch is the branch a new branch is created from when
	// BeadID has no existing local branch. Empty means "the project's
	// current branch".
	BaseBranch string
	// SourceWorktreePath is copied from for settings/untracked-path
	// materialization; empty means ProjectPath.
	SourceWorktreePath string
	// UntrackedCopyPaths defaults to [".direnv"] when nil.
	UntrackedCopyPaths []string
}

// RemoveOptions configures Manager.Remove.
type RemoveOptions struct {
	ProjectPath string
	BeadID      bead.ID
}
