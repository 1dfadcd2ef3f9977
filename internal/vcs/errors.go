package vcs

import (
	"errors"
	"fmt"
)

// ErrNotAGitRepo is returned when an operation expects projectPath to
// be a VCS repository and rev-parse --git-dir fails.
var ErrNotAGitRepo = errors.New("not a git repository")

// Error wraps a non-zero exit from git with its stderr.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %v: %v: %s", e.Args, e.Err, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }
