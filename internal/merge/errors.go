package merge

import "errors"

// Errors surfaced by Engine.
var (
	// ErrMergeConflict means a merge-tree dry run predicted real
	// conflicts outside .beads/, or an actual merge left the tree in a
	// conflicted state — the caller must retry after resolution.
	ErrMergeConflict = errors.New("merge conflict")
	// ErrValidationFailed means the configured validate commands failed
	// and the configured fix attempts were exhausted.
	ErrValidationFailed = errors.New("validation failed")
)

// MergeConflictError carries the paths a conflict was predicted in.
// Paths is empty when the conflict was detected by the real merge
// rather than predicted.
type MergeConflictError struct {
	Paths []string
}

func (e *MergeConflictError) Error() string {
	return "merge conflict, retry after resolution: " + joinPaths(e.Paths)
}

func (e *MergeConflictError) Unwrap() error { return ErrMergeConflict }

// TypeCheckError means post-merge validation still failed after
// exhausting the configured fix attempts; any partial fixes were
// committed as a wip: commit before this is returned.
type TypeCheckError struct {
	Command  string
	Output   string
	Attempts int
}

func (e *TypeCheckError) Error() string {
	return "validation failed after " + joinPaths([]string{e.Command}) + ": " + e.Output
}

func (e *TypeCheckError) Unwrap() error { return ErrValidationFailed }

func joinPaths(paths []string) string {
	switch len(paths) {
	case 0:
		return "(unknown paths)"
	case 1:
		return paths[0]
	default:
		out := paths[0]
		for _, p := range paths[1:] {
			out += ", " + p
		}
		return out
	}
}
