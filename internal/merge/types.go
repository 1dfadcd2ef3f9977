package merge

import "time"

// Result reports the outcome of a Run call.
type Result struct {
	Success       bool
	MergeCommit   string
	Conflict      bool
	ConflictPaths []string
	FixAttempts   int
}

// RunOptions configures one mergeToMain attempt.
type RunOptions struct {
	ProjectPath string
	BeadID      string
	// BaseBranch falls back to config.Git.BaseBranch when empty.
	BaseBranch string
}

// ScoreInput is the pure-function input to Rank.
type ScoreInput struct {
	Priority  int
	CreatedAt time.Time
	Now       time.Time
}
