// Command azedarach orchestrates parallel AI coding-assistant sessions
// over an issue tracker: worktrees, tmux sessions, and merges back to
// the base branch.
package main

import "github.com/azedarach-dev/azedarach/internal/cli"

func main() {
	cli.Execute()
}
