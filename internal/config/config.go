// Package config loads the orchestrator's TOML configuration file:
// always-usable defaults first, file contents layered on top.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Git holds version-control defaults.
type Git struct {
	BaseBranch string `toml:"base_branch"`
}

// Worktree holds WorktreeManager's per-project init behavior.
type Worktree struct {
	InitCommands       []string          `toml:"init_commands"`
	ContinueOnFailure  bool              `toml:"continue_on_failure"`
	Parallel           bool              `toml:"parallel"`
	Env                map[string]string `toml:"env"`
	UntrackedCopyPaths []string          `toml:"untracked_copy_paths"`
}

// Session holds SessionManager's assistant-invocation defaults.
type Session struct {
	Command                    string `toml:"command"`
	Shell                      string `toml:"shell"`
	TmuxPrefix                 string `toml:"tmux_prefix"`
	DangerouslySkipPermissions bool   `toml:"dangerously_skip_permissions"`
	InitialPrompt              string `toml:"initial_prompt"`
}

// Merge holds MergeEngine's post-merge validation behavior.
type Merge struct {
	ValidateCommands     []string `toml:"validate_commands"`
	FixCommand           string   `toml:"fix_command"`
	MaxFixAttempts       int      `toml:"max_fix_attempts"`
	StartClaudeOnFailure bool     `toml:"start_claude_on_failure"`
	PushToOrigin         bool     `toml:"push_to_origin"`
}

// Config is the full configuration surface consumed by the core.
type Config struct {
	Git      Git      `toml:"git"`
	Worktree Worktree `toml:"worktree"`
	Session  Session  `toml:"session"`
	Merge    Merge    `toml:"merge"`
}

// Default returns a Config usable with no file on disk.
func Default() *Config {
	return &Config{
		Git: Git{BaseBranch: "main"},
		Worktree: Worktree{
			ContinueOnFailure:  false,
			Parallel:           false,
			Env:                map[string]string{},
			UntrackedCopyPaths: []string{".direnv"},
		},
		Session: Session{
			Command:    "claude",
			Shell:      "bash",
			TmuxPrefix: "az",
		},
		Merge: Merge{
			MaxFixAttempts:       2,
			StartClaudeOnFailure: true,
			PushToOrigin:         true,
		},
	}
}

// Load reads path (.azedarach/config.toml) and overlays it onto
// Default(). A missing file is not an error: the defaults are used
// verbatim.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	// Decode straight onto the default-populated struct: toml only
	// touches keys the file actually sets, so every omitted field keeps
	// its default.
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
