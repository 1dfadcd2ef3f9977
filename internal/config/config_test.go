package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Git.BaseBranch != "main" {
		t.Fatalf("expected default base branch, got %q", cfg.Git.BaseBranch)
	}
	if cfg.Merge.MaxFixAttempts != 2 {
		t.Fatalf("expected default max fix attempts, got %d", cfg.Merge.MaxFixAttempts)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[git]
base_branch = "develop"

[merge]
validate_commands = ["go build ./..."]
max_fix_attempts = 5
start_claude_on_failure = false
push_to_origin = true
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Git.BaseBranch != "develop" {
		t.Fatalf("expected overridden base branch, got %q", cfg.Git.BaseBranch)
	}
	if cfg.Merge.MaxFixAttempts != 5 {
		t.Fatalf("expected overridden max fix attempts, got %d", cfg.Merge.MaxFixAttempts)
	}
	if cfg.Session.Command != "claude" {
		t.Fatalf("expected default session command to survive, got %q", cfg.Session.Command)
	}
}

func TestLoadPartialSectionKeepsSiblingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `
[session]
command = "claude-custom"
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.Command != "claude-custom" {
		t.Fatalf("expected overridden command, got %q", cfg.Session.Command)
	}
	if cfg.Session.Shell != "bash" {
		t.Fatalf("expected default shell to survive a partial [session] section, got %q", cfg.Session.Shell)
	}
	if cfg.Session.TmuxPrefix != "az" {
		t.Fatalf("expected default tmux prefix to survive, got %q", cfg.Session.TmuxPrefix)
	}
	if len(cfg.Worktree.UntrackedCopyPaths) != 1 || cfg.Worktree.UntrackedCopyPaths[0] != ".direnv" {
		t.Fatalf("expected default untracked copy paths to survive, got %v", cfg.Worktree.UntrackedCopyPaths)
	}
}
