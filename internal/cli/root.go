// Package cli defines the Cobra command tree for the azedarach CLI.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/azedarach-dev/azedarach/internal/beads"
	"github.com/azedarach-dev/azedarach/internal/config"
	"github.com/azedarach-dev/azedarach/internal/hookreceiver"
	"github.com/azedarach-dev/azedarach/internal/lock"
	"github.com/azedarach-dev/azedarach/internal/merge"
	"github.com/azedarach-dev/azedarach/internal/session"
	"github.com/azedarach-dev/azedarach/internal/tmux"
	"github.com/azedarach-dev/azedarach/internal/worktree"
)

var (
	verbose     bool
	projectFlag string
	configFlag  string
	version     = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:           "azedarach",
	Short:         "Orchestrate parallel AI coding-assistant sessions over an issue tracker",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project root (defaults to the working directory)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (defaults to <project>/.azedarach/config.toml)")

	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(worktreeCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(lockCmd)
}

// app bundles the services each subcommand needs, built once per
// invocation from the project's configuration.
type app struct {
	projectPath string
	cfg         *config.Config
	log         *slog.Logger
	tmux        *tmux.Tmux
	tracker     *beads.Client
	worktrees   *worktree.Manager
	sessions    *session.Manager
	receiver    *hookreceiver.Receiver
	locks       *lock.Manager
	sentinel    *lock.Sentinel
	merge       *merge.Engine
}

// newApp wires the services the way main() would for a long-running
// process: one tmux/git/bd adapter per invocation, sharing the
// project's config.
func newApp() (*app, error) {
	projectPath := projectFlag
	if projectPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		projectPath = wd
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	configPath := configFlag
	if configPath == "" {
		configPath = filepath.Join(projectPath, ".azedarach", "config.toml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	t := tmux.New()
	tracker := beads.New(projectPath)
	worktrees := worktree.New(log)
	locks := lock.NewManager()
	sentinel := lock.NewSentinel("azedarach")
	sessions := session.New(t, worktrees, tracker, sentinel, cfg, log)
	receiver := hookreceiver.New(t, log)
	engine := merge.New(tracker, worktrees, sessions, t, sentinel, cfg, log)

	return &app{
		projectPath: projectPath,
		cfg:         cfg,
		log:         log,
		tmux:        t,
		tracker:     tracker,
		worktrees:   worktrees,
		sessions:    sessions,
		receiver:    receiver,
		locks:       locks,
		sentinel:    sentinel,
		merge:       engine,
	}, nil
}
