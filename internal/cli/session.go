package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azedarach-dev/azedarach/internal/bead"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, stop, and inspect agent sessions",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start <bead-id>",
	Short: "Create a worktree and start an agent session for a bead",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStart,
}

var sessionStopCmd = &cobra.Command{
	Use:   "stop <bead-id>",
	Short: "Stop a running agent session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionStop,
}

var sessionPauseCmd = &cobra.Command{
	Use:   "pause <bead-id>",
	Short: "Interrupt a running agent session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionPause,
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume <bead-id>",
	Short: "Resume a paused agent session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionResume,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active sessions",
	Args:  cobra.NoArgs,
	RunE:  runSessionList,
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd, sessionStopCmd, sessionPauseCmd, sessionResumeCmd, sessionListCmd)
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id := bead.ID(args[0])
	sess, err := a.sessions.Start(cmd.Context(), a.projectPath, id)
	if err != nil {
		return err
	}
	fmt.Printf("started %s in %s\n", sess.BeadID, sess.WorktreePath)
	return nil
}

func runSessionStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return a.sessions.Stop(cmd.Context(), bead.ID(args[0]))
}

func runSessionPause(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return a.sessions.Pause(cmd.Context(), bead.ID(args[0]))
}

func runSessionResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return a.sessions.Resume(cmd.Context(), bead.ID(args[0]))
}

func runSessionList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	active := a.sessions.ListActive(cmd.Context())
	if len(active) == 0 {
		fmt.Println("no active sessions")
		return nil
	}
	for _, s := range active {
		fmt.Printf("%-12s %-10s %s\n", s.BeadID, s.State, s.WorktreePath)
	}
	return nil
}
