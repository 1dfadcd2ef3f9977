package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/merge"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge a bead's branch back onto the base branch",
}

var mergeBaseBranch string

var mergeRunCmd = &cobra.Command{
	Use:   "run <bead-id>",
	Short: "Run mergeToMain for a bead",
	Args:  cobra.ExactArgs(1),
	RunE:  runMergeRun,
}

var mergeAbortCmd = &cobra.Command{
	Use:   "abort <bead-id>",
	Short: "Abort an in-progress merge in a bead's worktree",
	Args:  cobra.ExactArgs(1),
	RunE:  runMergeAbort,
}

var mergeStatusCmd = &cobra.Command{
	Use:   "status <bead-id>",
	Short: "Show uncommitted changes in a bead's worktree",
	Args:  cobra.ExactArgs(1),
	RunE:  runMergeStatus,
}

func init() {
	mergeRunCmd.Flags().StringVar(&mergeBaseBranch, "base", "", "base branch to merge into (defaults to the configured base branch)")
	mergeCmd.AddCommand(mergeRunCmd, mergeAbortCmd, mergeStatusCmd)
}

func runMergeRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	result, err := a.merge.Run(cmd.Context(), merge.RunOptions{
		ProjectPath: a.projectPath,
		BeadID:      args[0],
		BaseBranch:  mergeBaseBranch,
	})
	if err != nil {
		var conflictErr *merge.MergeConflictError
		var typeCheckErr *merge.TypeCheckError
		switch {
		case errors.As(err, &conflictErr):
			return fmt.Errorf("merge conflict, retry after resolution: %v", err)
		case errors.As(err, &typeCheckErr):
			return fmt.Errorf("validation failed after merge, partial fix committed: %v", err)
		default:
			return err
		}
	}
	fmt.Printf("merged %s -> %s\n", args[0], result.MergeCommit)
	return nil
}

func runMergeAbort(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	wt, err := a.worktrees.Get(cmd.Context(), a.projectPath, bead.ID(args[0]))
	if err != nil {
		return err
	}
	return a.merge.AbortMerge(cmd.Context(), wt.Path)
}

func runMergeStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	wt, err := a.worktrees.Get(cmd.Context(), a.projectPath, bead.ID(args[0]))
	if err != nil {
		return err
	}
	paths, err := a.merge.CheckUncommittedChanges(cmd.Context(), wt.Path)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Println("clean")
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
