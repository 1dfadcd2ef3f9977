package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/worktree"
)

var worktreeCmd = &cobra.Command{
	Use:   "worktree",
	Short: "Create, remove, and list bead worktrees",
}

var worktreeBaseBranch string

var worktreeCreateCmd = &cobra.Command{
	Use:   "create <bead-id>",
	Short: "Create a worktree for a bead",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorktreeCreate,
}

var worktreeRemoveCmd = &cobra.Command{
	Use:   "remove <bead-id>",
	Short: "Remove a bead's worktree",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorktreeRemove,
}

var worktreeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List worktrees for the current project",
	Args:  cobra.NoArgs,
	RunE:  runWorktreeList,
}

func init() {
	worktreeCreateCmd.Flags().StringVar(&worktreeBaseBranch, "base", "", "base branch to create the worktree from (defaults to the current branch)")
	worktreeCmd.AddCommand(worktreeCreateCmd, worktreeRemoveCmd, worktreeListCmd)
}

func runWorktreeCreate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	id := bead.ID(args[0])
	wt, err := a.worktrees.Create(cmd.Context(), worktree.CreateOptions{
		ProjectPath: a.projectPath,
		BeadID:      id,
		BaseBranch:  worktreeBaseBranch,
	})
	if err != nil {
		return err
	}
	fmt.Println(wt.Path)
	return nil
}

func runWorktreeRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	return a.worktrees.Remove(cmd.Context(), worktree.RemoveOptions{
		ProjectPath: a.projectPath,
		BeadID:      bead.ID(args[0]),
	})
}

func runWorktreeList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	list, err := a.worktrees.List(cmd.Context(), a.projectPath)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no worktrees")
		return nil
	}
	for _, wt := range list {
		fmt.Printf("%-12s %-30s %s\n", wt.BeadID, wt.Branch, wt.Path)
	}
	return nil
}
