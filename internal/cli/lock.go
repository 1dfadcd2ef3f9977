package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect FileLockManager state",
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current lock snapshot",
	Args:  cobra.NoArgs,
	RunE:  runLockStatus,
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
}

func runLockStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	snapshot := a.locks.Snapshot()
	if len(snapshot) == 0 {
		fmt.Println("no locks held")
		return nil
	}
	for path, state := range snapshot {
		fmt.Printf("%-40s %+v\n", path, state)
	}
	return nil
}
