package merge

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// runShell runs cmd through a POSIX shell in dir; configured
// validate/fix commands are shell strings, not parsed argv.
func runShell(ctx context.Context, dir, cmd string) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = dir
	var stderr bytes.Buffer
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("running %q: %s: %w", cmd, stderr.String(), err)
	}
	return nil
}
