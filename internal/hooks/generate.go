package hooks

import "fmt"

// StatusUpdateCommand builds the single-line shell command a generated
// hook runs to publish session state: a tmux set-option writing
// @az_status, the IPC channel HookReceiver polls.
func StatusUpdateCommand(status string) string {
	return fmt.Sprintf("tmux set-option -t \"$TMUX_PANE\" @az_status %s", status)
}

// Config builds the per-bead hook block WorktreeManager materializes
// into .claude/settings.local.json at worktree-create time. The orchestrator never executes these commands
// itself — only the agent process does, by construction of its own
// hook runner; the core only ever reads their side effects back
// through the multiplexer's session options.
func Config() map[string]interface{} {
	return map[string]interface{}{
		string(EventSessionStart): []interface{}{
			hookEntry(StatusUpdateCommand("busy")),
		},
		string(EventUserPromptSubmit): []interface{}{
			hookEntry(StatusUpdateCommand("busy")),
		},
		string(EventPreToolUse): []interface{}{
			hookEntry(StatusUpdateCommand("busy")),
		},
		string(EventPostToolUse): []interface{}{
			hookEntry(StatusUpdateCommand("waiting")),
		},
		string(EventStop): []interface{}{
			hookEntry(StatusUpdateCommand("idle")),
		},
	}
}

func hookEntry(command string) map[string]interface{} {
	return map[string]interface{}{
		"hooks": []interface{}{
			map[string]interface{}{
				"type":    "command",
				"command": command,
			},
		},
	}
}
