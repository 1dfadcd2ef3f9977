package worktree

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/azedarach-dev/azedarach/internal/bead"
	"github.com/azedarach-dev/azedarach/internal/claude"
	"github.com/azedarach-dev/azedarach/internal/hooks"
	"github.com/azedarach-dev/azedarach/internal/util"
)

const settingsRelPath = ".claude/settings.local.json"
const skillRelPath = ".claude/skills/local/worktree-context.skill.md"

// materializeHooks writes dest's .claude/settings.local.json, folding
// source's existing local settings together with the per-bead hook
// block that reports session state back over the multiplexer.
func (m *Manager) materializeHooks(destPath, sourcePath string, id bead.ID) error {
	base, err := readSettings(filepath.Join(sourcePath, settingsRelPath))
	if err != nil {
		return err
	}

	hookLayer := map[string]interface{}{"hooks": hooks.Config()}
	hookLayerJSON, err := json.Marshal(hookLayer)
	if err != nil {
		return fmt.Errorf("marshaling hook layer: %w", err)
	}
	baseJSON, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshaling base settings: %w", err)
	}

	merged, err := claude.MergeHooksConfig([]string{string(baseJSON), string(hookLayerJSON)})
	if err != nil {
		return fmt.Errorf("merging worktree settings: %w", err)
	}

	if err := claude.WriteSettings(destPath, merged); err != nil {
		return err
	}
	// WriteSettings always targets settings.json; local settings live
	// alongside it at settings.local.json so a bare `git status` in the
	// worktree doesn't see it as tracked project config.
	if err := os.Rename(filepath.Join(destPath, ".claude", "settings.json"), filepath.Join(destPath, settingsRelPath)); err != nil {
		return fmt.Errorf("renaming to settings.local.json: %w", err)
	}

	return writeContextSkill(destPath, id)
}

func readSettings(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return settings, nil
}

// mergeClaudeLocalSettings folds a worktree's settings.local.json back
// into the project's, the inverse direction of materializeHooks: array
// fields (permission allow/deny lists) are unioned by JSON equality
// and the hooks block is never carried back, since hooks are
// per-worktree by construction.
func mergeClaudeLocalSettings(project, worktree map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(project))
	for k, v := range project {
		merged[k] = v
	}
	for k, v := range worktree {
		if k == "hooks" {
			continue
		}
		incoming, isArr := v.([]interface{})
		if !isArr {
			merged[k] = v
			continue
		}
		existing, _ := merged[k].([]interface{})
		merged[k] = unionJSONEqual(existing, incoming)
	}
	return merged
}

func unionJSONEqual(a, b []interface{}) []interface{} {
	out := append([]interface{}{}, a...)
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		if raw, err := json.Marshal(v); err == nil {
			seen[string(raw)] = true
		}
	}
	for _, v := range b {
		raw, err := json.Marshal(v)
		if err != nil || seen[string(raw)] {
			continue
		}
		seen[string(raw)] = true
		out = append(out, v)
	}
	return out
}

// syncSettingsBack folds worktreePath's local settings into
// projectPath's before the worktree is removed, so permission
// decisions an agent accumulated (allow/deny list entries) survive
// the worktree's deletion.
func (m *Manager) syncSettingsBack(projectPath, worktreePath string) error {
	projectSettings, err := readSettings(filepath.Join(projectPath, settingsRelPath))
	if err != nil {
		return err
	}
	worktreeSettings, err := readSettings(filepath.Join(worktreePath, settingsRelPath))
	if err != nil {
		return err
	}
	if len(worktreeSettings) == 0 {
		return nil
	}
	merged := mergeClaudeLocalSettings(projectSettings, worktreeSettings)
	return writeSettingsLocal(projectPath, merged)
}

func writeSettingsLocal(dir string, settings map[string]interface{}) error {
	path := filepath.Join(dir, settingsRelPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating .claude directory: %w", err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return util.AtomicWriteFile(path, append(data, '\n'), 0600)
}

// writeContextSkill writes a skill file embedding id so the agent can
// discover which bead it is working without parsing its own prompt.
func writeContextSkill(destPath string, id bead.ID) error {
	skillPath := filepath.Join(destPath, skillRelPath)
	if err := os.MkdirAll(filepath.Dir(skillPath), 0755); err != nil {
		return fmt.Errorf("creating skill directory: %w", err)
	}
	content := fmt.Sprintf(`---
name: worktree-context
description: Identifies which bead this worktree was created for.
---

This worktree was created for bead %s. Its branch is named %s.
`, id, id)
	return os.WriteFile(skillPath, []byte(content), 0644)
}
