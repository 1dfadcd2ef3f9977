package vcs

import (
	"errors"
	"testing"
)

func TestParseWorktreeListEmpty(t *testing.T) {
	got := ParseWorktreeList("")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParseWorktreeList(t *testing.T) {
	out := "worktree /p\nHEAD abc123\nbranch refs/heads/main\n\n" +
		"worktree /parent/p-az-1\nHEAD def456\nbranch refs/heads/az-1\n\n" +
		"worktree /parent/p-az-2\nHEAD ghi789\nbranch refs/heads/az-2\nlocked\n"

	entries := ParseWorktreeList(out)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d: %+v", len(entries), entries)
	}
	if entries[1].Path != "/parent/p-az-1" || entries[1].Branch != "az-1" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if !entries[2].IsLocked {
		t.Fatalf("expected third entry locked: %+v", entries[2])
	}
}

func TestHasNothingToCommit(t *testing.T) {
	err := &Error{Stderr: "nothing to commit, working tree clean"}
	if !HasNothingToCommit(err) {
		t.Fatal("expected nothing-to-commit detection")
	}
	if HasNothingToCommit(errors.New("some other error")) {
		t.Fatal("expected non-Error to not match")
	}
}
