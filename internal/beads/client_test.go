package beads

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fakeBd writes a shell script named "bd" into a temp dir and returns
// that dir so it can be prepended to PATH, letting tests exercise the
// real os/exec path without a real tracker daemon.
func fakeBd(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake bd script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "bd")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("writing fake bd: %v", err)
	}
	return dir
}

func withPath(t *testing.T, extra string) {
	t.Helper()
	old := os.Getenv("PATH")
	os.Setenv("PATH", extra+string(os.PathListSeparator)+old)
	t.Cleanup(func() { os.Setenv("PATH", old) })
}

func TestShowTombstoneIsNotFound(t *testing.T) {
	dir := fakeBd(t, `echo '{"id":"az-1","status":"tombstone"}'`)
	withPath(t, dir)

	c := New(t.TempDir())
	_, err := c.Show(context.Background(), "az-1")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestSyncRequiredFromStdoutOnExitZero(t *testing.T) {
	dir := fakeBd(t, `echo "Database out of sync. Run 'bd sync --import-only'"; exit 0`)
	withPath(t, dir)

	c := New(t.TempDir())
	_, err := c.List(context.Background(), ListOptions{})
	if !errors.Is(err, ErrSyncRequired) {
		t.Fatalf("expected SyncRequiredError, got %v", err)
	}
}

func TestListFiltersTombstones(t *testing.T) {
	dir := fakeBd(t, `echo '[{"id":"az-1","status":"open"},{"id":"az-2","status":"tombstone"}]'`)
	withPath(t, dir)

	c := New(t.TempDir())
	issues, err := c.List(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(issues) != 1 || issues[0].ID != "az-1" {
		t.Fatalf("expected only az-1, got %+v", issues)
	}
}

func TestTrackerErrorOnNonZeroExit(t *testing.T) {
	dir := fakeBd(t, `echo "boom" 1>&2; exit 1`)
	withPath(t, dir)

	c := New(t.TempDir())
	_, err := c.List(context.Background(), ListOptions{Status: StatusOpen})
	var te *TrackerError
	if !errors.As(err, &te) {
		t.Fatalf("expected TrackerError, got %v", err)
	}
}
