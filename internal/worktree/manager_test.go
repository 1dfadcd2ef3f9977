package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/azedarach-dev/azedarach/internal/bead"
)

// initProject creates a bare-bones git repo with one commit, skipping
// the test if git isn't available.
func initProject(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	project := filepath.Join(dir, "proj")
	if err := os.MkdirAll(project, 0755); err != nil {
		t.Fatal(err)
	}
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = project
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(project, "README.md"), []byte("hi\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "-A")
	run("commit", "-m", "init")
	return project
}

func TestComputePath(t *testing.T) {
	got := computePath("/home/me/proj", bead.ID("az-1"))
	want := "/home/me/proj-az-1"
	if got != want {
		t.Fatalf("computePath = %q, want %q", got, want)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	project := initProject(t)
	m := New(nil)
	ctx := context.Background()

	wt1, err := m.Create(ctx, CreateOptions{ProjectPath: project, BeadID: bead.ID("az-1")})
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	wt2, err := m.Create(ctx, CreateOptions{ProjectPath: project, BeadID: bead.ID("az-1")})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if wt1.Path != wt2.Path {
		t.Fatalf("expected same path, got %q and %q", wt1.Path, wt2.Path)
	}
	if wt1.Branch != "az-1" {
		t.Fatalf("expected branch az-1, got %q", wt1.Branch)
	}
	if _, err := os.Stat(filepath.Join(wt1.Path, settingsRelPath)); err != nil {
		t.Fatalf("expected settings.local.json to be materialized: %v", err)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	project := initProject(t)
	m := New(nil)
	ctx := context.Background()

	if _, err := m.Create(ctx, CreateOptions{ProjectPath: project, BeadID: bead.ID("az-2")}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Remove(ctx, RemoveOptions{ProjectPath: project, BeadID: bead.ID("az-2")}); err != nil {
		t.Fatalf("first Remove: %v", err)
	}
	if err := m.Remove(ctx, RemoveOptions{ProjectPath: project, BeadID: bead.ID("az-2")}); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	exists, err := m.Exists(ctx, project, bead.ID("az-2"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("expected worktree to no longer exist")
	}
}

func TestUnionJSONEqual(t *testing.T) {
	a := []interface{}{"x", "y"}
	b := []interface{}{"y", "z"}
	got := unionJSONEqual(a, b)
	if len(got) != 3 {
		t.Fatalf("expected 3 deduplicated entries, got %v", got)
	}
}
