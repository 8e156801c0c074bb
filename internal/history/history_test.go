package history

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("InitializesOnce", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		r, err := Open(dir, "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		writeFile(t, dir, "a.jsonl", "{}\n")
		if err := r.Commit(t.Context(), "first"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}

		// Reopening must find the existing repo and its history.
		r2, err := Open(dir, "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		commits, err := r2.Log(t.Context(), 10)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 1 || commits[0].Message != "first" {
			t.Errorf("Log() = %+v, want the first commit", commits)
		}
	})
}

func TestCommit(t *testing.T) {
	t.Parallel()

	t.Run("CleanWorktreeIsNoOp", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		r, err := Open(dir, "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		writeFile(t, dir, "a.jsonl", "{}\n")
		if err := r.Commit(t.Context(), "first"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		// Nothing changed; this must not add a commit.
		if err := r.Commit(t.Context(), "second"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		commits, err := r.Log(t.Context(), 10)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 1 {
			t.Errorf("Log() = %d commits, want 1", len(commits))
		}
	})

	t.Run("SignatureFromOpen", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		r, err := Open(dir, "marcador", "marcador@localhost")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		writeFile(t, dir, "b.jsonl", "{}\n")
		if err := r.Commit(t.Context(), "save bookmark x"); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		commits, err := r.Log(t.Context(), 1)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 1 || commits[0].Hash == "" {
			t.Fatalf("Log() = %+v", commits)
		}
	})
}

func TestLog(t *testing.T) {
	t.Parallel()

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		r, err := Open(t.TempDir(), "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		commits, err := r.Log(t.Context(), 10)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 0 {
			t.Errorf("Log() = %+v, want none", commits)
		}
	})

	t.Run("NewestFirstAndLimited", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		r, err := Open(dir, "tester", "tester@localhost")
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		for i, msg := range []string{"one", "two", "three"} {
			writeFile(t, dir, "a.jsonl", msg+"\n")
			if err := r.Commit(t.Context(), msg); err != nil {
				t.Fatalf("Commit(#%d) failed: %v", i, err)
			}
		}
		commits, err := r.Log(t.Context(), 2)
		if err != nil {
			t.Fatalf("Log() failed: %v", err)
		}
		if len(commits) != 2 || commits[0].Message != "three" || commits[1].Message != "two" {
			t.Errorf("Log() = %+v, want newest first, capped at 2", commits)
		}
	})
}
