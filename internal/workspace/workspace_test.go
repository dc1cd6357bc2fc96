package workspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/workspace"
)

func TestAcquireCreatesRunDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	m := workspace.NewManager(root, logging.NewNop())
	ws, err := m.Acquire("abc")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if ws.Path() != filepath.Join(root, "run-abc") {
		t.Fatalf("unexpected path %q", ws.Path())
	}
	if info, err := os.Stat(ws.Path()); err != nil || !info.IsDir() {
		t.Fatalf("run directory missing: %v", err)
	}
	if ws.File("audio.wav") != filepath.Join(ws.Path(), "audio.wav") {
		t.Fatalf("unexpected file path %q", ws.File("audio.wav"))
	}
	if err := ws.Release(true); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if _, err := os.Stat(ws.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected run directory to be purged, stat err = %v", err)
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	root := t.TempDir()
	m := workspace.NewManager(root, nil)
	first, err := m.Acquire("one")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	if _, err := m.Acquire("two"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for concurrent acquire, got %v", err)
	}

	other := workspace.NewManager(root, nil)
	if _, err := other.Acquire("three"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected lock contention across managers, got %v", err)
	}

	if err := first.Release(false); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if _, err := os.Stat(first.Path()); err != nil {
		t.Fatalf("kept workspace should remain: %v", err)
	}
	second, err := other.Acquire("three")
	if err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	_ = second.Release(true)
	if err := first.Release(true); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}
}

func TestAcquireRejectsInvalidRunID(t *testing.T) {
	m := workspace.NewManager(t.TempDir(), nil)
	for _, id := range []string{"", "  ", "../escape"} {
		if _, err := m.Acquire(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Acquire(%q) = %v, want validation error", id, err)
		}
	}
}

func TestCleanStaleRemovesOldRunDirectories(t *testing.T) {
	root := t.TempDir()
	old := filepath.Join(root, "run-old")
	recent := filepath.Join(root, "run-recent")
	foreign := filepath.Join(root, "keep-me")
	for _, dir := range []string{old, recent, foreign} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	past := time.Now().Add(-48 * time.Hour)
	for _, dir := range []string{old, foreign} {
		if err := os.Chtimes(dir, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	m := workspace.NewManager(root, logging.NewNop())
	result := m.CleanStale(context.Background(), 24*time.Hour)
	if len(result.Removed) != 1 || result.Removed[0] != old {
		t.Fatalf("expected only %s removed, got %v", old, result.Removed)
	}
	for _, dir := range []string{recent, foreign} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("%s should remain: %v", dir, err)
		}
	}
}

func TestCleanStaleSkipsActiveRun(t *testing.T) {
	root := t.TempDir()
	m := workspace.NewManager(root, nil)
	ws, err := m.Acquire("live")
	if err != nil {
		t.Fatalf("Acquire returned error: %v", err)
	}
	defer ws.Release(true)
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(ws.Path(), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if result := m.CleanStale(context.Background(), time.Hour); len(result.Removed) != 0 {
		t.Fatalf("active workspace must not be swept, removed %v", result.Removed)
	}
}

func TestCleanStaleInvalidInputs(t *testing.T) {
	for _, root := range []string{"", "/nonexistent/path/12345"} {
		result := workspace.NewManager(root, nil).CleanStale(context.Background(), time.Hour)
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", root, result)
		}
	}
	if result := workspace.NewManager(t.TempDir(), nil).CleanStale(context.Background(), 0); len(result.Removed) != 0 {
		t.Fatal("zero max age disables the sweep")
	}
}

func TestListDirectories(t *testing.T) {
	root := t.TempDir()
	run := filepath.Join(root, "run-1")
	if err := os.Mkdir(run, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(run, "audio.wav"), make([]byte, 128), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "other"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	dirs, err := workspace.ListDirectories(root)
	if err != nil {
		t.Fatalf("ListDirectories returned error: %v", err)
	}
	if len(dirs) != 1 || dirs[0].Name != "run-1" || dirs[0].Size != 128 {
		t.Fatalf("unexpected dirs %+v", dirs)
	}
	if dirs, err := workspace.ListDirectories("/nonexistent/path/12345"); err != nil || dirs != nil {
		t.Fatalf("expected nil for missing root, got %v, %v", dirs, err)
	}
}
