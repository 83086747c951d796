package runlock

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.lock")
	lock, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lock.Path() != path {
		t.Fatalf("Path() = %q, want %q", lock.Path(), path)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	// Re-acquirable after release.
	lock, err = Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = lock.Release()
}

func TestAcquireRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Acquire(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestReleaseNilLockIsSafe(t *testing.T) {
	t.Parallel()

	var lock *Lock
	if err := lock.Release(); err != nil {
		t.Fatalf("nil release must be a no-op, got %v", err)
	}
}

func TestErrAlreadyRunningIsDistinct(t *testing.T) {
	t.Parallel()

	// Callers branch on this sentinel to choose the dedicated exit code.
	err := ErrAlreadyRunning
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatal("sentinel must match itself through errors.Is")
	}
	if errors.Is(err, errors.New("pipeline is already running")) {
		t.Fatal("sentinel must not match arbitrary errors with the same text")
	}
}
