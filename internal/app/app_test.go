package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	if code := Run([]string{"frobnicate"}); code != 2 {
		t.Fatalf("unknown command exit code = %d, want 2", code)
	}
}

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	if code := Run(nil); code != 2 {
		t.Fatalf("no-args exit code = %d, want 2", code)
	}
}

func TestRunHelp(t *testing.T) {
	if code := Run([]string{"help"}); code != 0 {
		t.Fatalf("help exit code = %d, want 0", code)
	}
}

func TestReadPayloadFilesObjectAndArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	single := filepath.Join(dir, "one.json")
	if err := os.WriteFile(single, []byte(`{"headline":"a"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	batch := filepath.Join(dir, "many.json")
	if err := os.WriteFile(batch, []byte(`[{"headline":"b"},{"headline":"c"}]`), 0o644); err != nil {
		t.Fatal(err)
	}

	payloads, err := readPayloadFiles([]string{single, batch})
	if err != nil {
		t.Fatalf("readPayloadFiles: %v", err)
	}
	if len(payloads) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(payloads))
	}
}

func TestReadPayloadFilesRejectsEmptyFile(t *testing.T) {
	t.Parallel()

	empty := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readPayloadFiles([]string{empty}); err == nil {
		t.Fatal("expected error for empty payload file")
	}
}

func TestReadPayloadFilesMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := readPayloadFiles([]string{filepath.Join(t.TempDir(), "nope.json")}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
