package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCountEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "input"), 0o755); err != nil {
		t.Fatalf("mkdir input: %v", err)
	}
	for _, name := range []string{"0", "1", "2"} {
		if err := os.WriteFile(filepath.Join(dir, "input", name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	n, err := countEntries(dir, "input")
	if err != nil {
		t.Fatalf("countEntries: %v", err)
	}
	if n != 3 {
		t.Fatalf("countEntries() = %d, want 3", n)
	}
}

func TestCountKleeErrors(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"test000001.assert.err", "test000002.ptr.err", "test000003.ktest"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	n, err := countKleeErrors(dir)
	if err != nil {
		t.Fatalf("countKleeErrors: %v", err)
	}
	if n != 2 {
		t.Fatalf("countKleeErrors() = %d, want 2", n)
	}
}

func TestCountCrashFilesExcludesReadme(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"README.txt", "id:000000,sig:06", "id:000001,sig:11"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	n, err := countCrashFiles(dir)
	if err != nil {
		t.Fatalf("countCrashFiles: %v", err)
	}
	if n != 2 {
		t.Fatalf("countCrashFiles() = %d, want 2", n)
	}
}
