package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestHashSubmissionIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	mainC := writeTemp(t, dir, "main.c", "int main(void){return 0;}")
	in0 := writeTemp(t, dir, "in0", "AAAA")
	in1 := writeTemp(t, dir, "in1", "BBBB")

	h1, err := hashSubmission(mainC, []string{in0, in1}, nil)
	if err != nil {
		t.Fatalf("hashSubmission: %v", err)
	}
	h2, err := hashSubmission(mainC, []string{in0, in1}, nil)
	if err != nil {
		t.Fatalf("hashSubmission: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %q and %q", h1, h2)
	}
}

func TestHashSubmissionDistinguishesInputFromCrash(t *testing.T) {
	dir := t.TempDir()
	mainC := writeTemp(t, dir, "main.c", "int main(void){return 0;}")
	case0 := writeTemp(t, dir, "case0", "AAAA")

	asInput, err := hashSubmission(mainC, []string{case0}, nil)
	if err != nil {
		t.Fatalf("hashSubmission(input): %v", err)
	}
	asCrash, err := hashSubmission(mainC, nil, []string{case0})
	if err != nil {
		t.Fatalf("hashSubmission(crash): %v", err)
	}
	if asInput == asCrash {
		t.Fatalf("expected input and crash placement of the same bytes to hash differently")
	}
}

func TestHashSubmissionDistinguishesCaseOrder(t *testing.T) {
	dir := t.TempDir()
	mainC := writeTemp(t, dir, "main.c", "int main(void){return 0;}")
	a := writeTemp(t, dir, "a", "AAAA")
	b := writeTemp(t, dir, "b", "BBBB")

	forward, err := hashSubmission(mainC, []string{a, b}, nil)
	if err != nil {
		t.Fatalf("hashSubmission forward: %v", err)
	}
	reversed, err := hashSubmission(mainC, []string{b, a}, nil)
	if err != nil {
		t.Fatalf("hashSubmission reversed: %v", err)
	}
	if forward == reversed {
		t.Fatalf("expected case order to affect the hash")
	}
}
