package sandbox

import (
	"archive/tar"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBinds(t *testing.T) {
	got := binds([]Mount{
		{Host: "/host/a", Container: "/work/a"},
		{Host: "/host/b", Container: "/work/b"},
	})
	want := []string{"/host/a:/work/a", "/host/b:/work/b"}
	if len(got) != len(want) {
		t.Fatalf("binds() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("binds()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEphemeralNameScopedByDriver(t *testing.T) {
	a := ephemeralName("baseline", "worker-1")
	b := ephemeralName("baseline", "worker-2")
	if a == b {
		t.Fatalf("expected names scoped by driver to differ: %q == %q", a, b)
	}
}

func TestSiblingName(t *testing.T) {
	if got := siblingName("worker-1"); got != "worker-1-sideline" {
		t.Fatalf("siblingName() = %q", got)
	}
}

func TestBuildContextIncludesFilesAndSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM scratch\n"), 0o644); err != nil {
		t.Fatalf("write Dockerfile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir sub: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "file.txt"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write sub/file.txt: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "Dockerfile"), filepath.Join(dir, "link")); err != nil {
		t.Skip("symlinks unsupported in this environment")
	}

	data, err := buildContext(dir)
	if err != nil {
		t.Fatalf("buildContext: %v", err)
	}

	tr := tar.NewReader(bytes.NewReader(data))
	names := map[string]bool{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		names[hdr.Name] = true
	}
	if !names["Dockerfile"] {
		t.Fatalf("expected Dockerfile in build context, got %v", names)
	}
	if !names["sub/file.txt"] {
		t.Fatalf("expected sub/file.txt in build context, got %v", names)
	}
	if names["link"] {
		t.Fatalf("expected symlink to be excluded from build context, got %v", names)
	}
}
