package registry

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// validated is the result of validating and normalizing a submission
// directory: the resolved base directory plus the ordered case paths
// used both for hashing and for copying into the packet directory.
type validated struct {
	base       string
	mainC      string
	inputCases []string
	crashCases []string
}

// validateSubmission implements §4.1 register steps 1-4: canonicalize,
// probe nesting, validate the allowed entry set, and check size limits.
func validateSubmission(srcDir string) (*validated, error) {
	abs, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, malformed("submission path is not a directory")
	}

	base, err := probeBase(abs)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		switch {
		case name == "main.c", name == "interface.h", name == "input", name == "crash":
		case strings.HasPrefix(name, "README"):
		case strings.HasPrefix(name, "output"):
		default:
			return nil, malformed("unrecognized item: %s", name)
		}
	}

	mainC := filepath.Join(base, "main.c")
	mc, err := os.Stat(mainC)
	if err != nil || mc.IsDir() {
		return nil, malformed("main.c is missing")
	}
	if mc.Size() > maxProgramSize {
		return nil, malformed("main.c is too big")
	}

	inputCases, err := validateCaseDir(base, "input")
	if err != nil {
		return nil, err
	}
	crashCases, err := validateCaseDir(base, "crash")
	if err != nil {
		return nil, err
	}

	return &validated{
		base:       base,
		mainC:      mainC,
		inputCases: inputCases,
		crashCases: crashCases,
	}, nil
}

// probeBase implements §4.1 register step 2: if src contains exactly one
// child and that child is a directory, it is the base; otherwise src
// itself is the base.
func probeBase(srcDir string) (string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(srcDir, entries[0].Name()), nil
	}
	return srcDir, nil
}

// validateCaseDir validates an input/ or crash/ directory: it must exist,
// be a directory, and every child must be a regular file <= 1KiB. The
// returned slice is in directory-listing order, which fixes the index
// assignment used both for hashing and for canonical renaming.
func validateCaseDir(base, name string) ([]string, error) {
	dir := filepath.Join(base, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, malformed("%s/ is missing", name)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			return nil, malformed("%s/%s is invalid", name, e.Name())
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		if fi.Size() > maxCaseSize {
			return nil, malformed("%s/%s is too big", name, e.Name())
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// installPacket copies a validated submission into a freshly created,
// empty <root>/<hash> directory: main.c, the bundled interface.h, input/
// and crash/ with entries renamed to their index, and an empty output/.
// Per §4.1 step 7, dst must already exist (created empty under the root
// lock) and installPacket populates it; the caller is responsible for
// removing dst if installPacket fails, so the on-disk invariant "fully
// populated or absent" holds.
func installPacket(v *validated, dst string) error {
	if err := copyFile(v.mainC, filepath.Join(dst, "main.c")); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dst, "interface.h"), interfaceHeader, 0o644); err != nil {
		return err
	}
	if err := installCaseDir(v.inputCases, filepath.Join(dst, "input")); err != nil {
		return err
	}
	if err := installCaseDir(v.crashCases, filepath.Join(dst, "crash")); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(dst, "output"), 0o755); err != nil {
		return err
	}
	return nil
}

func installCaseDir(cases []string, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for i, src := range cases {
		name := itoa(i)
		if err := copyFile(src, filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	for i > 0 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(digits[pos:])
}
