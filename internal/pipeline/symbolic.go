package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

const kleeTag = "klee"

// timeoutSymbolicBudget bounds the KLEE exploration budget, passed
// through as klee's own --max-time flag rather than enforced by the
// sandbox timeout, so a run that exhausts its budget exits cleanly
// (Success) instead of being killed (Timeout).
const timeoutSymbolicBudget = "120" // seconds, klee's -max-time unit

// timeoutSymbolicSandbox is the sandbox deadline for the klee run, set
// above timeoutSymbolicBudget so klee's own --max-time ends the run first.
const timeoutSymbolicSandbox = 180 * time.Second

// RunSymbolic compiles the submission to LLVM bitcode (with __KLEE__
// defined, so interface.h declares the real klee_make_symbolic) and
// explores it with KLEE for a bounded budget, counting the distinct error
// states (assertion failures, memory errors, division by zero, ...) KLEE
// reports under klee-out.
func RunSymbolic(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*SymbolicResult, error) {
	d, err := reg.MkDock(p, "symbolic", mountPoint)
	if err != nil {
		return nil, err
	}

	bitcode := d.Mount + "/output/symbolic/main.bc"
	status, err := dockerRun(ctx, driver, kleeTag, d, []string{
		"clang", "-emit-llvm", "-g", "-O0", "-c", "-D__KLEE__", "-I", d.Mount, d.MainC(), "-o", bitcode,
	}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &SymbolicResult{Completed: false}, nil
	}

	outDir := d.Output() + "/klee-out"
	shell := fmt.Sprintf("klee --output-dir=%s --max-time=%s %s", outDir, timeoutSymbolicBudget, bitcode)
	status, err = dockerRun(ctx, driver, kleeTag, d, []string{"bash", "-c", shell}, timeoutSymbolicSandbox)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &SymbolicResult{Completed: false}, nil
	}

	hostOut := filepath.Join(d.HostOutputDir, "klee-out")
	numErrors, err := countKleeErrors(hostOut)
	if err != nil {
		return nil, fmt.Errorf("unable to find the KLEE output directory on host system: %w", err)
	}

	return &SymbolicResult{Completed: true, NumErrors: numErrors}, nil
}

// countKleeErrors counts the distinct *.err files KLEE leaves behind in
// its output directory, one per reported error state.
func countKleeErrors(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".err") {
			count++
		}
	}
	return count, nil
}
