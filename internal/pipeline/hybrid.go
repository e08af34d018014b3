package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

const symccTag = "symcc"

// pollInterval is how often RunHybrid checks for the sideline AFL++
// campaign to create its queue directory, signalling readiness.
const pollInterval = time.Second

// sideResult carries the outcome of the sideline AFL++ session back to
// the goroutine orchestrating the hybrid campaign.
type sideResult struct {
	status sandbox.ExitStatus
	err    error
}

// RunHybrid compiles the submission twice (once with afl-clang, once
// with symcc) and runs an AFL++ instance on a side session concurrently
// with symcc_fuzzing_helper feeding it concolic-derived test cases, the
// same coordination the original hybrid campaign uses.
func RunHybrid(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*HybridResult, error) {
	d, err := reg.MkDock(p, "hybrid", mountPoint)
	if err != nil {
		return nil, err
	}

	aflBinary := d.Mount + "/output/hybrid/main-afl"
	status, err := dockerRun(ctx, driver, symccTag, d, []string{"/afl/afl-clang", d.MainC(), "-o", aflBinary}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &HybridResult{Completed: false}, nil
	}

	symBinary := d.Mount + "/output/hybrid/main-sym"
	status, err = dockerRun(ctx, driver, symccTag, d, []string{"symcc", d.MainC(), "-o", symBinary}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &HybridResult{Completed: false}, nil
	}

	sideDriver, err := driver.Sibling()
	if err != nil {
		return nil, err
	}
	defer sideDriver.Close()

	sideCh := make(chan sideResult, 1)
	go func() {
		status, err := dockerRun(ctx, sideDriver, symccTag, d, []string{
			"/afl/afl-fuzz", "-M", "afl-0", "-i", d.Input(), "-o", d.Output(), "--", aflBinary,
		}, timeoutHybrid)
		sideCh <- sideResult{status, err}
	}()

	hostAFLDir := filepath.Join(d.HostOutputDir, "afl-0")
	if err := awaitAFLReady(ctx, hostAFLDir, sideCh); err != nil {
		return nil, err
	}

	shell := fmt.Sprintf("symcc_fuzzing_helper -v -o %s -a afl-0 -n symcc -- %s", d.Output(), symBinary)
	status, err = dockerRun(ctx, driver, symccTag, d, []string{"bash", "-c", shell}, timeoutHybrid)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Timeout {
		return &HybridResult{Completed: false}, nil
	}

	side := <-sideCh
	if side.err != nil {
		return nil, fmt.Errorf("sideline AFL++ session failed: %w", side.err)
	}
	if side.status != sandbox.Timeout {
		return &HybridResult{Completed: false}, nil
	}

	crashDir := filepath.Join(hostAFLDir, "crashes")
	numCrashes, err := countCrashFiles(crashDir)
	if err != nil {
		return nil, fmt.Errorf("unable to find the AFL crash directory on host system: %w", err)
	}

	return &HybridResult{Completed: true, NumCrashes: numCrashes}, nil
}

// awaitAFLReady blocks until the sideline AFL++ session creates its
// queue directory (signalling it has finished initializing) or fails
// outright, whichever happens first.
func awaitAFLReady(ctx context.Context, hostAFLDir string, sideCh <-chan sideResult) error {
	queueDir := filepath.Join(hostAFLDir, "queue")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if _, err := os.Stat(queueDir); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-sideCh:
			if result.err != nil {
				return fmt.Errorf("AFL not started on the sideline: %w", result.err)
			}
			return fmt.Errorf("AFL not started on the sideline")
		case <-ticker.C:
		}
	}
}

// countCrashFiles counts AFL++'s crash inputs, excluding its own
// README.txt placeholder.
func countCrashFiles(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var n uint64
	for _, e := range entries {
		if e.Name() != "README.txt" {
			n++
		}
	}
	return n, nil
}
