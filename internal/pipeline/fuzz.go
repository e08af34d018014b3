package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

const aflTag = "afl"

// RunFuzz compiles the submission with afl-cc and runs a bounded AFL++
// campaign seeded with the submitted input cases. A campaign is only
// considered to have completed if it ran for the full budget (Timeout);
// an early exit of any other kind means AFL++ itself failed.
func RunFuzz(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*FuzzResult, error) {
	d, err := reg.MkDock(p, "fuzz", mountPoint)
	if err != nil {
		return nil, err
	}

	compiled := d.Mount + "/output/fuzz/main"
	status, err := dockerRun(ctx, driver, aflTag, d, []string{"afl-cc", d.MainC(), "-o", compiled}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &FuzzResult{Completed: false}, nil
	}

	status, err = dockerRun(ctx, driver, aflTag, d, []string{
		"afl-fuzz", "-i", d.Input(), "-o", d.Output(), "--", compiled,
	}, timeoutFuzz)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Timeout {
		return &FuzzResult{Completed: false}, nil
	}

	// Make the AFL++ output directory (owned by root inside the
	// container) readable from the host.
	if _, err := dockerRun(ctx, driver, aflTag, d, []string{"chmod", "-R", "777", d.Output()}, 0); err != nil {
		return nil, err
	}

	crashDir := filepath.Join(d.HostOutputDir, "default", "crashes")
	numCrashes, err := countCrashFiles(crashDir)
	if err != nil {
		return nil, fmt.Errorf("unable to find the AFL crash directory on host system: %w", err)
	}

	return &FuzzResult{Completed: true, NumCrashes: numCrashes}, nil
}
