package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

// mountPoint is where every stage container sees the packet's directory
// mounted, matching the original driver's fixed /test convention.
const mountPoint = "/test"

// timeoutTestCase bounds a single test-case replay under baseline/coverage.
const timeoutTestCase = 10 * time.Second

// timeoutFuzz bounds the AFL++ fuzzing campaign in the standalone fuzz stage.
const timeoutFuzz = 15 * time.Minute

// timeoutHybrid bounds each side of the SymCC/AFL++ hybrid campaign.
const timeoutHybrid = 5 * time.Second

func dockerRun(ctx context.Context, driver *sandbox.Driver, tag string, d registry.DockedPacket, cmd []string, timeout time.Duration) (sandbox.ExitStatus, error) {
	mounts := []sandbox.Mount{{Host: d.HostDir, Container: d.Mount}}
	return driver.Sandbox(ctx, tag, cmd, mounts, "", timeout)
}

// countEntries counts the direct children of <hostDir>/<sub>, used to
// learn how many indexed test cases a packet carries without needing a
// container round trip.
func countEntries(hostDir, sub string) (int, error) {
	entries, err := os.ReadDir(filepath.Join(hostDir, sub))
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
