package pipeline

import (
	"context"
	"fmt"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

const gcovTag = "gcov"

// RunBaseline compiles the submission with plain gcc and replays its own
// input/crash cases against the freshly built binary: input cases are
// expected to exit cleanly, crash cases are expected not to.
func RunBaseline(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*BaselineResult, error) {
	d, err := reg.MkDock(p, "baseline", mountPoint)
	if err != nil {
		return nil, err
	}

	compiled := d.Mount + "/output/baseline/main"
	status, err := dockerRun(ctx, driver, gcovTag, d, []string{"gcc", d.MainC(), "-o", compiled}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &BaselineResult{Compiled: false}, nil
	}

	inputPass, inputFail, err := replayCases(ctx, driver, d, compiled, "input", false)
	if err != nil {
		return nil, err
	}
	crashPass, crashFail, err := replayCases(ctx, driver, d, compiled, "crash", true)
	if err != nil {
		return nil, err
	}

	return &BaselineResult{
		Compiled:  true,
		InputPass: inputPass,
		InputFail: inputFail,
		CrashPass: crashPass,
		CrashFail: crashFail,
	}, nil
}

// replayCases runs compiled against every case in <packet>/<sub> (via
// shell redirection, matching the original's "<bin> < <case>"
// invocation) and tallies how many match the expected outcome: success
// for input cases, failure for crash cases.
func replayCases(ctx context.Context, driver *sandbox.Driver, d registry.DockedPacket, compiled, sub string, expectCrash bool) (pass, fail int, err error) {
	n, err := countEntries(d.HostDir, sub)
	if err != nil {
		return 0, 0, err
	}
	for i := 0; i < n; i++ {
		shell := fmt.Sprintf("%s < %s/%s/%d", compiled, d.Mount, sub, i)
		status, err := dockerRun(ctx, driver, gcovTag, d, []string{"bash", "-c", shell}, timeoutTestCase)
		if err != nil {
			return pass, fail, err
		}
		matched := status == sandbox.Failure && expectCrash || status == sandbox.Success && !expectCrash
		if matched {
			pass++
		} else {
			fail++
		}
	}
	return pass, fail, nil
}
