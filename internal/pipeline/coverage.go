package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

// gcovFunction is one function's block totals, as reported by `gcov -j`
// (JSON intermediate format) under files[].functions[].
type gcovFunction struct {
	Name           string `json:"name"`
	Blocks         int    `json:"blocks"`
	BlocksExecuted int    `json:"blocks_executed"`
}

// gcovBranch is one branch's hit count, as reported under
// files[].lines[].branches[].
type gcovBranch struct {
	Count int `json:"count"`
}

// gcovLine is one source line's branch detail, named back to the
// function it belongs to via function_name.
type gcovLine struct {
	FunctionName string       `json:"function_name"`
	Branches     []gcovBranch `json:"branches"`
}

type gcovFile struct {
	Functions []gcovFunction `json:"functions"`
	Lines     []gcovLine     `json:"lines"`
}

type gcovReport struct {
	Files []gcovFile `json:"files"`
}

// RunCoverage recompiles the submission with gcov instrumentation, runs
// every input case to exercise it, and summarizes block coverage.
func RunCoverage(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*CoverageResult, error) {
	d, err := reg.MkDock(p, "coverage", mountPoint)
	if err != nil {
		return nil, err
	}

	compiled := d.Mount + "/output/coverage/main"
	status, err := dockerRun(ctx, driver, gcovTag, d, []string{
		"gcc", "-fprofile-arcs", "-ftest-coverage", "-g", d.MainC(), "-o", compiled,
	}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &CoverageResult{Completed: false}, nil
	}

	n, err := countEntries(d.HostDir, "input")
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		shell := fmt.Sprintf("%s < %s/input/%d", compiled, d.Mount, i)
		if _, err := dockerRun(ctx, driver, gcovTag, d, []string{"bash", "-c", shell}, timeoutTestCase); err != nil {
			return nil, err
		}
	}

	reportShell := fmt.Sprintf("gcov -o %s -n main.c -j -t > %s/gcov.json", d.Output(), d.Output())
	status, err = dockerRun(ctx, driver, gcovTag, d, []string{"bash", "-c", reportShell}, 0)
	if err != nil {
		return nil, err
	}
	if status != sandbox.Success {
		return &CoverageResult{Completed: false}, nil
	}

	hostReport := filepath.Join(d.HostOutputDir, "gcov.json")
	data, err := os.ReadFile(hostReport)
	if err != nil {
		return nil, fmt.Errorf("unable to find the gcov report on host system: %w", err)
	}

	numBlocks, covBlocks := summarizeGcov(data)
	return &CoverageResult{Completed: true, NumBlocks: numBlocks, CovBlocks: covBlocks}, nil
}

// funcCoverage accumulates one function's block totals: blocks/covered
// start from its functions[] entry, then covered is bumped once per
// zero-count branch found in a lines[] entry naming that function, per
// spec.md §4.3's coverage algorithm.
type funcCoverage struct {
	blocks  int
	covered int
}

// summarizeGcov tallies total and covered blocks across every file in
// the gcov JSON intermediate report (`gcov -j`'s files[].functions[]/
// files[].lines[].branches[] schema). Malformed JSON yields zero rather
// than failing the stage, since the compile+run already succeeded.
func summarizeGcov(data []byte) (numBlocks, covBlocks int) {
	var report gcovReport
	if err := json.Unmarshal(data, &report); err != nil {
		return 0, 0
	}
	for _, f := range report.Files {
		funcs := make(map[string]*funcCoverage, len(f.Functions))
		for _, fn := range f.Functions {
			funcs[fn.Name] = &funcCoverage{blocks: fn.Blocks, covered: fn.BlocksExecuted}
		}
		for _, line := range f.Lines {
			fc, ok := funcs[line.FunctionName]
			if !ok {
				continue
			}
			for _, branch := range line.Branches {
				if branch.Count == 0 {
					fc.covered++
				}
			}
		}
		for _, fc := range funcs {
			numBlocks += fc.blocks
			covBlocks += fc.covered
		}
	}
	return numBlocks, covBlocks
}
