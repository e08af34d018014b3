package pipeline

import (
	"context"

	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

// Analyze runs the fixed five-stage pipeline against a packet: baseline,
// coverage, fuzzing, symbolic execution, and hybrid concolic fuzzing.
// Stages after baseline only run if the program actually compiled, since
// every later stage depends on a working build.
func Analyze(ctx context.Context, driver *sandbox.Driver, reg *registry.Registry, p registry.Packet) (*AnalysisResult, error) {
	baseline, err := RunBaseline(ctx, driver, reg, p)
	if err != nil {
		return nil, err
	}
	result := &AnalysisResult{Baseline: baseline}
	if !baseline.Compiled {
		return result, nil
	}

	coverage, err := RunCoverage(ctx, driver, reg, p)
	if err != nil {
		return nil, err
	}
	result.Coverage = coverage

	fuzz, err := RunFuzz(ctx, driver, reg, p)
	if err != nil {
		return nil, err
	}
	result.Fuzz = fuzz

	symbolic, err := RunSymbolic(ctx, driver, reg, p)
	if err != nil {
		return nil, err
	}
	result.Symbolic = symbolic

	hybrid, err := RunHybrid(ctx, driver, reg, p)
	if err != nil {
		return nil, err
	}
	result.Hybrid = hybrid

	return result, nil
}
