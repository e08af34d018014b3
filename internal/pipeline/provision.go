package pipeline

import (
	"context"

	"analyzerd/internal/sandbox"
)

const symccBaseTag = "symcc-base"

// Provision builds the Docker images every pipeline stage depends on:
// gcov, AFL++, KLEE, and the SymCC derived image (built in two steps,
// since symcc-base needs a commit on top to install screen for the
// hybrid stage's sideline session). force rebuilds images that already
// exist.
func Provision(ctx context.Context, driver *sandbox.Driver, depsDir string, force bool) error {
	if err := driver.Build(ctx, depsDir+"/gcov", gcovTag, force); err != nil {
		return err
	}
	if err := driver.Build(ctx, depsDir+"/AFLplusplus", aflTag, force); err != nil {
		return err
	}
	if err := driver.Build(ctx, depsDir+"/klee", kleeTag, force); err != nil {
		return err
	}
	if err := driver.Build(ctx, depsDir+"/symcc", symccBaseTag, force); err != nil {
		return err
	}
	return driver.Commit(ctx, symccBaseTag, symccTag, []string{
		"bash", "-c", "sudo apt-get update -y && sudo apt-get install -y screen",
	}, nil, "", force)
}
