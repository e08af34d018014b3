// Command analysisd-admin provisions the Docker images the pipeline
// stages depend on (gcov, AFL++, KLEE, SymCC).
package main

import (
	"context"
	"log"
	"os"

	"analyzerd/internal/config"
	"analyzerd/internal/pipeline"
	"analyzerd/internal/sandbox"
)

func main() {
	// Provisioning failures are logged to stderr per spec.md §6; the
	// admin binary never writes ordinary progress output to stdout, so
	// the whole logger lives on stderr rather than splitting the two.
	logger := log.New(os.Stderr, "analysisd-admin ", log.LstdFlags|log.LUTC)

	force := config.BoolOr("FORCE_PROVISION", false)
	depsDir := config.StringOr("ANALYSISD_DEPS_DIR", "deps")

	driver, err := sandbox.New("analysisd-admin", logger)
	if err != nil {
		logger.Fatalf("connect to docker: %v", err)
	}
	defer driver.Close()

	if err := pipeline.Provision(context.Background(), driver, depsDir, force); err != nil {
		logger.Fatalf("failed to provision tools: %v", err)
	}
	logger.Printf("all tools provisioned")
}
