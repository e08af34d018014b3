// Command analysisd serves the intake frontend and runs the worker pool
// that analyzes submitted packets.
package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"

	"analyzerd/internal/config"
	"analyzerd/internal/intake"
	"analyzerd/internal/pipeline"
	"analyzerd/internal/registry"
	"analyzerd/internal/sandbox"
)

// workBacklog approximates an unbounded work queue: the registry's own
// FIFO has no size limit, but the channel handing packets to workers
// does, so it is sized generously instead of literally unbounded (§9).
const workBacklog = 1 << 16

func main() {
	logger := log.New(os.Stdout, "analysisd ", log.LstdFlags|log.LUTC)

	root := config.StringOr("ANALYSISD_ROOT", "/var/lib/analysisd/registry")
	addr := config.StringOr("ANALYSISD_ADDR", "127.0.0.1:8000")
	intakeWorkers := config.IntOr("ANALYSISD_INTAKE_WORKERS", 2)
	analysisWorkers := config.IntOr("ANALYSISD_ANALYSIS_WORKERS", 8)

	if err := os.MkdirAll(root, 0o755); err != nil {
		logger.Fatalf("create registry root: %v", err)
	}
	reg, err := registry.New(root, logger)
	if err != nil {
		logger.Fatalf("load registry: %v", err)
	}

	// work carries every packet awaiting analysis: those recovered from
	// disk on startup (already present in the registry's own FIFO, see
	// registry.New) plus every freshly submitted packet from the intake
	// frontend. It approximates the spec's unbounded channel by being
	// sized generously rather than literally unbounded (§9, DESIGN.md).
	work := make(chan registry.Packet, workBacklog)
	for p, status := range reg.Snapshot() {
		if status == registry.Received {
			work <- p
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatalf("listen on %s: %v", addr, err)
	}
	logger.Printf("listening on %s", addr)

	server := intake.New(reg, logger, work)
	mux := server.Mux()
	for i := 0; i < intakeWorkers; i++ {
		go serveIntake(logger, listener, mux)
	}

	for i := 0; i < analysisWorkers; i++ {
		go runWorker(logger, i, reg, work)
	}

	select {}
}

// serveIntake runs one of several http.Serve loops sharing a single
// listener: the net package's Listener.Accept is safe for concurrent
// callers, so S goroutines can pull connections off the same socket
// without an explicit accept-and-dispatch loop of our own.
func serveIntake(logger *log.Logger, listener net.Listener, mux http.Handler) {
	if err := http.Serve(listener, mux); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Printf("intake server exited: %v", err)
	}
}

// runWorker receives packets from work and runs the full analysis
// pipeline for each with its own Docker Engine API session, sequentially
// (one sandbox invocation chain at a time), per §5.
func runWorker(logger *log.Logger, id int, reg *registry.Registry, work <-chan registry.Packet) {
	wlog := log.New(logger.Writer(), logger.Prefix(), logger.Flags())
	driver, err := sandbox.New(workerName(id), wlog)
	if err != nil {
		logger.Printf("worker %d: connect to docker: %v", id, err)
		return
	}
	defer driver.Close()

	ctx := context.Background()
	for p := range work {
		result, err := pipeline.Analyze(ctx, driver, reg, p)
		if err != nil {
			logger.Printf("worker %d: analyze %s: %v", id, p.H, err)
			if saveErr := reg.SaveError(p, err.Error()); saveErr != nil {
				logger.Printf("worker %d: save error for %s: %v", id, p.H, saveErr)
			}
			continue
		}
		if err := reg.SaveResult(p, result); err != nil {
			logger.Printf("worker %d: save result for %s: %v", id, p.H, err)
		}
	}
}

func workerName(id int) string {
	return "analysisd-worker-" + strconv.Itoa(id)
}
