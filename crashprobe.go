// Package crashprobe checks that persistent byte-array backends survive
// abrupt process kills without losing acknowledged writes.
//
// Example usage:
//
//	cfg := crashprobe.DefaultConfig()
//	cfg.Backend = "mmap-pages"
//	cfg.DataDir = "/tmp/crashprobe/mmap-pages"
//	reports, err := crashprobe.Run(context.Background(), []crashprobe.Config{cfg}, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(reports[0].Passed)
//
// Run re-executes the calling binary as a worker, so the binary must route
// "worker --backend K --data-dir D" to ServeWorker.
package crashprobe

import (
	"context"

	"github.com/bft-labs/crashprobe/internal/controller"
	"github.com/bft-labs/crashprobe/internal/report"
	"github.com/bft-labs/crashprobe/internal/storage"
	"github.com/bft-labs/crashprobe/internal/worker"
	"github.com/bft-labs/crashprobe/pkg/log"
)

// Config describes one run against one backend.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = controller.Config

// Report is the outcome of one run.
type Report = report.Report

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set DataDir before calling Run.
func DefaultConfig() Config {
	return controller.DefaultConfig()
}

// Run executes one run per config concurrently, each against worker
// processes re-executed from the current binary. A nil logger discards
// output. The error reports infrastructure problems; consistency failures
// are in the reports.
func Run(ctx context.Context, cfgs []Config, logger log.Logger) ([]Report, error) {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return controller.RunMatrix(ctx, cfgs, func(cfg Config) (controller.Spawner, error) {
		return controller.NewExecSpawner(cfg.Backend, cfg.DataDir, cfg.Storage)
	}, controller.WithLogger(logger))
}

// ServeWorker is the body of a worker process. It serves requests on
// stdin/stdout until the controller sends Close or closes the stream.
func ServeWorker(kind, dataDir string, logger log.Logger) error {
	k, err := storage.ParseKind(kind)
	if err != nil {
		return err
	}
	return worker.ServeStdio(k, dataDir, logger)
}
