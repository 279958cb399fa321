package worker

import (
	"bufio"
	"fmt"
	"os"

	"github.com/bft-labs/crashprobe/internal/storage"
	"github.com/bft-labs/crashprobe/pkg/log"
)

const stdioBufferSize = 64 << 10

// ServeStdio is the body of a worker process: it reads the storage
// configuration from CRASHPROBE_* variables, opens the backend and serves
// requests from stdin, answering on stdout.
func ServeStdio(kind storage.Kind, dataDir string, logger log.Logger) error {
	cfg, err := storage.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	backend, err := storage.Open(kind, dataDir, cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", kind, err)
	}

	logger.Debug("worker ready",
		log.String("backend", string(kind)),
		log.Int("max_capacity", cfg.MaxCapacity),
		log.Int("page_size", cfg.PageSize),
		log.Bool("per_page_writes", cfg.EnforcePerPageWrites),
	)

	w := New(backend, WithLogger(logger), WithPageSplitting(cfg.EnforcePerPageWrites))
	in := bufio.NewReaderSize(os.Stdin, stdioBufferSize)
	out := bufio.NewWriterSize(os.Stdout, stdioBufferSize)
	return w.Serve(in, out)
}
