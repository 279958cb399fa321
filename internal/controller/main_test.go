package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bft-labs/crashprobe/internal/storage"
	"github.com/bft-labs/crashprobe/internal/worker"
	"github.com/bft-labs/crashprobe/pkg/log"
)

// The test binary doubles as a worker when these are set.
const (
	envTestWorker  = "CRASHPROBE_TEST_WORKER"
	envTestDataDir = "CRASHPROBE_TEST_DATA_DIR"
)

func TestMain(m *testing.M) {
	if kind := os.Getenv(envTestWorker); kind != "" {
		if err := worker.ServeStdio(storage.Kind(kind), os.Getenv(envTestDataDir), log.NewNoopLogger()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// wrapFunc lets a test interpose on the backend of one epoch. kill has the
// same effect as Process.Kill.
type wrapFunc func(epoch int, b storage.Backend, kill func()) storage.Backend

// pipeSpawner serves each epoch from an in-process worker goroutine over
// io.Pipe pairs. Kill closes both pipes.
type pipeSpawner struct {
	kind storage.Kind
	dir  string
	cfg  storage.Config
	wrap wrapFunc

	// readFault, once set, makes the next response read fail.
	readFault *atomic.Bool

	spawned atomic.Int32
}

func newPipeSpawner(cfg Config) *pipeSpawner {
	return &pipeSpawner{kind: cfg.Backend, dir: cfg.DataDir, cfg: cfg.Storage}
}

func (s *pipeSpawner) Spawn(_ context.Context, epoch int) (Process, error) {
	s.spawned.Add(1)
	backend, err := storage.Open(s.kind, s.dir, s.cfg)
	if err != nil {
		return nil, err
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	p := &pipeProcess{reqR: reqR, reqW: reqW, respR: respR, respW: respW, fault: s.readFault, done: make(chan struct{})}
	if s.wrap != nil {
		backend = s.wrap(epoch, backend, func() { _ = p.Kill() })
	}

	w := worker.New(backend, worker.WithPageSplitting(s.cfg.EnforcePerPageWrites))
	go func() {
		defer close(p.done)
		p.err = w.Serve(reqR, respW)
		respW.Close()
	}()
	return p, nil
}

type pipeProcess struct {
	reqR  *io.PipeReader
	reqW  *io.PipeWriter
	respR *io.PipeReader
	respW *io.PipeWriter
	fault *atomic.Bool

	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (p *pipeProcess) Stdin() io.Writer  { return p.reqW }
func (p *pipeProcess) Stdout() io.Reader {
	if p.fault == nil {
		return p.respR
	}
	return &faultReader{r: p.respR, fault: p.fault}
}

func (p *pipeProcess) Kill() error {
	p.killOnce.Do(func() {
		p.reqR.Close()
		p.respR.Close()
	})
	return nil
}

func (p *pipeProcess) Wait() error {
	<-p.done
	return p.err
}

var errReadFault = errors.New("injected read fault")

type faultReader struct {
	r     io.Reader
	fault *atomic.Bool
}

func (f *faultReader) Read(p []byte) (int, error) {
	if f.fault.CompareAndSwap(true, false) {
		return 0, errReadFault
	}
	n, err := f.r.Read(p)
	if f.fault.CompareAndSwap(true, false) {
		return 0, errReadFault
	}
	return n, err
}

// hookBackend runs onSet around every SetBytes of the wrapped backend.
type hookBackend struct {
	storage.Backend
	onSet func(data []byte, offset int64, apply func() error) error
}

func (h *hookBackend) SetBytes(data []byte, offset int64) error {
	return h.onSet(data, offset, func() error { return h.Backend.SetBytes(data, offset) })
}

func testConfig(t *testing.T, kind storage.Kind) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = kind
	cfg.DataDir = t.TempDir()
	cfg.Storage.PageSize = os.Getpagesize()
	cfg.Storage.MaxCapacity = 16 * cfg.Storage.PageSize
	cfg.MaxWriteSize = 3 * cfg.Storage.PageSize
	cfg.TimesToKill = 4
	cfg.Seed = 42
	cfg.MaxKillDelay = 0
	cfg.MaxStressRequests = 40
	return cfg
}
