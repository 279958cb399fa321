// Package worker runs the request loop of a worker process: it reads framed
// requests from the controller, applies them to one storage backend and
// answers each with a framed response.
package worker

import (
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/crashprobe/internal/protocol"
	"github.com/bft-labs/crashprobe/internal/storage"
	"github.com/bft-labs/crashprobe/pkg/log"
)

// Option configures optional behavior of a Worker.
type Option func(*Worker)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithPageSplitting makes SetBytes reach the backend as one call per page.
// This widens the window in which a kill leaves a multi-page write partially
// applied.
func WithPageSplitting(enabled bool) Option {
	return func(w *Worker) {
		w.splitPages = enabled
	}
}

// Worker owns one backend for the lifetime of a worker process.
type Worker struct {
	backend    storage.Backend
	splitPages bool
	logger     log.Logger
	sm         stateMachine
	served     map[string]int
}

// New creates a Worker serving the given backend.
func New(backend storage.Backend, opts ...Option) *Worker {
	w := &Worker{
		backend: backend,
		logger:  log.NewNoopLogger(),
		served:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current loop state.
func (w *Worker) State() State {
	return w.sm.State()
}

// Serve runs the request loop until a Close request is answered or the
// controller closes the stream. Both return nil. Any other failure closes the
// backend and is returned.
func (w *Worker) Serve(in io.Reader, out io.Writer) error {
	for {
		req, err := protocol.ReadRequest(in)
		if errors.Is(err, protocol.ErrEndOfStream) {
			w.logger.Debug("controller closed the stream", log.Any("served", w.served))
			return w.shutdown(nil)
		}
		if err != nil {
			return w.shutdown(fmt.Errorf("read request: %w", err))
		}

		if err := w.sm.TransitionTo(StateDispatching); err != nil {
			return w.shutdown(err)
		}
		resp, done, err := w.dispatch(req)
		if err != nil {
			return w.shutdown(fmt.Errorf("dispatch %v: %w", req, err))
		}
		if err := protocol.WriteFrame(out, resp); err != nil {
			return w.shutdown(fmt.Errorf("write response to %v: %w", req, err))
		}
		if done {
			w.logger.Debug("closed on request", log.Any("served", w.served))
			return w.sm.TransitionTo(StateClosed)
		}
		if err := w.sm.TransitionTo(StateIdle); err != nil {
			return w.shutdown(err)
		}
	}
}

// shutdown closes the backend and enters the terminal state. cause wins over
// a close error.
func (w *Worker) shutdown(cause error) error {
	cerr := w.backend.Close()
	_ = w.sm.TransitionTo(StateClosed)
	if cause != nil {
		return cause
	}
	return cerr
}

func (w *Worker) dispatch(req protocol.Request) (protocol.Response, bool, error) {
	switch r := req.(type) {
	case protocol.ReadBytes:
		w.served["read"]++
		data, err := w.backend.GetBytes(r.Offset, r.Size)
		if err != nil {
			return nil, false, err
		}
		return protocol.ReadBytesResult{Data: data}, false, nil

	case protocol.SetBytes:
		w.served["set"]++
		if err := w.set(r.Data, r.Offset); err != nil {
			return nil, false, err
		}
		return protocol.Ok{}, false, nil

	case protocol.Flush:
		w.served["flush"]++
		if err := w.backend.Flush(); err != nil {
			return nil, false, err
		}
		return protocol.Ok{}, false, nil

	case protocol.Close:
		w.served["close"]++
		if err := w.backend.Flush(); err != nil {
			return nil, false, err
		}
		if err := w.backend.Close(); err != nil {
			return nil, false, err
		}
		return protocol.Ok{}, true, nil

	default:
		return nil, false, fmt.Errorf("unsupported request %T", req)
	}
}

func (w *Worker) set(data []byte, offset int64) error {
	if !w.splitPages {
		return w.backend.SetBytes(data, offset)
	}
	for _, c := range PageChunks(offset, len(data), w.backend.PageSize()) {
		lo := int(c.Offset - offset)
		if err := w.backend.SetBytes(data[lo:lo+c.Size], c.Offset); err != nil {
			return err
		}
	}
	return nil
}

// Chunk is a page-local piece of a write.
type Chunk struct {
	Offset int64
	Size   int
}

// PageChunks splits [offset, offset+size) at page boundaries.
func PageChunks(offset int64, size int, pageSize int) []Chunk {
	var chunks []Chunk
	end := offset + int64(size)
	for off := offset; off < end; {
		pageEnd := (off/int64(pageSize) + 1) * int64(pageSize)
		if pageEnd > end {
			pageEnd = end
		}
		chunks = append(chunks, Chunk{Offset: off, Size: int(pageEnd - off)})
		off = pageEnd
	}
	return chunks
}
