package protocol

import (
	"errors"
	"io"
	"os"
	"syscall"
)

var (
	// ErrEndOfStream is returned by ReadFrame when the peer closed the stream
	// on a frame boundary. It means "peer gone", not a protocol error.
	ErrEndOfStream = errors.New("protocol: end of stream")

	// ErrTruncatedFrame is returned when the stream ends inside a frame.
	ErrTruncatedFrame = errors.New("protocol: truncated frame")

	// ErrCorruptFrame is returned when a complete frame cannot be decoded.
	// It indicates a broken harness, never a storage inconsistency.
	ErrCorruptFrame = errors.New("protocol: corrupt frame")
)

// IsConnectionClosed reports whether err means the peer process is gone:
// the stream ended, a pipe was closed, or a write hit EPIPE.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrEndOfStream) ||
		errors.Is(err, ErrTruncatedFrame) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EPIPE)
}
