package storage

import "errors"

var (
	// ErrOutOfRange is returned for a byte range outside [0, MaxCapacity).
	ErrOutOfRange = errors.New("storage: range out of bounds")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("storage: backend closed")

	// ErrUnknownKind is returned by Open and ParseKind for an unsupported kind.
	ErrUnknownKind = errors.New("storage: unknown backend kind")

	// ErrLayoutMismatch is returned when an existing data file was created
	// with a different capacity or page size.
	ErrLayoutMismatch = errors.New("storage: data file layout mismatch")
)
