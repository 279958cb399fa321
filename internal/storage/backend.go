package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Backend is a fixed-capacity persistent byte array.
//
// GetBytes reflects the most recent completed SetBytes. After Flush returns
// nil, every earlier write survives a kill of the hosting process.
type Backend interface {
	SetBytes(data []byte, offset int64) error
	GetBytes(offset int64, size int) ([]byte, error)
	Flush() error
	// Close releases all resources. Closing twice is harmless.
	Close() error
	PageSize() int
	MaxCapacity() int
}

// Kind names a backend implementation.
type Kind string

const (
	KindDurable   Kind = "durable"
	KindChannel   Kind = "channel"
	KindMmapPages Kind = "mmap-pages"
	KindMmapRaw   Kind = "mmap-raw"
)

// Kinds returns every supported backend kind.
func Kinds() []Kind {
	return []Kind{KindDurable, KindChannel, KindMmapPages, KindMmapRaw}
}

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownKind, s, kindList())
}

// DataFile returns the data file name used by a backend kind.
func (k Kind) DataFile() string {
	return string(k) + ".dat"
}

// Files returns the base names of every file a backend kind keeps on disk.
func (k Kind) Files() []string {
	if k == KindDurable {
		return []string{k.DataFile(), journalPath(k.DataFile())}
	}
	return []string{k.DataFile()}
}

// Open creates or reopens the backend of the given kind inside dir.
func Open(kind Kind, dir string, cfg Config) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	path := filepath.Join(dir, kind.DataFile())

	switch kind {
	case KindDurable:
		return openDurable(path, cfg)
	case KindChannel:
		return openChannel(path, cfg)
	case KindMmapPages:
		return openMmapPages(path, cfg)
	case KindMmapRaw:
		return openMmapRaw(path, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func kindList() string {
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func checkRange(offset int64, size int, capacity int) error {
	if offset < 0 || size < 0 || offset+int64(size) > int64(capacity) {
		return fmt.Errorf("%w: offset=%d size=%d capacity=%d", ErrOutOfRange, offset, size, capacity)
	}
	return nil
}

// openSized opens path and zero-fills it to size on first use. An existing
// file of another size is rejected.
func openSized(path string, size int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch info.Size() {
	case size:
		return f, nil
	case 0:
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("zero-fill %s: %w", path, err)
		}
		return f, nil
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, want %d", ErrLayoutMismatch, path, info.Size(), size)
	}
}
