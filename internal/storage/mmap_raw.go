package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapRawBackend maps the whole data file once. With WriteBytewise every byte
// is stored individually, which widens the window for a torn write.
type mmapRawBackend struct {
	f      *os.File
	data   []byte
	cfg    Config
	closed bool
}

func openMmapRaw(path string, cfg Config) (*mmapRawBackend, error) {
	f, err := openSized(path, int64(cfg.MaxCapacity))
	if err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(f.Fd()), 0, cfg.MaxCapacity, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &mmapRawBackend{f: f, data: data, cfg: cfg}, nil
}

func (m *mmapRawBackend) SetBytes(data []byte, offset int64) error {
	if m.closed {
		return ErrClosed
	}
	if err := checkRange(offset, len(data), m.cfg.MaxCapacity); err != nil {
		return err
	}
	dst := m.data[offset : offset+int64(len(data))]
	if m.cfg.MmapWriteMode == WriteBytewise {
		storeBytewise(dst, data)
		return nil
	}
	copy(dst, data)
	return nil
}

//go:noinline
func storeBytewise(dst, src []byte) {
	for i := 0; i < len(src); i++ {
		dst[i] = src[i]
	}
}

func (m *mmapRawBackend) GetBytes(offset int64, size int) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, m.cfg.MaxCapacity); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, m.data[offset:])
	return out, nil
}

func (m *mmapRawBackend) Flush() error {
	if m.closed {
		return ErrClosed
	}
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *mmapRawBackend) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	uerr := unix.Munmap(m.data)
	m.data = nil
	if err := m.f.Close(); err != nil {
		return err
	}
	return uerr
}

func (m *mmapRawBackend) PageSize() int    { return m.cfg.PageSize }
func (m *mmapRawBackend) MaxCapacity() int { return m.cfg.MaxCapacity }
