package storage

import (
	"fmt"
	"os"
	"sort"

	"golang.org/x/sys/unix"
)

// mappedPage is one shared mapping covering a single page of the data file.
type mappedPage struct {
	index int
	data  []byte
	dirty bool
}

// mmapPagesBackend maps pages lazily and keeps them mapped until Close.
type mmapPagesBackend struct {
	f      *os.File
	cfg    Config
	pages  map[int]*mappedPage
	closed bool
}

func openMmapPages(path string, cfg Config) (*mmapPagesBackend, error) {
	if sys := os.Getpagesize(); cfg.PageSize%sys != 0 {
		return nil, fmt.Errorf("page size %d must be a multiple of the OS page size %d", cfg.PageSize, sys)
	}
	f, err := openSized(path, int64(cfg.MaxCapacity))
	if err != nil {
		return nil, err
	}
	return &mmapPagesBackend{f: f, cfg: cfg, pages: make(map[int]*mappedPage)}, nil
}

func (m *mmapPagesBackend) page(index int) (*mappedPage, error) {
	if p, ok := m.pages[index]; ok {
		return p, nil
	}
	start := index * m.cfg.PageSize
	length := m.cfg.PageSize
	if rest := m.cfg.MaxCapacity - start; rest < length {
		length = rest
	}
	data, err := unix.Mmap(int(m.f.Fd()), int64(start), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap page %d: %w", index, err)
	}
	p := &mappedPage{index: index, data: data}
	m.pages[index] = p
	return p, nil
}

// span calls fn for every page-local piece of [offset, offset+size).
func (m *mmapPagesBackend) span(offset int64, size int, fn func(p *mappedPage, inPage, done, n int)) error {
	ps := m.cfg.PageSize
	done := 0
	for done < size {
		abs := int(offset) + done
		p, err := m.page(abs / ps)
		if err != nil {
			return err
		}
		inPage := abs % ps
		n := len(p.data) - inPage
		if n > size-done {
			n = size - done
		}
		fn(p, inPage, done, n)
		done += n
	}
	return nil
}

func (m *mmapPagesBackend) SetBytes(data []byte, offset int64) error {
	if m.closed {
		return ErrClosed
	}
	if err := checkRange(offset, len(data), m.cfg.MaxCapacity); err != nil {
		return err
	}
	return m.span(offset, len(data), func(p *mappedPage, inPage, done, n int) {
		copy(p.data[inPage:inPage+n], data[done:done+n])
		p.dirty = true
	})
}

func (m *mmapPagesBackend) GetBytes(offset int64, size int) ([]byte, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, m.cfg.MaxCapacity); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	err := m.span(offset, size, func(p *mappedPage, inPage, done, n int) {
		copy(out[done:done+n], p.data[inPage:inPage+n])
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *mmapPagesBackend) Flush() error {
	if m.closed {
		return ErrClosed
	}
	indexes := make([]int, 0, len(m.pages))
	for i, p := range m.pages {
		if p.dirty {
			indexes = append(indexes, i)
		}
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		p := m.pages[i]
		if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("msync page %d: %w", i, err)
		}
		p.dirty = false
	}
	return nil
}

func (m *mmapPagesBackend) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	var firstErr error
	for i, p := range m.pages {
		if err := unix.Munmap(p.data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("munmap page %d: %w", i, err)
		}
	}
	m.pages = nil
	if err := m.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (m *mmapPagesBackend) PageSize() int    { return m.cfg.PageSize }
func (m *mmapPagesBackend) MaxCapacity() int { return m.cfg.MaxCapacity }
