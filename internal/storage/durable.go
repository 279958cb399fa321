package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"strings"
)

// Data file layout:
//
//	magic (8) | version (4) | page size (4) | capacity (8) | crc32 (4) | reserved (4) | data...
//
// Journal layout (at most one record, truncated after it is applied):
//
//	magic (4) | offset (8) | length (4) | crc32 (4) | data...
//
// The record crc covers offset, length and data.
const (
	durableVersion    = 1
	durableHeaderSize = 32
	journalHeaderSize = 20
	journalMagic      = 0x4a524e4c
)

var durableMagic = [8]byte{'C', 'P', 'D', 'U', 'R', 'A', 'B', 'L'}

// durableBackend journals every SetBytes before applying it, so a single call
// is all-or-nothing across a process kill.
type durableBackend struct {
	data    *os.File
	journal *os.File
	cfg     Config
	closed  bool
}

func journalPath(dataPath string) string {
	return strings.TrimSuffix(dataPath, ".dat") + ".journal"
}

func openDurable(path string, cfg Config) (*durableBackend, error) {
	data, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	if err := initOrCheckHeader(data, cfg); err != nil {
		data.Close()
		return nil, err
	}

	journal, err := os.OpenFile(journalPath(path), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		data.Close()
		return nil, err
	}

	d := &durableBackend{data: data, journal: journal, cfg: cfg}
	if err := d.replay(); err != nil {
		d.Close()
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	return d, nil
}

func encodeHeader(cfg Config) []byte {
	h := make([]byte, durableHeaderSize)
	copy(h, durableMagic[:])
	binary.BigEndian.PutUint32(h[8:], durableVersion)
	binary.BigEndian.PutUint32(h[12:], uint32(cfg.PageSize))
	binary.BigEndian.PutUint64(h[16:], uint64(cfg.MaxCapacity))
	binary.BigEndian.PutUint32(h[24:], crc32.ChecksumIEEE(h[:24]))
	return h
}

func initOrCheckHeader(f *os.File, cfg Config) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	want := encodeHeader(cfg)
	size := int64(durableHeaderSize + cfg.MaxCapacity)

	if info.Size() == 0 {
		if err := f.Truncate(size); err != nil {
			return fmt.Errorf("zero-fill: %w", err)
		}
		if err := pwriteFull(int(f.Fd()), want, 0); err != nil {
			return err
		}
		return f.Sync()
	}

	if info.Size() != size {
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrLayoutMismatch, f.Name(), info.Size(), size)
	}
	got := make([]byte, durableHeaderSize)
	if err := preadFull(int(f.Fd()), got, 0); err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: %s header does not match capacity=%d page size=%d",
			ErrLayoutMismatch, f.Name(), cfg.MaxCapacity, cfg.PageSize)
	}
	return nil
}

func encodeJournalRecord(offset int64, data []byte) []byte {
	rec := make([]byte, journalHeaderSize+len(data))
	binary.BigEndian.PutUint32(rec, journalMagic)
	binary.BigEndian.PutUint64(rec[4:], uint64(offset))
	binary.BigEndian.PutUint32(rec[12:], uint32(len(data)))
	copy(rec[journalHeaderSize:], data)
	binary.BigEndian.PutUint32(rec[16:], journalChecksum(rec))
	return rec
}

func journalChecksum(rec []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(rec[4:16])
	h.Write(rec[journalHeaderSize:])
	return h.Sum32()
}

// decodeJournalRecord returns ok=false for an empty or torn record.
func decodeJournalRecord(rec []byte) (offset int64, data []byte, ok bool) {
	if len(rec) < journalHeaderSize || binary.BigEndian.Uint32(rec) != journalMagic {
		return 0, nil, false
	}
	length := int(binary.BigEndian.Uint32(rec[12:]))
	if len(rec) != journalHeaderSize+length {
		return 0, nil, false
	}
	if binary.BigEndian.Uint32(rec[16:]) != journalChecksum(rec) {
		return 0, nil, false
	}
	return int64(binary.BigEndian.Uint64(rec[4:])), rec[journalHeaderSize:], true
}

func (d *durableBackend) replay() error {
	info, err := d.journal.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	rec := make([]byte, info.Size())
	if err := preadFull(int(d.journal.Fd()), rec, 0); err != nil {
		return err
	}
	if offset, data, ok := decodeJournalRecord(rec); ok {
		if err := checkRange(offset, len(data), d.cfg.MaxCapacity); err != nil {
			return err
		}
		if err := pwriteFull(int(d.data.Fd()), data, durableHeaderSize+offset); err != nil {
			return err
		}
	}
	return d.journal.Truncate(0)
}

func (d *durableBackend) SetBytes(data []byte, offset int64) error {
	if d.closed {
		return ErrClosed
	}
	if err := checkRange(offset, len(data), d.cfg.MaxCapacity); err != nil {
		return err
	}
	if err := pwriteFull(int(d.journal.Fd()), encodeJournalRecord(offset, data), 0); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := pwriteFull(int(d.data.Fd()), data, durableHeaderSize+offset); err != nil {
		return err
	}
	return d.journal.Truncate(0)
}

func (d *durableBackend) GetBytes(offset int64, size int) ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if err := checkRange(offset, size, d.cfg.MaxCapacity); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if err := preadFull(int(d.data.Fd()), out, durableHeaderSize+offset); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *durableBackend) Flush() error {
	if d.closed {
		return ErrClosed
	}
	if err := d.data.Sync(); err != nil {
		return err
	}
	return d.journal.Sync()
}

func (d *durableBackend) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	derr := d.data.Close()
	if err := d.journal.Close(); err != nil {
		return err
	}
	return derr
}

func (d *durableBackend) PageSize() int    { return d.cfg.PageSize }
func (d *durableBackend) MaxCapacity() int { return d.cfg.MaxCapacity }
