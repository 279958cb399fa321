package worker

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/crashprobe/internal/protocol"
	"github.com/bft-labs/crashprobe/internal/storage"
)

type setCall struct {
	Offset int64
	Size   int
}

// memBackend is an in-memory storage.Backend that records calls.
type memBackend struct {
	data     []byte
	pageSize int
	sets     []setCall
	flushes  int
	closes   int
	setErr   error
}

func newMemBackend(capacity, pageSize int) *memBackend {
	return &memBackend{data: make([]byte, capacity), pageSize: pageSize}
}

func (m *memBackend) SetBytes(data []byte, offset int64) error {
	if m.setErr != nil {
		return m.setErr
	}
	if offset+int64(len(data)) > int64(len(m.data)) {
		return storage.ErrOutOfRange
	}
	m.sets = append(m.sets, setCall{offset, len(data)})
	copy(m.data[offset:], data)
	return nil
}

func (m *memBackend) GetBytes(offset int64, size int) ([]byte, error) {
	if offset+int64(size) > int64(len(m.data)) {
		return nil, storage.ErrOutOfRange
	}
	return append([]byte(nil), m.data[offset:offset+int64(size)]...), nil
}

func (m *memBackend) Flush() error     { m.flushes++; return nil }
func (m *memBackend) Close() error     { m.closes++; return nil }
func (m *memBackend) PageSize() int    { return m.pageSize }
func (m *memBackend) MaxCapacity() int { return len(m.data) }

func frames(t *testing.T, msgs ...protocol.Message) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		require.NoError(t, protocol.WriteFrame(&buf, m))
	}
	return &buf
}

func readAll(t *testing.T, buf *bytes.Buffer) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for {
		m, err := protocol.ReadFrame(buf)
		if errors.Is(err, protocol.ErrEndOfStream) {
			return out
		}
		require.NoError(t, err)
		out = append(out, m)
	}
}

func TestServe_RequestSequence(t *testing.T) {
	b := newMemBackend(1024, 256)
	w := New(b)

	in := frames(t,
		protocol.SetBytes{Offset: 10, Data: []byte("abc")},
		protocol.ReadBytes{Offset: 9, Size: 5},
		protocol.Flush{},
		protocol.Close{},
		protocol.ReadBytes{Offset: 0, Size: 1}, // never read
	)
	var out bytes.Buffer
	require.NoError(t, w.Serve(in, bufio.NewWriter(&out)))

	want := []protocol.Message{
		protocol.Ok{},
		protocol.ReadBytesResult{Data: []byte{0, 'a', 'b', 'c', 0}},
		protocol.Ok{},
		protocol.Ok{},
	}
	if diff := cmp.Diff(want, readAll(t, &out)); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, StateClosed, w.State())
	require.Equal(t, 2, b.flushes, "explicit flush plus flush on close")
	require.Equal(t, 1, b.closes)
}

func TestServe_EndOfStreamClosesBackend(t *testing.T) {
	b := newMemBackend(64, 16)
	w := New(b)

	in := frames(t, protocol.SetBytes{Offset: 0, Data: []byte{1}})
	var out bytes.Buffer
	require.NoError(t, w.Serve(in, &out))

	require.Equal(t, StateClosed, w.State())
	require.Equal(t, 1, b.closes)
	require.Equal(t, []protocol.Message{protocol.Ok{}}, readAll(t, &out))
}

func TestServe_PageSplitting(t *testing.T) {
	tests := []struct {
		name  string
		split bool
		want  []setCall
	}{
		{"single call", false, []setCall{{4000, 10000}}},
		{"per page", true, []setCall{{4000, 96}, {4096, 4096}, {8192, 4096}, {12288, 1712}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newMemBackend(16384, 4096)
			w := New(b, WithPageSplitting(tt.split))

			payload := bytes.Repeat([]byte{0xAA}, 10000)
			in := frames(t, protocol.SetBytes{Offset: 4000, Data: payload})
			require.NoError(t, w.Serve(in, &bytes.Buffer{}))

			require.Equal(t, tt.want, b.sets)
			require.Equal(t, payload, b.data[4000:14000])
		})
	}
}

func TestServe_BackendErrorIsFatal(t *testing.T) {
	b := newMemBackend(64, 16)
	b.setErr = errors.New("disk on fire")
	w := New(b)

	in := frames(t, protocol.SetBytes{Offset: 0, Data: []byte{1}}, protocol.Flush{})
	var out bytes.Buffer
	err := w.Serve(in, &out)

	require.ErrorIs(t, err, b.setErr)
	require.Equal(t, StateClosed, w.State())
	require.Equal(t, 1, b.closes)
	require.Zero(t, out.Len(), "no response for a failed request")
}

func TestServe_OutOfRangeIsFatal(t *testing.T) {
	w := New(newMemBackend(64, 16))
	in := frames(t, protocol.ReadBytes{Offset: 60, Size: 10})
	require.ErrorIs(t, w.Serve(in, &bytes.Buffer{}), storage.ErrOutOfRange)
}

func TestServe_CorruptFrame(t *testing.T) {
	b := newMemBackend(64, 16)
	w := New(b)

	in := frames(t, protocol.Ok{}) // a response where a request belongs
	err := w.Serve(in, &bytes.Buffer{})
	require.ErrorIs(t, err, protocol.ErrCorruptFrame)
	require.Equal(t, 1, b.closes)
}

func TestPageChunks(t *testing.T) {
	tests := []struct {
		name   string
		offset int64
		size   int
		want   []Chunk
	}{
		{"empty", 100, 0, nil},
		{"inside one page", 10, 20, []Chunk{{10, 20}}},
		{"exact page", 4096, 4096, []Chunk{{4096, 4096}}},
		{"crosses one boundary", 4090, 10, []Chunk{{4090, 6}, {4096, 4}}},
		{"scenario write", 500000, 1000, []Chunk{{500000, 1000}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, PageChunks(tt.offset, tt.size, 4096))
		})
	}
}
