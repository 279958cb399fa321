package controller

// Model is the controller's expectation of the backend contents: the
// acknowledged state plus at most one pending candidate for the write that
// is in flight. Slices returned by Acked and Pending must not be modified.
type Model struct {
	acked   []byte
	pending []byte
}

// NewModel starts from a zero-filled state of the given capacity.
func NewModel(capacity int) *Model {
	return &Model{acked: make([]byte, capacity)}
}

// Acked returns the state made of every write whose Ok was received.
func (m *Model) Acked() []byte { return m.acked }

// Pending returns the candidate state of the in-flight write, or nil.
func (m *Model) Pending() []byte { return m.pending }

// Prepare records the candidate for a write about to be sent.
func (m *Model) Prepare(offset int64, data []byte) {
	next := make([]byte, len(m.acked))
	copy(next, m.acked)
	copy(next[offset:], data)
	m.pending = next
}

// Commit promotes the candidate after its Ok was received.
func (m *Model) Commit() {
	if m.pending == nil {
		return
	}
	m.acked = m.pending
	m.pending = nil
}

// Adopt replaces the acknowledged state with a recovered one, used when an
// unacknowledged write turns out to have committed.
func (m *Model) Adopt(state []byte) {
	m.acked = append([]byte(nil), state...)
	m.pending = nil
}

// ClearPending drops the candidate.
func (m *Model) ClearPending() {
	m.pending = nil
}

// Expect returns the acknowledged bytes of a range.
func (m *Model) Expect(offset int64, size int) []byte {
	return m.acked[offset : offset+int64(size)]
}
