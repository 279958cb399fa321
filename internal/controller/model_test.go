package controller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModel_CommitAndAdopt(t *testing.T) {
	m := NewModel(8)
	require.Equal(t, make([]byte, 8), m.Acked())
	require.Nil(t, m.Pending())

	m.Prepare(2, []byte{1, 2, 3})
	require.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, m.Pending())
	require.Equal(t, make([]byte, 8), m.Acked(), "prepare must not touch the acknowledged state")

	m.Commit()
	require.Nil(t, m.Pending())
	require.Equal(t, []byte{1, 2, 3}, m.Expect(2, 3))

	m.Prepare(0, []byte{9})
	m.ClearPending()
	require.Nil(t, m.Pending())
	require.Equal(t, byte(0), m.Acked()[0])

	recovered := []byte{7, 7, 7, 7, 7, 7, 7, 7}
	m.Prepare(0, recovered)
	m.Adopt(recovered)
	recovered[0] = 0
	require.Equal(t, byte(7), m.Acked()[0], "adopt must copy")
	require.Nil(t, m.Pending())
}

func TestModel_CommitWithoutPendingIsNoop(t *testing.T) {
	m := NewModel(4)
	m.Commit()
	require.Equal(t, make([]byte, 4), m.Acked())
}
