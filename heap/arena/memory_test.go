package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemory_ExtendReturnsPreviousBreak(t *testing.T) {
	m := NewMemory(64)

	off, err := m.Extend(16)
	require.NoError(t, err)
	require.Equal(t, 0, off)

	off, err = m.Extend(32)
	require.NoError(t, err)
	require.Equal(t, 16, off)
	require.Len(t, m.Bytes(), 48)
	require.Equal(t, 48, m.Len())
}

func TestMemory_ExtendPastLimitFails(t *testing.T) {
	m := NewMemory(32)

	_, err := m.Extend(24)
	require.NoError(t, err)

	_, err = m.Extend(16)
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 24, m.Len(), "failed extension must not move the break")
}

func TestMemory_NegativeExtend(t *testing.T) {
	m := NewMemory(32)
	_, err := m.Extend(-1)
	require.ErrorIs(t, err, ErrBadSize)
}

func TestMemory_BytesStableAcrossGrowth(t *testing.T) {
	m := NewMemory(1024)
	_, err := m.Extend(8)
	require.NoError(t, err)
	first := m.Bytes()
	first[0] = 0xAB

	_, err = m.Extend(512)
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), m.Bytes()[0])
	require.Same(t, &first[0], &m.Bytes()[0], "backing array must not move")
}

func TestMemory_ResetZeroes(t *testing.T) {
	m := NewMemory(64)
	_, err := m.Extend(8)
	require.NoError(t, err)
	m.Bytes()[3] = 7

	m.Reset()
	require.Equal(t, 0, m.Len())

	_, err = m.Extend(8)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 8), m.Bytes())
}

func TestMemory_DefaultLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NewMemory(0).Limit())
}
