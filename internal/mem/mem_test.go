package mem

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_ReadUnwrittenIsZero(t *testing.T) {
	m := NewMemory()
	buf := []byte{1, 2, 3, 4}

	require.NoError(t, m.Read(Physical, 0x1000, buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
	assert.Equal(t, 0, m.Pages(Physical))
}

func TestMemory_WriteAcrossPages(t *testing.T) {
	m := NewMemory()
	data := bytes.Repeat([]byte{0xab}, PageSize+10)
	addr := uint64(PageSize - 5)

	require.NoError(t, m.Write(Virtual, addr, data))
	assert.Equal(t, 3, m.Pages(Virtual))

	got := make([]byte, len(data)+2)
	require.NoError(t, m.Read(Virtual, addr-1, got))
	assert.Equal(t, byte(0), got[0])
	assert.Equal(t, data, got[1:len(data)+1])
	assert.Equal(t, byte(0), got[len(got)-1])
}

func TestMemory_SpacesAreIndependent(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Write(Physical, 8, []byte("phys")))

	buf := make([]byte, 4)
	require.NoError(t, m.Read(Virtual, 8, buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)

	require.NoError(t, m.Read(Physical, 8, buf))
	assert.Equal(t, "phys", string(buf))
}

func TestMemory_Limit(t *testing.T) {
	m := NewMemory(WithLimit(0x100))

	assert.NoError(t, m.Write(Physical, 0xfc, []byte{1, 2, 3, 4}))
	assert.ErrorIs(t, m.Write(Physical, 0xfd, []byte{1, 2, 3, 4}), ErrOutOfRange)
	assert.ErrorIs(t, m.Read(Physical, 0x100, make([]byte, 1)), ErrOutOfRange)
}

func TestMemory_AddressOverflow(t *testing.T) {
	m := NewMemory()
	err := m.Write(Physical, ^uint64(0), []byte{1, 2})
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestSpace_String(t *testing.T) {
	assert.Equal(t, "physical", Physical.String())
	assert.Equal(t, "virtual", Virtual.String())
	assert.Equal(t, "space(7)", Space(7).String())
}
