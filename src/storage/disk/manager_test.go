package disk

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/src/pkg/common"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := New(afero.NewMemMapFs(), "heap.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestWriteThenRead(t *testing.T) {
	m := newTestManager(t)

	payload := bytes.Repeat([]byte{0xCD}, common.PageSize)
	require.NoError(t, m.WritePage(3, payload))

	buf := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(3, buf))
	assert.Equal(t, payload, buf)
}

func TestReadUnwrittenPageIsZero(t *testing.T) {
	m := newTestManager(t)

	buf := bytes.Repeat([]byte{0xFF}, common.PageSize)
	require.NoError(t, m.ReadPage(7, buf))
	assert.Equal(t, bytes.Repeat([]byte{0}, common.PageSize), buf)
}

func TestShortBufferRejected(t *testing.T) {
	m := newTestManager(t)

	assert.ErrorIs(t, m.ReadPage(0, make([]byte, 16)), ErrShortPage)
	assert.ErrorIs(t, m.WritePage(0, make([]byte, 16)), ErrShortPage)
}

func TestAllocateAfterReopen(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "heap.db")
	require.NoError(t, err)

	require.NoError(t, m.WritePage(4, make([]byte, common.PageSize)))
	require.NoError(t, m.Close())

	reopened, err := New(fs, "heap.db")
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Ids restart after the highest written page.
	assert.Equal(t, common.PageID(5), reopened.AllocatePage())
}

func TestDeallocate(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.DeallocatePage(2))
	assert.True(t, m.IsDeallocated(2))
	assert.False(t, m.IsDeallocated(3))
}
