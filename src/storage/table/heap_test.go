package table

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relstore/relstore/src/bufferpool"
	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage/disk"
	"github.com/relstore/relstore/src/txns"
)

func newTestHeap(t *testing.T, poolSize uint64) (*Heap, *txns.Manager) {
	t.Helper()

	diskMgr, err := disk.New(afero.NewMemMapFs(), "relstore.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = diskMgr.Close() })

	pool := bufferpool.New(poolSize, bufferpool.NewLRUReplacer(), diskMgr)

	heap, err := NewHeap(pool)
	require.NoError(t, err)

	lm := txns.NewLockManager(zap.NewNop().Sugar(), 0)
	t.Cleanup(lm.Close)

	return heap, txns.NewManager(lm)
}

func TestInsertAndGet(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	rid, err := heap.InsertTuple(txn, []byte("hello tuple"))
	require.NoError(t, err)
	assert.Equal(t, heap.FirstPageID(), rid.PageID)

	data, err := heap.GetTuple(txn, rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello tuple"), data)

	writes := txn.TableWriteSet()
	require.Len(t, writes, 1)
	assert.Equal(t, txns.WriteInsert, writes[0].Type)
	assert.Equal(t, rid, writes[0].RID)
}

func TestGetMissing(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	_, err := heap.GetTuple(txn, common.RID{PageID: heap.FirstPageID(), SlotNum: 9})
	assert.ErrorIs(t, err, ErrTupleNotFound)
}

func TestUpdateInPlace(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	rid, err := heap.InsertTuple(txn, []byte("aaaa"))
	require.NoError(t, err)

	updated, err := heap.UpdateTuple(txn, rid, []byte("bbbb"))
	require.NoError(t, err)
	require.True(t, updated)

	data, err := heap.GetTuple(txn, rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), data)

	writes := txn.TableWriteSet()
	require.Len(t, writes, 2)
	assert.Equal(t, txns.WriteUpdate, writes[1].Type)
	assert.Equal(t, []byte("aaaa"), writes[1].OldTuple)
}

func TestUpdateLargerFails(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	rid, err := heap.InsertTuple(txn, []byte("tiny"))
	require.NoError(t, err)

	updated, err := heap.UpdateTuple(txn, rid, []byte("much larger replacement"))
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestDeleteLifecycle(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	rid, err := heap.InsertTuple(txn, []byte("doomed"))
	require.NoError(t, err)

	marked, err := heap.MarkDelete(txn, rid)
	require.NoError(t, err)
	require.True(t, marked)

	_, err = heap.GetTuple(txn, rid)
	assert.ErrorIs(t, err, ErrTupleNotFound)

	require.NoError(t, heap.RollbackDelete(txn, rid))

	data, err := heap.GetTuple(txn, rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("doomed"), data)

	require.NoError(t, heap.ApplyDelete(txn, rid))

	_, err = heap.GetTuple(txn, rid)
	assert.ErrorIs(t, err, ErrTupleNotFound)
}

func TestInsertSpillsToNewPage(t *testing.T) {
	heap, tm := newTestHeap(t, 8)
	txn := tm.Begin(txns.RepeatableRead)

	// Each tuple consumes about a quarter of a page, so five inserts
	// cannot share one.
	tuple := bytes.Repeat([]byte{0x11}, common.PageSize/4)

	rids := make([]common.RID, 0, 5)
	for range 5 {
		rid, err := heap.InsertTuple(txn, tuple)
		require.NoError(t, err)
		rids = append(rids, rid)
	}

	pages := make(map[common.PageID]struct{})
	for _, rid := range rids {
		pages[rid.PageID] = struct{}{}
	}
	assert.Greater(t, len(pages), 1)

	for _, rid := range rids {
		data, err := heap.GetTuple(txn, rid)
		require.NoError(t, err)
		assert.Equal(t, tuple, data)
	}
}

func TestTupleTooLarge(t *testing.T) {
	heap, tm := newTestHeap(t, 4)
	txn := tm.Begin(txns.RepeatableRead)

	_, err := heap.InsertTuple(txn, bytes.Repeat([]byte{1}, common.PageSize))
	assert.ErrorIs(t, err, ErrTupleTooLarge)
}

func TestIteratorSweepsChain(t *testing.T) {
	heap, tm := newTestHeap(t, 8)
	txn := tm.Begin(txns.RepeatableRead)

	tuple := bytes.Repeat([]byte{0x22}, common.PageSize/4)

	inserted := make(map[common.RID][]byte)
	for i := range 6 {
		payload := append(bytes.Clone(tuple), byte(i))
		rid, err := heap.InsertTuple(txn, payload)
		require.NoError(t, err)
		inserted[rid] = payload
	}

	// Delete one row; the iterator must skip it.
	var victim common.RID
	for rid := range inserted {
		victim = rid
		break
	}
	marked, err := heap.MarkDelete(txn, victim)
	require.NoError(t, err)
	require.True(t, marked)
	delete(inserted, victim)

	it := heap.Iterator(txn)
	seen := 0
	for {
		data, rid, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}

		expected, present := inserted[rid]
		require.True(t, present)
		assert.Equal(t, expected, data)
		seen++
	}

	assert.Equal(t, len(inserted), seen)
}
