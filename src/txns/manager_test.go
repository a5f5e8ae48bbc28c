package txns_test

import (
	"sync/atomic"
	"testing"

	"github.com/panjf2000/ants"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relstore/relstore/src/bufferpool"
	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage/disk"
	"github.com/relstore/relstore/src/storage/table"
	"github.com/relstore/relstore/src/txns"
)

func newTestEngine(t *testing.T) (*table.Heap, *txns.LockManager, *txns.Manager) {
	t.Helper()

	diskMgr, err := disk.New(afero.NewMemMapFs(), "relstore.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = diskMgr.Close() })

	pool := bufferpool.New(16, bufferpool.NewLRUReplacer(), diskMgr)

	heap, err := table.NewHeap(pool)
	require.NoError(t, err)

	lm := txns.NewLockManager(zap.NewNop().Sugar(), 0)
	t.Cleanup(lm.Close)

	return heap, lm, txns.NewManager(lm)
}

func TestBeginAssignsIncreasingIDs(t *testing.T) {
	_, _, tm := newTestEngine(t)

	a := tm.Begin(txns.RepeatableRead)
	b := tm.Begin(txns.ReadCommitted)

	assert.Less(t, a.ID(), b.ID())
	assert.Equal(t, txns.TxnGrowing, a.State())
	assert.Equal(t, txns.ReadCommitted, b.Isolation())

	assert.Same(t, a, tm.GetTransaction(a.ID()))
}

func TestCommitAppliesDeletes(t *testing.T) {
	heap, _, tm := newTestEngine(t)

	setup := tm.Begin(txns.RepeatableRead)
	rid, err := heap.InsertTuple(setup, []byte("to be deleted"))
	require.NoError(t, err)
	require.NoError(t, tm.Commit(setup))

	deleter := tm.Begin(txns.RepeatableRead)
	marked, err := heap.MarkDelete(deleter, rid)
	require.NoError(t, err)
	require.True(t, marked)
	require.NoError(t, tm.Commit(deleter))

	reader := tm.Begin(txns.RepeatableRead)
	_, err = heap.GetTuple(reader, rid)
	assert.ErrorIs(t, err, table.ErrTupleNotFound)
}

func TestAbortUndoesInsert(t *testing.T) {
	heap, _, tm := newTestEngine(t)

	txn := tm.Begin(txns.RepeatableRead)
	rid, err := heap.InsertTuple(txn, []byte("phantom"))
	require.NoError(t, err)
	require.NoError(t, tm.Abort(txn))

	reader := tm.Begin(txns.RepeatableRead)
	_, err = heap.GetTuple(reader, rid)
	assert.ErrorIs(t, err, table.ErrTupleNotFound)
}

func TestAbortRestoresUpdatedTuple(t *testing.T) {
	heap, _, tm := newTestEngine(t)

	setup := tm.Begin(txns.RepeatableRead)
	rid, err := heap.InsertTuple(setup, []byte("original"))
	require.NoError(t, err)
	require.NoError(t, tm.Commit(setup))

	updater := tm.Begin(txns.RepeatableRead)
	updated, err := heap.UpdateTuple(updater, rid, []byte("replaced"))
	require.NoError(t, err)
	require.True(t, updated)
	require.NoError(t, tm.Abort(updater))

	reader := tm.Begin(txns.RepeatableRead)
	data, err := heap.GetTuple(reader, rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)
}

func TestAbortRestoresMarkedDelete(t *testing.T) {
	heap, _, tm := newTestEngine(t)

	setup := tm.Begin(txns.RepeatableRead)
	rid, err := heap.InsertTuple(setup, []byte("kept"))
	require.NoError(t, err)
	require.NoError(t, tm.Commit(setup))

	deleter := tm.Begin(txns.RepeatableRead)
	marked, err := heap.MarkDelete(deleter, rid)
	require.NoError(t, err)
	require.True(t, marked)
	require.NoError(t, tm.Abort(deleter))

	reader := tm.Begin(txns.RepeatableRead)
	data, err := heap.GetTuple(reader, rid)
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), data)
}

func TestCommitReleasesLocks(t *testing.T) {
	_, lm, tm := newTestEngine(t)

	rid := common.RID{PageID: 4, SlotNum: 2}

	a := tm.Begin(txns.RepeatableRead)
	require.True(t, lm.LockExclusive(a, rid))
	require.NoError(t, tm.Commit(a))

	b := tm.Begin(txns.RepeatableRead)
	assert.True(t, lm.LockExclusive(b, rid))
}

// Exclusive locks serialize concurrent read-modify-write transactions:
// the counter driven by a worker pool agrees with the number of
// successful writers, so no update is lost.
func TestConcurrentWritersStress(t *testing.T) {
	heap, lm, tm := newTestEngine(t)

	setup := tm.Begin(txns.RepeatableRead)
	rid, err := heap.InsertTuple(setup, []byte{0})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(setup))

	const workers = 64

	pool, err := ants.NewPool(8)
	require.NoError(t, err)
	defer pool.Release()

	var succeeded atomic.Int64
	var g errgroup.Group

	for range workers {
		g.Go(func() error {
			done := make(chan struct{})

			var taskErr error
			submitErr := pool.Submit(func() {
				defer close(done)

				txn := tm.Begin(txns.RepeatableRead)
				if !lm.LockExclusive(txn, rid) {
					taskErr = tm.Abort(txn)
					return
				}

				data, err := heap.GetTuple(txn, rid)
				if err != nil {
					taskErr = tm.Abort(txn)
					return
				}

				data[0]++
				if _, err := heap.UpdateTuple(txn, rid, data); err != nil {
					taskErr = tm.Abort(txn)
					return
				}

				if err := tm.Commit(txn); err != nil {
					taskErr = err
					return
				}
				succeeded.Add(1)
			})
			if submitErr != nil {
				close(done)
				return submitErr
			}

			<-done
			return taskErr
		})
	}

	require.NoError(t, g.Wait())

	reader := tm.Begin(txns.RepeatableRead)
	data, err := heap.GetTuple(reader, rid)
	require.NoError(t, err)
	assert.Equal(t, byte(succeeded.Load()), data[0])
	assert.Equal(t, int64(workers), succeeded.Load())
}
