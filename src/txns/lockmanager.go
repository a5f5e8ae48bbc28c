package txns

import (
	"sync"
	"time"

	"github.com/relstore/relstore/src"
	"github.com/relstore/relstore/src/pkg/common"
)

type lockRequest struct {
	txnID   common.TxnID
	mode    LockMode
	granted bool
}

// lockRequestQueue is the per-RID FIFO of lock requests. The mutex
// guards the queue contents; waiters block on the condition variable
// and re-check compatibility after every broadcast.
type lockRequestQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	requests []*lockRequest

	// txn currently upgrading its shared grant, if any
	upgrading common.TxnID
}

func newLockRequestQueue() *lockRequestQueue {
	q := &lockRequestQueue{upgrading: common.InvalidTxnID}
	q.cond = sync.NewCond(&q.mu)

	return q
}

// find returns the transaction's request, or nil. Caller holds q.mu.
func (q *lockRequestQueue) find(txnID common.TxnID) *lockRequest {
	for _, r := range q.requests {
		if r.txnID == txnID {
			return r
		}
	}

	return nil
}

// remove drops the transaction's request, reporting whether one was
// present. Caller holds q.mu.
func (q *lockRequestQueue) remove(txnID common.TxnID) bool {
	for i, r := range q.requests {
		if r.txnID == txnID {
			q.requests = append(q.requests[:i], q.requests[i+1:]...)
			return true
		}
	}

	return false
}

// isLockCompatible reports whether the request may be granted: scanning
// from the head, every request ahead of it must already be granted and
// be mode-compatible. The scan stops at the request itself, so FIFO
// order decides who wins and an earlier waiting writer blocks later
// readers.
func isLockCompatible(requests []*lockRequest, toCheck *lockRequest) bool {
	for _, r := range requests {
		if r.txnID == toCheck.txnID {
			return true
		}

		compatible := r.granted &&
			r.mode != LockModeExclusive &&
			toCheck.mode != LockModeExclusive
		if !compatible {
			return false
		}
	}

	return true
}

// isUpgradeCompatible reports whether an upgrading request may take
// the exclusive grant: no other request in the queue may be granted,
// wherever the upgrader sits. Ungranted waiters do not block it; the
// upgrader goes first.
func isUpgradeCompatible(requests []*lockRequest, toCheck *lockRequest) bool {
	for _, r := range requests {
		if r != toCheck && r.granted {
			return false
		}
	}

	return true
}

// txnRegistry resolves txn ids to transactions; queues deliberately
// store ids only, so the registry breaks the queue-transaction cycle.
type txnRegistry interface {
	GetTransaction(id common.TxnID) *Transaction
}

// LockManager coordinates strict two-phase locking over RIDs. A coarse
// latch guards the lock table and the waits-for graph; each queue has
// its own latch and condition variable. Latch order is always manager
// then queue, and waits happen only on a queue's condition variable
// with the manager latch released.
type LockManager struct {
	mu        sync.Mutex
	lockTable map[common.RID]*lockRequestQueue
	waitsFor  map[common.TxnID][]common.TxnID

	registry txnRegistry
	log      src.Logger

	interval  time.Duration
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLockManager builds a lock manager and, for a positive interval,
// launches the background cycle detector.
func NewLockManager(log src.Logger, detectionInterval time.Duration) *LockManager {
	lm := &LockManager{
		lockTable: make(map[common.RID]*lockRequestQueue),
		waitsFor:  make(map[common.TxnID][]common.TxnID),
		log:       log,
		interval:  detectionInterval,
		done:      make(chan struct{}),
	}

	if detectionInterval > 0 {
		lm.wg.Add(1)
		go lm.runCycleDetection()
		lm.log.Infof("cycle detection started, interval %s", detectionInterval)
	}

	return lm
}

// Close signals the detector goroutine and waits for it to exit.
func (lm *LockManager) Close() {
	lm.closeOnce.Do(func() {
		close(lm.done)
	})
	lm.wg.Wait()
}

func (lm *LockManager) attachRegistry(r txnRegistry) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	lm.registry = r
}

func (lm *LockManager) getQueue(rid common.RID) *lockRequestQueue {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	q, ok := lm.lockTable[rid]
	if !ok {
		q = newLockRequestQueue()
		lm.lockTable[rid] = q
	}

	return q
}

// abortImplicitly marks the transaction aborted for a protocol
// violation. The caller returns false to its caller; the transaction
// layer is expected to run rollback.
func (lm *LockManager) abortImplicitly(txn *Transaction, reason AbortReason) {
	txn.SetState(TxnAborted)
	lm.log.Infof("transaction %d aborted: %s", txn.ID(), reason)
}

// LockShared blocks until the transaction holds a shared lock on the
// RID, or returns false if the transaction aborts or violates 2PL.
func (lm *LockManager) LockShared(txn *Transaction, rid common.RID) bool {
	if txn.State() == TxnAborted {
		return false
	}
	if txn.State() == TxnShrinking {
		lm.abortImplicitly(txn, AbortReasonLockOnShrinking)
		return false
	}
	if txn.Isolation() == ReadUncommitted {
		lm.abortImplicitly(txn, AbortReasonSharedOnReadUncommitted)
		return false
	}

	q := lm.getQueue(rid)

	q.mu.Lock()
	req := &lockRequest{txnID: txn.ID(), mode: LockModeShared}
	q.requests = append(q.requests, req)

	for !isLockCompatible(q.requests, req) && txn.State() != TxnAborted {
		q.cond.Wait()
	}

	if txn.State() == TxnAborted {
		q.remove(txn.ID())
		q.cond.Broadcast()
		q.mu.Unlock()

		return false
	}

	req.granted = true
	q.mu.Unlock()

	txn.addSharedLock(rid)

	return true
}

// LockExclusive blocks until the transaction holds an exclusive lock on
// the RID, or returns false if the transaction aborts or violates 2PL.
func (lm *LockManager) LockExclusive(txn *Transaction, rid common.RID) bool {
	if txn.State() == TxnAborted {
		return false
	}
	if txn.State() == TxnShrinking {
		lm.abortImplicitly(txn, AbortReasonLockOnShrinking)
		return false
	}

	q := lm.getQueue(rid)

	q.mu.Lock()
	req := &lockRequest{txnID: txn.ID(), mode: LockModeExclusive}
	q.requests = append(q.requests, req)

	for !isLockCompatible(q.requests, req) && txn.State() != TxnAborted {
		q.cond.Wait()
	}

	if txn.State() == TxnAborted {
		q.remove(txn.ID())
		q.cond.Broadcast()
		q.mu.Unlock()

		return false
	}

	req.granted = true
	q.mu.Unlock()

	txn.addExclusiveLock(rid)

	return true
}

// LockUpgrade converts the transaction's shared grant into an exclusive
// one. At most one transaction may be upgrading per queue; a second one
// aborts with an upgrade conflict.
func (lm *LockManager) LockUpgrade(txn *Transaction, rid common.RID) bool {
	if txn.State() == TxnAborted {
		return false
	}

	q := lm.getQueue(rid)

	q.mu.Lock()
	if q.upgrading != common.InvalidTxnID {
		q.mu.Unlock()
		lm.abortImplicitly(txn, AbortReasonUpgradeConflict)

		return false
	}

	req := q.find(txn.ID())
	if req == nil || !req.granted || req.mode != LockModeShared {
		q.mu.Unlock()
		return false
	}

	req.granted = false
	req.mode = LockModeExclusive
	q.upgrading = txn.ID()

	for !isUpgradeCompatible(q.requests, req) && txn.State() != TxnAborted {
		q.cond.Wait()
	}

	q.upgrading = common.InvalidTxnID

	if txn.State() == TxnAborted {
		q.remove(txn.ID())
		q.cond.Broadcast()
		q.mu.Unlock()

		return false
	}

	req.granted = true
	q.mu.Unlock()

	txn.removeLock(rid)
	txn.addExclusiveLock(rid)

	return true
}

// Unlock releases the transaction's lock on the RID and wakes the
// queue. The first unlock of a REPEATABLE_READ transaction moves it
// into the shrinking phase; READ_COMMITTED may release shared locks
// while still growing.
func (lm *LockManager) Unlock(txn *Transaction, rid common.RID) bool {
	lm.mu.Lock()
	q, ok := lm.lockTable[rid]
	lm.mu.Unlock()

	if !ok {
		return false
	}

	q.mu.Lock()
	removed := q.remove(txn.ID())
	q.cond.Broadcast()
	q.mu.Unlock()

	if !removed {
		return false
	}

	if txn.State() == TxnGrowing && txn.Isolation() == RepeatableRead {
		txn.SetState(TxnShrinking)
	}

	txn.removeLock(rid)

	return true
}
