package txns

import (
	"sync"

	"github.com/relstore/relstore/src/pkg/common"
)

// Transaction carries per-transaction state: identity, isolation
// level, lifecycle state, the lock sets and the write sets used for
// rollback. All fields except state are touched only by the owning
// goroutine; state may additionally be flipped to aborted by the cycle
// detector, so it sits behind its own mutex.
type Transaction struct {
	id        common.TxnID
	isolation IsolationLevel

	stateMu sync.RWMutex
	state   TxnState

	sharedLockSet    map[common.RID]struct{}
	exclusiveLockSet map[common.RID]struct{}

	tableWriteSet []TableWriteRecord
	indexWriteSet []IndexWriteRecord
}

func newTransaction(id common.TxnID, isolation IsolationLevel) *Transaction {
	return &Transaction{
		id:               id,
		isolation:        isolation,
		state:            TxnGrowing,
		sharedLockSet:    make(map[common.RID]struct{}),
		exclusiveLockSet: make(map[common.RID]struct{}),
	}
}

func (t *Transaction) ID() common.TxnID {
	return t.id
}

func (t *Transaction) Isolation() IsolationLevel {
	return t.isolation
}

func (t *Transaction) State() TxnState {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()

	return t.state
}

func (t *Transaction) SetState(s TxnState) {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()

	t.state = s
}

func (t *Transaction) IsSharedLocked(rid common.RID) bool {
	_, ok := t.sharedLockSet[rid]
	return ok
}

func (t *Transaction) IsExclusiveLocked(rid common.RID) bool {
	_, ok := t.exclusiveLockSet[rid]
	return ok
}

// LockedRIDs returns a snapshot of every RID the transaction holds in
// either mode.
func (t *Transaction) LockedRIDs() []common.RID {
	rids := make([]common.RID, 0, len(t.sharedLockSet)+len(t.exclusiveLockSet))
	for rid := range t.sharedLockSet {
		rids = append(rids, rid)
	}
	for rid := range t.exclusiveLockSet {
		rids = append(rids, rid)
	}

	return rids
}

func (t *Transaction) addSharedLock(rid common.RID) {
	t.sharedLockSet[rid] = struct{}{}
}

func (t *Transaction) addExclusiveLock(rid common.RID) {
	t.exclusiveLockSet[rid] = struct{}{}
}

func (t *Transaction) removeLock(rid common.RID) {
	delete(t.sharedLockSet, rid)
	delete(t.exclusiveLockSet, rid)
}

func (t *Transaction) AppendTableWrite(rec TableWriteRecord) {
	t.tableWriteSet = append(t.tableWriteSet, rec)
}

func (t *Transaction) AppendIndexWrite(rec IndexWriteRecord) {
	t.indexWriteSet = append(t.indexWriteSet, rec)
}

func (t *Transaction) TableWriteSet() []TableWriteRecord {
	return t.tableWriteSet
}

func (t *Transaction) IndexWriteSet() []IndexWriteRecord {
	return t.indexWriteSet
}
