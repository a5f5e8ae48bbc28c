package txns

import (
	"github.com/relstore/relstore/src/pkg/common"
)

type TxnState int

const (
	TxnGrowing TxnState = iota
	TxnShrinking
	TxnCommitted
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnGrowing:
		return "GROWING"
	case TxnShrinking:
		return "SHRINKING"
	case TxnCommitted:
		return "COMMITTED"
	case TxnAborted:
		return "ABORTED"
	}

	return "UNKNOWN"
}

type IsolationLevel int

const (
	ReadUncommitted IsolationLevel = iota
	ReadCommitted
	RepeatableRead
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadUncommitted:
		return "READ_UNCOMMITTED"
	case ReadCommitted:
		return "READ_COMMITTED"
	case RepeatableRead:
		return "REPEATABLE_READ"
	}

	return "UNKNOWN"
}

type AbortReason int

const (
	AbortReasonDeadlock AbortReason = iota
	AbortReasonLockOnShrinking
	AbortReasonSharedOnReadUncommitted
	AbortReasonUpgradeConflict
)

func (r AbortReason) String() string {
	switch r {
	case AbortReasonDeadlock:
		return "DEADLOCK"
	case AbortReasonLockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case AbortReasonSharedOnReadUncommitted:
		return "LOCKSHARED_ON_READ_UNCOMMITTED"
	case AbortReasonUpgradeConflict:
		return "UPGRADE_CONFLICT"
	}

	return "UNKNOWN"
}

type LockMode int

const (
	LockModeShared LockMode = iota
	LockModeExclusive
)

type WriteType int

const (
	WriteInsert WriteType = iota
	WriteUpdate
	WriteDelete
)

// WriteHeap is the slice of the table heap the transaction manager
// needs to undo or finalize heap mutations.
type WriteHeap interface {
	UpdateTuple(txn *Transaction, rid common.RID, data []byte) (bool, error)
	ApplyDelete(txn *Transaction, rid common.RID) error
	RollbackDelete(txn *Transaction, rid common.RID) error
}

// WriteIndex is the slice of a secondary index needed for rollback.
// KeyFromTuple rebuilds the index key from a serialized tuple, so write
// records can carry tuple images instead of precomputed keys.
type WriteIndex interface {
	InsertEntry(key []byte, rid common.RID, txn *Transaction) error
	DeleteEntry(key []byte, rid common.RID, txn *Transaction) error
	KeyFromTuple(tupleData []byte) ([]byte, error)
}

// TableWriteRecord remembers one heap mutation for rollback. OldTuple
// is the previous image for updates, nil otherwise.
type TableWriteRecord struct {
	RID      common.RID
	Type     WriteType
	OldTuple []byte
	Heap     WriteHeap
}

// IndexWriteRecord remembers one index mutation: the tuple images are
// kept so the entry can be re-derived and reversed on abort.
type IndexWriteRecord struct {
	RID      common.RID
	TableOID uint32
	Type     WriteType
	NewTuple []byte
	OldTuple []byte
	IndexOID uint32
	Index    WriteIndex
}
