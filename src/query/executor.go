package query

import (
	"errors"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/storage/systemcatalog"
	"github.com/relstore/relstore/src/txns"
)

// ErrTransactionAborted signals that the executor's transaction was
// aborted while acquiring a lock; the caller should roll back through
// the transaction manager.
var ErrTransactionAborted = errors.New("transaction aborted")

// Executor is the iterator-model operator: Init prepares the operator
// and its child, Next produces one row at a time until it reports
// false.
type Executor interface {
	Init() error
	Next(tuple *storage.Tuple, rid *common.RID) (bool, error)
	OutputSchema() storage.Schema
}

// ExecutorContext carries the per-query collaborators every executor
// needs: the transaction, the catalog and the lock manager.
type ExecutorContext struct {
	Txn     *txns.Transaction
	Catalog *systemcatalog.Catalog
	LockMgr *txns.LockManager
	TxnMgr  *txns.Manager
}

func NewExecutorContext(
	txn *txns.Transaction,
	catalog *systemcatalog.Catalog,
	lockMgr *txns.LockManager,
	txnMgr *txns.Manager,
) *ExecutorContext {
	return &ExecutorContext{
		Txn:     txn,
		Catalog: catalog,
		LockMgr: lockMgr,
		TxnMgr:  txnMgr,
	}
}
