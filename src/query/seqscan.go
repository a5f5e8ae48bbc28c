package query

import (
	"fmt"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/storage/systemcatalog"
	"github.com/relstore/relstore/src/storage/table"
	"github.com/relstore/relstore/src/txns"
)

// SeqScanExecutor sweeps a table heap. Rows are read under a shared
// lock as the isolation level demands: READ_UNCOMMITTED takes none,
// READ_COMMITTED releases the lock right after the read, and
// REPEATABLE_READ keeps it until the transaction finishes.
type SeqScanExecutor struct {
	ctx  *ExecutorContext
	plan *SeqScanPlan

	tableInfo *systemcatalog.TableInfo
	iter      *table.Iterator
}

var _ Executor = &SeqScanExecutor{}

func NewSeqScanExecutor(ctx *ExecutorContext, plan *SeqScanPlan) *SeqScanExecutor {
	return &SeqScanExecutor{ctx: ctx, plan: plan}
}

func (e *SeqScanExecutor) Init() error {
	tableInfo, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return fmt.Errorf("seq scan init: %w", err)
	}

	e.tableInfo = tableInfo
	e.iter = tableInfo.Heap.Iterator(e.ctx.Txn)

	return nil
}

func (e *SeqScanExecutor) OutputSchema() storage.Schema {
	return e.tableInfo.Schema
}

func (e *SeqScanExecutor) Next(tuple *storage.Tuple, rid *common.RID) (bool, error) {
	txn := e.ctx.Txn

	for {
		data, r, ok, err := e.iter.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		locked := false
		if txn.Isolation() != txns.ReadUncommitted &&
			!txn.IsSharedLocked(r) && !txn.IsExclusiveLocked(r) {
			if !e.ctx.LockMgr.LockShared(txn, r) {
				return false, ErrTransactionAborted
			}
			locked = true
		}

		t, err := storage.UnmarshalTuple(e.tableInfo.Schema, data)

		if locked && txn.Isolation() == txns.ReadCommitted {
			e.ctx.LockMgr.Unlock(txn, r)
		}

		if err != nil {
			return false, fmt.Errorf("seq scan of %v: %w", r, err)
		}

		if e.plan.Predicate != nil && !e.plan.Predicate(&t) {
			continue
		}

		*tuple = t
		*rid = r

		return true, nil
	}
}
