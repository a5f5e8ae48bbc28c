package query

import (
	"fmt"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/storage/systemcatalog"
	"github.com/relstore/relstore/src/txns"
)

// InsertExecutor appends tuples to the target table, locks each new
// RID exclusively and maintains every secondary index. A nil child
// means a raw insert of the plan's literal rows.
type InsertExecutor struct {
	ctx   *ExecutorContext
	plan  *InsertPlan
	child Executor

	tableInfo *systemcatalog.TableInfo
	indexes   []*systemcatalog.IndexInfo
	cursor    int
}

var _ Executor = &InsertExecutor{}

func NewInsertExecutor(ctx *ExecutorContext, plan *InsertPlan, child Executor) *InsertExecutor {
	return &InsertExecutor{ctx: ctx, plan: plan, child: child}
}

func (e *InsertExecutor) Init() error {
	if e.child != nil {
		if err := e.child.Init(); err != nil {
			return err
		}
	}

	tableInfo, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return fmt.Errorf("insert init: %w", err)
	}

	e.tableInfo = tableInfo
	e.indexes = e.ctx.Catalog.GetTableIndexes(tableInfo.Name)

	return nil
}

func (e *InsertExecutor) OutputSchema() storage.Schema {
	return e.tableInfo.Schema
}

func (e *InsertExecutor) Next(tuple *storage.Tuple, rid *common.RID) (bool, error) {
	txn := e.ctx.Txn

	var toInsert storage.Tuple
	if e.child == nil {
		if e.cursor >= len(e.plan.RawValues) {
			return false, nil
		}
		toInsert = e.plan.RawValues[e.cursor]
		e.cursor++
	} else {
		var childRID common.RID
		ok, err := e.child.Next(&toInsert, &childRID)
		if err != nil || !ok {
			return false, err
		}
	}

	data, err := toInsert.Marshal(e.tableInfo.Schema)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", e.tableInfo.Name, err)
	}

	newRID, err := e.tableInfo.Heap.InsertTuple(txn, data)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", e.tableInfo.Name, err)
	}

	// A fresh RID cannot conflict, but 2PL wants the lock anyway.
	if !e.ctx.LockMgr.LockExclusive(txn, newRID) {
		return false, ErrTransactionAborted
	}

	for _, idx := range e.indexes {
		key, err := toInsert.KeyBytes(e.tableInfo.Schema, idx.KeyAttrs)
		if err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}

		if err := idx.Index.InsertEntry(key, newRID, txn); err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}

		txn.AppendIndexWrite(txns.IndexWriteRecord{
			RID:      newRID,
			TableOID: e.tableInfo.OID,
			Type:     txns.WriteInsert,
			NewTuple: data,
			IndexOID: idx.OID,
			Index:    idx.Index,
		})
	}

	if tuple != nil {
		*tuple = toInsert
	}
	*rid = newRID

	return true, nil
}
