package query

import (
	"fmt"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/storage/systemcatalog"
	"github.com/relstore/relstore/src/txns"
)

// UpdateExecutor rewrites the rows its child emits. Before touching a
// row it climbs the lock ladder: upgrade a held shared lock, reuse a
// held exclusive one, otherwise acquire exclusive.
type UpdateExecutor struct {
	ctx   *ExecutorContext
	plan  *UpdatePlan
	child Executor

	tableInfo *systemcatalog.TableInfo
	indexes   []*systemcatalog.IndexInfo
}

var _ Executor = &UpdateExecutor{}

func NewUpdateExecutor(ctx *ExecutorContext, plan *UpdatePlan, child Executor) *UpdateExecutor {
	return &UpdateExecutor{ctx: ctx, plan: plan, child: child}
}

func (e *UpdateExecutor) Init() error {
	if err := e.child.Init(); err != nil {
		return err
	}

	tableInfo, err := e.ctx.Catalog.GetTable(e.plan.TableOID)
	if err != nil {
		return fmt.Errorf("update init: %w", err)
	}

	e.tableInfo = tableInfo
	e.indexes = e.ctx.Catalog.GetTableIndexes(tableInfo.Name)

	return nil
}

func (e *UpdateExecutor) OutputSchema() storage.Schema {
	return e.tableInfo.Schema
}

func (e *UpdateExecutor) Next(tuple *storage.Tuple, rid *common.RID) (bool, error) {
	txn := e.ctx.Txn

	var (
		dummy   storage.Tuple
		emitRID common.RID
	)
	ok, err := e.child.Next(&dummy, &emitRID)
	if err != nil || !ok {
		return false, err
	}

	oldData, err := e.tableInfo.Heap.GetTuple(txn, emitRID)
	if err != nil {
		return false, fmt.Errorf("update of %v: %w", emitRID, err)
	}

	oldTuple, err := storage.UnmarshalTuple(e.tableInfo.Schema, oldData)
	if err != nil {
		return false, fmt.Errorf("update of %v: %w", emitRID, err)
	}

	newTuple, err := e.generateUpdatedTuple(oldTuple)
	if err != nil {
		return false, fmt.Errorf("update of %v: %w", emitRID, err)
	}

	if txn.IsSharedLocked(emitRID) {
		if !e.ctx.LockMgr.LockUpgrade(txn, emitRID) {
			return false, ErrTransactionAborted
		}
	} else if !txn.IsExclusiveLocked(emitRID) {
		if !e.ctx.LockMgr.LockExclusive(txn, emitRID) {
			return false, ErrTransactionAborted
		}
	}

	newData, err := newTuple.Marshal(e.tableInfo.Schema)
	if err != nil {
		return false, fmt.Errorf("update of %v: %w", emitRID, err)
	}

	updated, err := e.tableInfo.Heap.UpdateTuple(txn, emitRID, newData)
	if err != nil {
		return false, fmt.Errorf("update of %v: %w", emitRID, err)
	}
	if !updated {
		return false, nil
	}

	for _, idx := range e.indexes {
		oldKey, err := oldTuple.KeyBytes(e.tableInfo.Schema, idx.KeyAttrs)
		if err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}
		newKey, err := newTuple.KeyBytes(e.tableInfo.Schema, idx.KeyAttrs)
		if err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}

		if err := idx.Index.DeleteEntry(oldKey, emitRID, txn); err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}
		if err := idx.Index.InsertEntry(newKey, emitRID, txn); err != nil {
			return false, fmt.Errorf("index %s maintenance: %w", idx.Name, err)
		}

		txn.AppendIndexWrite(txns.IndexWriteRecord{
			RID:      emitRID,
			TableOID: e.tableInfo.OID,
			Type:     txns.WriteUpdate,
			NewTuple: newData,
			OldTuple: oldData,
			IndexOID: idx.OID,
			Index:    idx.Index,
		})
	}

	if tuple != nil {
		*tuple = newTuple
	}
	*rid = emitRID

	return true, nil
}

// generateUpdatedTuple applies the plan's per-column changes, copying
// untouched values through.
func (e *UpdateExecutor) generateUpdatedTuple(src storage.Tuple) (storage.Tuple, error) {
	schema := e.tableInfo.Schema
	values := make([]any, len(schema.Columns))

	for i := range schema.Columns {
		info, ok := e.plan.UpdateAttrs[i]
		if !ok {
			values[i] = src.Values[i]
			continue
		}

		updated, err := applyUpdate(schema.Columns[i], src.Values[i], info)
		if err != nil {
			return storage.Tuple{}, err
		}

		values[i] = updated
	}

	return storage.Tuple{Values: values}, nil
}

func applyUpdate(col storage.Column, old any, info UpdateInfo) (any, error) {
	switch col.Type {
	case storage.ColumnTypeInt64:
		if info.Type == UpdateAdd {
			return old.(int64) + info.Value, nil
		}

		return info.Value, nil

	case storage.ColumnTypeUint64:
		if info.Type == UpdateAdd {
			return old.(uint64) + uint64(info.Value), nil
		}

		return uint64(info.Value), nil
	}

	return nil, fmt.Errorf("column %q: updates require an integer column", col.Name)
}
