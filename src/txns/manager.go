package txns

import (
	"fmt"
	"sync"

	"github.com/relstore/relstore/src/pkg/common"
)

// Manager owns the transaction registry and drives commit and abort.
// It is the process-scope singleton the cycle detector resolves victim
// ids through.
type Manager struct {
	mu         sync.Mutex
	nextTxnID  common.TxnID
	activeTxns map[common.TxnID]*Transaction

	lm *LockManager
}

func NewManager(lm *LockManager) *Manager {
	m := &Manager{
		activeTxns: make(map[common.TxnID]*Transaction),
		lm:         lm,
	}
	lm.attachRegistry(m)

	return m
}

func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn := newTransaction(m.nextTxnID, isolation)
	m.activeTxns[txn.id] = txn
	m.nextTxnID++

	return txn
}

func (m *Manager) GetTransaction(id common.TxnID) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeTxns[id]
}

// Commit finalizes marked deletes, commits the transaction and releases
// its locks.
func (m *Manager) Commit(txn *Transaction) error {
	for _, rec := range txn.TableWriteSet() {
		if rec.Type != WriteDelete {
			continue
		}

		if err := rec.Heap.ApplyDelete(txn, rec.RID); err != nil {
			return fmt.Errorf("failed to apply delete of %v: %w", rec.RID, err)
		}
	}

	txn.SetState(TxnCommitted)
	m.releaseLocks(txn)
	m.forget(txn)

	return nil
}

// Abort undoes the transaction's heap and index writes in reverse
// order, then releases its locks.
func (m *Manager) Abort(txn *Transaction) error {
	txn.SetState(TxnAborted)

	tableWrites := txn.TableWriteSet()
	for i := len(tableWrites) - 1; i >= 0; i-- {
		rec := tableWrites[i]

		var err error
		switch rec.Type {
		case WriteInsert:
			err = rec.Heap.ApplyDelete(txn, rec.RID)
		case WriteDelete:
			err = rec.Heap.RollbackDelete(txn, rec.RID)
		case WriteUpdate:
			_, err = rec.Heap.UpdateTuple(txn, rec.RID, rec.OldTuple)
		}

		if err != nil {
			return fmt.Errorf("failed to undo table write on %v: %w", rec.RID, err)
		}
	}

	indexWrites := txn.IndexWriteSet()
	for i := len(indexWrites) - 1; i >= 0; i-- {
		rec := indexWrites[i]

		if err := m.undoIndexWrite(txn, rec); err != nil {
			return err
		}
	}

	m.releaseLocks(txn)
	m.forget(txn)

	return nil
}

func (m *Manager) undoIndexWrite(txn *Transaction, rec IndexWriteRecord) error {
	switch rec.Type {
	case WriteInsert:
		key, err := rec.Index.KeyFromTuple(rec.NewTuple)
		if err != nil {
			return fmt.Errorf("failed to rebuild index key: %w", err)
		}

		return rec.Index.DeleteEntry(key, rec.RID, txn)

	case WriteDelete:
		key, err := rec.Index.KeyFromTuple(rec.OldTuple)
		if err != nil {
			return fmt.Errorf("failed to rebuild index key: %w", err)
		}

		return rec.Index.InsertEntry(key, rec.RID, txn)

	case WriteUpdate:
		newKey, err := rec.Index.KeyFromTuple(rec.NewTuple)
		if err != nil {
			return fmt.Errorf("failed to rebuild index key: %w", err)
		}
		if err := rec.Index.DeleteEntry(newKey, rec.RID, txn); err != nil {
			return err
		}

		oldKey, err := rec.Index.KeyFromTuple(rec.OldTuple)
		if err != nil {
			return fmt.Errorf("failed to rebuild index key: %w", err)
		}

		return rec.Index.InsertEntry(oldKey, rec.RID, txn)
	}

	return nil
}

func (m *Manager) releaseLocks(txn *Transaction) {
	for _, rid := range txn.LockedRIDs() {
		m.lm.Unlock(txn, rid)
	}
}

func (m *Manager) forget(txn *Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.activeTxns, txn.id)
}
