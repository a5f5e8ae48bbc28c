package table

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relstore/relstore/src/bufferpool"
	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/txns"
)

var (
	ErrTupleNotFound = errors.New("no tuple at this rid")
	ErrTupleTooLarge = errors.New("tuple does not fit on one page")
)

// Heap is a linked list of slotted pages obtained through the buffer
// pool. Mutations record themselves in the transaction's table write
// set so aborts can physically undo them.
type Heap struct {
	pool        bufferpool.BufferPool
	firstPageID common.PageID

	// serializes page-link extension during inserts
	mu sync.Mutex
}

var _ txns.WriteHeap = &Heap{}

// NewHeap allocates the first page of a fresh heap.
func NewHeap(pool bufferpool.BufferPool) (*Heap, error) {
	frame, err := pool.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate first heap page: %w", err)
	}

	frame.Lock()
	tablePage{data: frame.Data()}.init()
	frame.Unlock()

	firstPageID := frame.PageID()
	pool.UnpinPage(firstPageID, true)

	return &Heap{pool: pool, firstPageID: firstPageID}, nil
}

// OpenHeap attaches to an existing heap rooted at firstPageID.
func OpenHeap(pool bufferpool.BufferPool, firstPageID common.PageID) *Heap {
	return &Heap{pool: pool, firstPageID: firstPageID}
}

func (h *Heap) FirstPageID() common.PageID {
	return h.firstPageID
}

// InsertTuple places the serialized tuple on the first page with room,
// extending the page chain when every page is full. Returns the new
// tuple's RID.
func (h *Heap) InsertTuple(txn *txns.Transaction, data []byte) (common.RID, error) {
	if len(data) > maxTupleSize {
		return common.RID{}, ErrTupleTooLarge
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	pageID := h.firstPageID
	for {
		frame, err := h.pool.FetchPage(pageID)
		if err != nil {
			return common.RID{}, fmt.Errorf("failed to fetch heap page %d: %w", pageID, err)
		}

		frame.Lock()
		page := tablePage{data: frame.Data()}

		if slotOpt := page.insertTuple(data); slotOpt.IsSome() {
			rid := common.RID{PageID: pageID, SlotNum: slotOpt.Unwrap()}
			frame.Unlock()
			h.pool.UnpinPage(pageID, true)

			h.recordWrite(txn, txns.TableWriteRecord{
				RID:  rid,
				Type: txns.WriteInsert,
				Heap: h,
			})

			return rid, nil
		}

		next := page.next()
		if next != common.InvalidPageID {
			frame.Unlock()
			h.pool.UnpinPage(pageID, false)
			pageID = next

			continue
		}

		// Every page is full: extend the chain.
		newFrame, err := h.pool.NewPage()
		if err != nil {
			frame.Unlock()
			h.pool.UnpinPage(pageID, false)

			return common.RID{}, fmt.Errorf("failed to extend heap: %w", err)
		}

		newPageID := newFrame.PageID()

		newFrame.Lock()
		tablePage{data: newFrame.Data()}.init()
		newFrame.Unlock()

		page.setNext(newPageID)
		frame.Unlock()
		h.pool.UnpinPage(pageID, true)

		h.pool.UnpinPage(newPageID, true)
		pageID = newPageID
	}
}

// GetTuple copies the tuple's bytes out of the page.
func (h *Heap) GetTuple(txn *txns.Transaction, rid common.RID) ([]byte, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch heap page %d: %w", rid.PageID, err)
	}

	frame.RLock()
	data, ok := tablePage{data: frame.Data()}.getTuple(rid.SlotNum)

	var out []byte
	if ok {
		out = make([]byte, len(data))
		copy(out, data)
	}
	frame.RUnlock()

	h.pool.UnpinPage(rid.PageID, false)

	if !ok {
		return nil, ErrTupleNotFound
	}

	return out, nil
}

// UpdateTuple overwrites the tuple in place, remembering the previous
// image for rollback.
func (h *Heap) UpdateTuple(txn *txns.Transaction, rid common.RID, data []byte) (bool, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch heap page %d: %w", rid.PageID, err)
	}

	frame.Lock()
	page := tablePage{data: frame.Data()}

	var oldTuple []byte
	if old, ok := page.getTuple(rid.SlotNum); ok {
		oldTuple = make([]byte, len(old))
		copy(oldTuple, old)
	}

	updated := page.updateTuple(rid.SlotNum, data)
	frame.Unlock()

	h.pool.UnpinPage(rid.PageID, updated)

	if updated {
		h.recordWrite(txn, txns.TableWriteRecord{
			RID:      rid,
			Type:     txns.WriteUpdate,
			OldTuple: oldTuple,
			Heap:     h,
		})
	}

	return updated, nil
}

// MarkDelete tombstones the tuple; the delete becomes final on commit.
func (h *Heap) MarkDelete(txn *txns.Transaction, rid common.RID) (bool, error) {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch heap page %d: %w", rid.PageID, err)
	}

	frame.Lock()
	marked := tablePage{data: frame.Data()}.markDelete(rid.SlotNum)
	frame.Unlock()

	h.pool.UnpinPage(rid.PageID, marked)

	if marked {
		h.recordWrite(txn, txns.TableWriteRecord{
			RID:  rid,
			Type: txns.WriteDelete,
			Heap: h,
		})
	}

	return marked, nil
}

// ApplyDelete finalizes a delete (or erases an aborted insert).
func (h *Heap) ApplyDelete(txn *txns.Transaction, rid common.RID) error {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return fmt.Errorf("failed to fetch heap page %d: %w", rid.PageID, err)
	}

	frame.Lock()
	applied := tablePage{data: frame.Data()}.applyDelete(rid.SlotNum)
	frame.Unlock()

	h.pool.UnpinPage(rid.PageID, applied)

	if !applied {
		return ErrTupleNotFound
	}

	return nil
}

// RollbackDelete reverses a MarkDelete of an aborting transaction.
func (h *Heap) RollbackDelete(txn *txns.Transaction, rid common.RID) error {
	frame, err := h.pool.FetchPage(rid.PageID)
	if err != nil {
		return fmt.Errorf("failed to fetch heap page %d: %w", rid.PageID, err)
	}

	frame.Lock()
	restored := tablePage{data: frame.Data()}.rollbackDelete(rid.SlotNum)
	frame.Unlock()

	h.pool.UnpinPage(rid.PageID, restored)

	if !restored {
		return ErrTupleNotFound
	}

	return nil
}

// recordWrite appends to the write set unless the transaction is
// already rolling back, so undo operations do not log themselves.
func (h *Heap) recordWrite(txn *txns.Transaction, rec txns.TableWriteRecord) {
	if txn == nil || txn.State() == txns.TxnAborted {
		return
	}

	txn.AppendTableWrite(rec)
}
