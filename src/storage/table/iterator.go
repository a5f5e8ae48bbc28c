package table

import (
	"fmt"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/txns"
)

// Iterator sweeps the heap page chain in slot order, skipping
// tombstoned and freed slots.
type Iterator struct {
	heap *Heap
	txn  *txns.Transaction

	pageID common.PageID
	slot   uint16
}

func (h *Heap) Iterator(txn *txns.Transaction) *Iterator {
	return &Iterator{
		heap:   h,
		txn:    txn,
		pageID: h.firstPageID,
	}
}

// Next returns the next live tuple's bytes and RID. ok is false at the
// end of the heap.
func (it *Iterator) Next() (data []byte, rid common.RID, ok bool, err error) {
	for it.pageID != common.InvalidPageID {
		frame, err := it.heap.pool.FetchPage(it.pageID)
		if err != nil {
			return nil, common.RID{}, false, fmt.Errorf(
				"failed to fetch heap page %d: %w", it.pageID, err,
			)
		}

		frame.RLock()
		page := tablePage{data: frame.Data()}

		for ; it.slot < page.slotCount(); it.slot++ {
			tuple, live := page.getTuple(it.slot)
			if !live {
				continue
			}

			out := make([]byte, len(tuple))
			copy(out, tuple)
			rid := common.RID{PageID: it.pageID, SlotNum: it.slot}

			frame.RUnlock()
			it.heap.pool.UnpinPage(it.pageID, false)
			it.slot++

			return out, rid, true, nil
		}

		next := page.next()
		frame.RUnlock()
		it.heap.pool.UnpinPage(it.pageID, false)

		it.pageID = next
		it.slot = 0
	}

	return nil, common.RID{}, false, nil
}
