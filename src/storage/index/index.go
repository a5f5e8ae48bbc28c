package index

import (
	"bytes"
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/relstore/relstore/src/pkg/common"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/txns"
)

// Index is an ordered secondary index over serialized key bytes. It is
// the in-memory stand-in for a disk-resident B+Tree: same entry
// semantics, none of the paging.
type Index struct {
	name        string
	oid         uint32
	tableSchema storage.Schema
	keyAttrs    []int

	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
}

var _ txns.WriteIndex = &Index{}

type entry struct {
	key []byte
	rid common.RID
}

func lessEntry(a, b entry) bool {
	if c := bytes.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	if a.rid.PageID != b.rid.PageID {
		return a.rid.PageID < b.rid.PageID
	}

	return a.rid.SlotNum < b.rid.SlotNum
}

func New(name string, oid uint32, tableSchema storage.Schema, keyAttrs []int) *Index {
	return &Index{
		name:        name,
		oid:         oid,
		tableSchema: tableSchema,
		keyAttrs:    keyAttrs,
		tree:        btree.NewG(32, lessEntry),
	}
}

func (i *Index) Name() string {
	return i.name
}

func (i *Index) OID() uint32 {
	return i.oid
}

// GetKeyAttrs returns the table column positions the key is built from.
func (i *Index) GetKeyAttrs() []int {
	return i.keyAttrs
}

// KeyFromTuple derives the index key from a serialized table tuple.
func (i *Index) KeyFromTuple(tupleData []byte) ([]byte, error) {
	t, err := storage.UnmarshalTuple(i.tableSchema, tupleData)
	if err != nil {
		return nil, err
	}

	return t.KeyBytes(i.tableSchema, i.keyAttrs)
}

func (i *Index) InsertEntry(key []byte, rid common.RID, txn *txns.Transaction) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.tree.ReplaceOrInsert(entry{key: bytes.Clone(key), rid: rid})

	return nil
}

func (i *Index) DeleteEntry(key []byte, rid common.RID, txn *txns.Transaction) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.tree.Delete(entry{key: key, rid: rid})

	return nil
}

// ScanKey returns every RID stored under the key.
func (i *Index) ScanKey(key []byte, txn *txns.Transaction) []common.RID {
	i.mu.RLock()
	defer i.mu.RUnlock()

	pivot := entry{key: key, rid: common.RID{PageID: math.MinInt64}}

	var rids []common.RID
	i.tree.AscendGreaterOrEqual(pivot, func(e entry) bool {
		if !bytes.Equal(e.key, key) {
			return false
		}

		rids = append(rids, e.rid)

		return true
	})

	return rids
}
