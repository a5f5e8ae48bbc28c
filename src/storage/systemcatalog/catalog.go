package systemcatalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/relstore/relstore/src/bufferpool"
	"github.com/relstore/relstore/src/storage"
	"github.com/relstore/relstore/src/storage/index"
	"github.com/relstore/relstore/src/storage/table"
	"github.com/relstore/relstore/src/txns"
)

var (
	ErrTableExists   = errors.New("table already exists")
	ErrIndexExists   = errors.New("index already exists")
	ErrNoSuchTable   = errors.New("no such table")
	ErrNoSuchColumn  = errors.New("no such column")
	ErrNoSuchTableID = errors.New("no table with this oid")
)

type TableInfo struct {
	OID    uint32
	Name   string
	Schema storage.Schema
	Heap   *table.Heap
}

type IndexInfo struct {
	OID       uint32
	Name      string
	TableName string
	KeyAttrs  []int
	Index     *index.Index
}

// Catalog tracks tables and their secondary indexes. Each table is
// backed by its own heap growing through the shared buffer pool.
type Catalog struct {
	mu   sync.RWMutex
	pool bufferpool.BufferPool

	tables     map[uint32]*TableInfo
	tableNames map[string]uint32
	indexes    map[string][]*IndexInfo
	indexNames map[string]struct{}

	nextTableOID uint32
	nextIndexOID uint32
}

func New(pool bufferpool.BufferPool) *Catalog {
	return &Catalog{
		pool:       pool,
		tables:     make(map[uint32]*TableInfo),
		tableNames: make(map[string]uint32),
		indexes:    make(map[string][]*IndexInfo),
		indexNames: make(map[string]struct{}),
	}
}

func (c *Catalog) CreateTable(
	txn *txns.Transaction,
	name string,
	schema storage.Schema,
) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.tableNames[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	heap, err := table.NewHeap(c.pool)
	if err != nil {
		return nil, fmt.Errorf("failed to create heap for table %s: %w", name, err)
	}

	info := &TableInfo{
		OID:    c.nextTableOID,
		Name:   name,
		Schema: schema,
		Heap:   heap,
	}
	c.nextTableOID++

	c.tables[info.OID] = info
	c.tableNames[name] = info.OID

	return info, nil
}

func (c *Catalog) GetTable(oid uint32) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.tables[oid]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchTableID, oid)
	}

	return info, nil
}

func (c *Catalog) GetTableByName(name string) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	oid, ok := c.tableNames[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}

	return c.tables[oid], nil
}

// CreateIndex registers an index over the named key columns and
// backfills it from the table's current contents.
func (c *Catalog) CreateIndex(
	txn *txns.Transaction,
	indexName string,
	tableName string,
	keyColumns []string,
) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexNames[indexName]; ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexExists, indexName)
	}

	oid, ok := c.tableNames[tableName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, tableName)
	}
	tableInfo := c.tables[oid]

	keyAttrs := make([]int, 0, len(keyColumns))
	for _, col := range keyColumns {
		attr, ok := tableInfo.Schema.ColumnIndex(col)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrNoSuchColumn, tableName, col)
		}
		keyAttrs = append(keyAttrs, attr)
	}

	info := &IndexInfo{
		OID:       c.nextIndexOID,
		Name:      indexName,
		TableName: tableName,
		KeyAttrs:  keyAttrs,
		Index:     index.New(indexName, c.nextIndexOID, tableInfo.Schema, keyAttrs),
	}
	c.nextIndexOID++

	if err := c.backfillIndex(txn, tableInfo, info); err != nil {
		return nil, err
	}

	c.indexes[tableName] = append(c.indexes[tableName], info)
	c.indexNames[indexName] = struct{}{}

	return info, nil
}

func (c *Catalog) backfillIndex(
	txn *txns.Transaction,
	tableInfo *TableInfo,
	info *IndexInfo,
) error {
	it := tableInfo.Heap.Iterator(txn)
	for {
		data, rid, ok, err := it.Next()
		if err != nil {
			return fmt.Errorf("failed to backfill index %s: %w", info.Name, err)
		}
		if !ok {
			return nil
		}

		key, err := info.Index.KeyFromTuple(data)
		if err != nil {
			return fmt.Errorf("failed to backfill index %s: %w", info.Name, err)
		}

		if err := info.Index.InsertEntry(key, rid, txn); err != nil {
			return err
		}
	}
}

// GetTableIndexes returns the indexes over the named table; the slice
// is empty for an unknown table, matching a table with no indexes.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.indexes[tableName]
}
