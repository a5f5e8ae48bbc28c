package query

import (
	"github.com/relstore/relstore/src/storage"
)

type UpdateType int

const (
	UpdateSet UpdateType = iota
	UpdateAdd
)

// UpdateInfo describes the change to one column: overwrite it or add
// to it. Updates operate on integer columns.
type UpdateInfo struct {
	Type  UpdateType
	Value int64
}

// SeqScanPlan scans a table, optionally filtering rows.
type SeqScanPlan struct {
	TableOID  uint32
	Predicate func(*storage.Tuple) bool
}

// InsertPlan inserts either the inline literal rows (raw insert, no
// child) or whatever the child executor produces.
type InsertPlan struct {
	TableOID  uint32
	RawValues []storage.Tuple
}

// UpdatePlan rewrites the rows its child emits, one UpdateInfo per
// affected column position.
type UpdatePlan struct {
	TableOID    uint32
	UpdateAttrs map[int]UpdateInfo
}
