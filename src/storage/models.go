package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

type ColumnType string

const (
	ColumnTypeInt64   ColumnType = "int64"
	ColumnTypeUint64  ColumnType = "uint64"
	ColumnTypeFloat64 ColumnType = "float64"
	ColumnTypeUUID    ColumnType = "uuid" // 16 bytes
)

func (c ColumnType) Size() int {
	switch c {
	case ColumnTypeInt64, ColumnTypeUint64, ColumnTypeFloat64:
		return 8
	case ColumnTypeUUID:
		return 16
	}
	panic("unsupported column type: " + fmt.Sprintf("%#v", c))
}

type Column struct {
	Name string
	Type ColumnType
}

type Schema struct {
	Columns []Column
}

func NewSchema(columns ...Column) Schema {
	return Schema{Columns: columns}
}

// Size is the fixed byte width of a serialized tuple of this schema.
func (s Schema) Size() int {
	total := 0
	for _, c := range s.Columns {
		total += c.Type.Size()
	}

	return total
}

func (s Schema) ColumnIndex(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}

	return 0, false
}

// Tuple is one row's values in schema order.
type Tuple struct {
	Values []any
}

func NewTuple(values ...any) Tuple {
	return Tuple{Values: values}
}

func checkColumnValue(c Column, v any) error {
	ok := false
	switch c.Type {
	case ColumnTypeInt64:
		_, ok = v.(int64)
	case ColumnTypeUint64:
		_, ok = v.(uint64)
	case ColumnTypeFloat64:
		_, ok = v.(float64)
	case ColumnTypeUUID:
		_, ok = v.(uuid.UUID)
	}

	if !ok {
		return fmt.Errorf("column %q expects %s, got %T", c.Name, c.Type, v)
	}

	return nil
}

// Marshal serializes the tuple big-endian, column by column.
func (t Tuple) Marshal(schema Schema) ([]byte, error) {
	if len(t.Values) != len(schema.Columns) {
		return nil, fmt.Errorf(
			"tuple has %d values, schema has %d columns",
			len(t.Values), len(schema.Columns),
		)
	}

	buf := new(bytes.Buffer)
	for i, c := range schema.Columns {
		if err := checkColumnValue(c, t.Values[i]); err != nil {
			return nil, err
		}

		if err := binary.Write(buf, binary.BigEndian, t.Values[i]); err != nil {
			return nil, fmt.Errorf("failed to serialize column %q: %w", c.Name, err)
		}
	}

	return buf.Bytes(), nil
}

func UnmarshalTuple(schema Schema, data []byte) (Tuple, error) {
	rd := bytes.NewReader(data)
	values := make([]any, 0, len(schema.Columns))

	for _, c := range schema.Columns {
		var (
			v   any
			err error
		)

		switch c.Type {
		case ColumnTypeInt64:
			var x int64
			err = binary.Read(rd, binary.BigEndian, &x)
			v = x
		case ColumnTypeUint64:
			var x uint64
			err = binary.Read(rd, binary.BigEndian, &x)
			v = x
		case ColumnTypeFloat64:
			var x float64
			err = binary.Read(rd, binary.BigEndian, &x)
			v = x
		case ColumnTypeUUID:
			var x uuid.UUID
			err = binary.Read(rd, binary.BigEndian, &x)
			v = x
		default:
			err = fmt.Errorf("unsupported column type %q", c.Type)
		}

		if err != nil {
			return Tuple{}, fmt.Errorf("failed to deserialize column %q: %w", c.Name, err)
		}

		values = append(values, v)
	}

	return Tuple{Values: values}, nil
}

// KeyBytes projects the key columns and serializes them big-endian.
// Index entries compare these bytes directly.
func (t Tuple) KeyBytes(schema Schema, keyAttrs []int) ([]byte, error) {
	buf := new(bytes.Buffer)

	for _, attr := range keyAttrs {
		if attr < 0 || attr >= len(schema.Columns) {
			return nil, fmt.Errorf("key attribute %d out of range", attr)
		}

		c := schema.Columns[attr]
		if err := checkColumnValue(c, t.Values[attr]); err != nil {
			return nil, err
		}

		if err := binary.Write(buf, binary.BigEndian, t.Values[attr]); err != nil {
			return nil, fmt.Errorf("failed to serialize key column %q: %w", c.Name, err)
		}
	}

	return buf.Bytes(), nil
}
