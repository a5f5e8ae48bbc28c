package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTupleRoundTrip(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: ColumnTypeUint64},
		Column{Name: "balance", Type: ColumnTypeInt64},
		Column{Name: "ratio", Type: ColumnTypeFloat64},
		Column{Name: "token", Type: ColumnTypeUUID},
	)

	token := uuid.New()
	tuple := NewTuple(uint64(7), int64(-100), 0.5, token)

	data, err := tuple.Marshal(schema)
	require.NoError(t, err)
	assert.Len(t, data, schema.Size())

	decoded, err := UnmarshalTuple(schema, data)
	require.NoError(t, err)
	assert.Equal(t, tuple, decoded)
}

func TestMarshalRejectsWrongShape(t *testing.T) {
	schema := NewSchema(Column{Name: "id", Type: ColumnTypeInt64})

	_, err := NewTuple(int64(1), int64(2)).Marshal(schema)
	assert.Error(t, err)

	_, err = NewTuple("not an int").Marshal(schema)
	assert.Error(t, err)
}

func TestKeyBytesProjection(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: ColumnTypeInt64},
		Column{Name: "group", Type: ColumnTypeUint64},
	)

	a := NewTuple(int64(1), uint64(42))
	b := NewTuple(int64(2), uint64(42))

	keyA, err := a.KeyBytes(schema, []int{1})
	require.NoError(t, err)
	keyB, err := b.KeyBytes(schema, []int{1})
	require.NoError(t, err)

	// Same key column, different rows: identical key bytes.
	assert.Equal(t, keyA, keyB)
	assert.Len(t, keyA, 8)

	_, err = a.KeyBytes(schema, []int{5})
	assert.Error(t, err)
}

func TestColumnIndex(t *testing.T) {
	schema := NewSchema(
		Column{Name: "id", Type: ColumnTypeInt64},
		Column{Name: "amount", Type: ColumnTypeInt64},
	)

	idx, ok := schema.ColumnIndex("amount")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = schema.ColumnIndex("missing")
	assert.False(t, ok)
}
