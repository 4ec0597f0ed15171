package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/blocksim/pkg/db"
)

func TestIterator(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store db.KVStore)
	}{
		{name: "full_range_iteration", fn: testFullRangeIteration},
		{name: "bounded_range_iteration", fn: testBoundedRangeIteration},
		{name: "prefix_iteration", fn: testPrefixIteration},
		{name: "iterator_validity", fn: testIteratorValidity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			tc.fn(t, store)
		})
	}
}

func collect(t *testing.T, iter db.Iterator) ([]string, []string) {
	var keys, values []string
	for iter.Next() {
		v, err := iter.Value()
		require.NoError(t, err)
		keys = append(keys, string(iter.Key()))
		values = append(values, string(v))
	}
	return keys, values
}

func testFullRangeIteration(t *testing.T, store db.KVStore) {
	for _, k := range []string{"d", "b", "a", "c"} {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	keys, values := collect(t, iter)
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)
	assert.Equal(t, []string{"value-a", "value-b", "value-c", "value-d"}, values)
}

func testBoundedRangeIteration(t *testing.T, store db.KVStore) {
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}

	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	keys, _ := collect(t, iter)
	assert.Equal(t, []string{"b", "c", "d"}, keys)
}

func testPrefixIteration(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte{1, 9}, []byte("x")))
	require.NoError(t, store.Put([]byte{2, 0}, []byte("first")))
	require.NoError(t, store.Put([]byte{2, 1}, []byte("second")))
	require.NoError(t, store.Put([]byte{3, 0}, []byte("y")))

	iter, err := store.NewIterator([]byte{2}, db.PrefixEnd([]byte{2}))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	_, values := collect(t, iter)
	assert.Equal(t, []string{"first", "second"}, values)
}

func testIteratorValidity(t *testing.T, store db.KVStore) {
	require.NoError(t, store.Put([]byte("key1"), []byte("value1")))
	require.NoError(t, store.Put([]byte("key2"), []byte("value2")))

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck

	// Not positioned before the first Next
	assert.False(t, iter.Valid())

	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())
	assert.Equal(t, []byte("key1"), iter.Key())

	assert.True(t, iter.Next())
	assert.Equal(t, []byte("key2"), iter.Key())

	// Exhausted iterators stay exhausted
	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())
	assert.False(t, iter.Next())

	_, err = iter.Value()
	assert.ErrorIs(t, err, ErrIteratorInvalid)
}
