// Provides concurrent-safe, in-memory secondary indexes for tables.

package jsonldb

import (
	"iter"
	"sync"
)

// UniqueIndex provides O(1) lookup by a unique secondary key.
//
// The index is built from existing table data when created and kept
// synchronized via the [TableObserver] interface. All operations are
// concurrent-safe.
type UniqueIndex[K comparable, T Row[T]] struct {
	table   *Table[T]
	keyFunc func(T) K
	mu      sync.Mutex
	byKey   map[K]ID
}

// NewUniqueIndex creates a unique index on the given table.
//
// The keyFunc extracts the index key from each row. Keys must be unique;
// if duplicates exist in the table, the last row with each key wins.
func NewUniqueIndex[K comparable, T Row[T]](table *Table[T], keyFunc func(T) K) *UniqueIndex[K, T] {
	idx := &UniqueIndex[K, T]{
		table:   table,
		keyFunc: keyFunc,
		byKey:   make(map[K]ID),
	}
	for row := range table.All() {
		idx.byKey[keyFunc(row)] = row.GetID()
	}
	table.AddObserver(idx)
	return idx
}

// Get returns the row with the given key, or the zero value if not found.
func (idx *UniqueIndex[K, T]) Get(key K) T {
	idx.mu.Lock()
	id, ok := idx.byKey[key]
	idx.mu.Unlock()
	if !ok {
		var zero T
		return zero
	}
	return idx.table.Get(id)
}

// GetID returns the ID of the row with the given key without touching the
// table, so it is safe to call from inside a Table.Update callback.
func (idx *UniqueIndex[K, T]) GetID(key K) (ID, bool) {
	idx.mu.Lock()
	id, ok := idx.byKey[key]
	idx.mu.Unlock()
	return id, ok
}

// Has returns true if a row with the given key exists.
func (idx *UniqueIndex[K, T]) Has(key K) bool {
	idx.mu.Lock()
	_, ok := idx.byKey[key]
	idx.mu.Unlock()
	return ok
}

// OnAppend implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnAppend(row T) {
	idx.mu.Lock()
	idx.byKey[idx.keyFunc(row)] = row.GetID()
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnUpdate(prev, curr T) {
	oldKey := idx.keyFunc(prev)
	newKey := idx.keyFunc(curr)
	idx.mu.Lock()
	if oldKey != newKey {
		delete(idx.byKey, oldKey)
	}
	idx.byKey[newKey] = curr.GetID()
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *UniqueIndex[K, T]) OnDelete(row T) {
	idx.mu.Lock()
	delete(idx.byKey, idx.keyFunc(row))
	idx.mu.Unlock()
}

// Index provides O(1) lookup by a non-unique secondary key.
//
// The index is built from existing table data when created and kept
// synchronized via the [TableObserver] interface. All operations are
// concurrent-safe.
type Index[K comparable, T Row[T]] struct {
	table    *Table[T]
	keysFunc func(T) []K
	mu       sync.Mutex
	byKey    map[K]map[ID]struct{}
}

// NewIndex creates a non-unique index on the given table.
//
// The keysFunc extracts the index keys from each row; a row may appear under
// several keys (multi-entry, e.g. one key per tag).
func NewIndex[K comparable, T Row[T]](table *Table[T], keysFunc func(T) []K) *Index[K, T] {
	idx := &Index[K, T]{
		table:    table,
		keysFunc: keysFunc,
		byKey:    make(map[K]map[ID]struct{}),
	}
	for row := range table.All() {
		idx.add(row)
	}
	table.AddObserver(idx)
	return idx
}

// Iter returns an iterator over all rows matching the given key.
func (idx *Index[K, T]) Iter(key K) iter.Seq[T] {
	return func(yield func(T) bool) {
		// Copy IDs under lock to avoid holding lock during iteration.
		idx.mu.Lock()
		ids := make([]ID, 0, len(idx.byKey[key]))
		for id := range idx.byKey[key] {
			ids = append(ids, id)
		}
		idx.mu.Unlock()

		for _, id := range ids {
			row := idx.table.Get(id)
			var zero T
			if any(row) == any(zero) {
				continue // Row was deleted between snapshot and lookup
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Count returns the number of rows matching the given key.
func (idx *Index[K, T]) Count(key K) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byKey[key])
}

func (idx *Index[K, T]) add(row T) {
	id := row.GetID()
	for _, key := range idx.keysFunc(row) {
		if idx.byKey[key] == nil {
			idx.byKey[key] = make(map[ID]struct{})
		}
		idx.byKey[key][id] = struct{}{}
	}
}

func (idx *Index[K, T]) remove(row T) {
	id := row.GetID()
	for _, key := range idx.keysFunc(row) {
		delete(idx.byKey[key], id)
		if len(idx.byKey[key]) == 0 {
			delete(idx.byKey, key)
		}
	}
}

// OnAppend implements [TableObserver].
func (idx *Index[K, T]) OnAppend(row T) {
	idx.mu.Lock()
	idx.add(row)
	idx.mu.Unlock()
}

// OnUpdate implements [TableObserver].
func (idx *Index[K, T]) OnUpdate(prev, curr T) {
	idx.mu.Lock()
	idx.remove(prev)
	idx.add(curr)
	idx.mu.Unlock()
}

// OnDelete implements [TableObserver].
func (idx *Index[K, T]) OnDelete(row T) {
	idx.mu.Lock()
	idx.remove(row)
	idx.mu.Unlock()
}
