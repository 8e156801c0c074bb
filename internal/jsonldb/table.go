package jsonldb

import (
	"bufio"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// Cloner is implemented by types that can clone themselves.
type Cloner[T any] interface {
	Clone() T
}

// Row is the constraint for types stored in a Table.
type Row[T any] interface {
	Cloner[T]
	GetID() ID
	Validate() error
}

// TableObserver is notified of table mutations. Used by secondary indexes to
// stay synchronized with the table.
type TableObserver[T any] interface {
	OnAppend(row T)
	OnUpdate(prev, curr T)
	OnDelete(row T)
}

// Table handles storage and in-memory caching for a single table in JSONL format.
type Table[T Row[T]] struct {
	path string

	mu        sync.RWMutex
	rows      []T
	byID      map[ID]int
	observers []TableObserver[T]
}

// NewTable creates a new Table and loads all data from the file.
func NewTable[T Row[T]](path string) (*Table[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	table := &Table[T]{path: path}
	if err := table.load(); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *Table[T]) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rows = nil
	t.byID = make(map[ID]int)

	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open table file %s: %w", t.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return fmt.Errorf("failed to unmarshal row in %s: %w", t.path, err)
		}
		if prev, ok := t.byID[row.GetID()]; ok {
			// Later line with the same ID wins. Handles append-based updates
			// from older file versions and manual edits.
			t.rows[prev] = row
			continue
		}
		t.byID[row.GetID()] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read table file %s: %w", t.path, err)
	}
	return nil
}

// AddObserver registers an observer for mutations. Register all observers
// before the table receives traffic.
func (t *Table[T]) AddObserver(o TableObserver[T]) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Len returns the number of rows.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// Get returns a clone of the row with the given ID, or the zero value if not found.
func (t *Table[T]) Get(id ID) T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	i, ok := t.byID[id]
	if !ok {
		var zero T
		return zero
	}
	return t.rows[i].Clone()
}

// All returns an iterator over clones of all rows in insertion order.
func (t *Table[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		defer t.mu.RUnlock()
		for _, row := range t.rows {
			if !yield(row.Clone()) {
				return
			}
		}
	}
}

// Append adds a new row to the table and persists it.
// Fails if a row with the same ID already exists.
func (t *Table[T]) Append(row T) error {
	if err := row.Validate(); err != nil {
		return fmt.Errorf("invalid row: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byID[row.GetID()]; ok {
		return fmt.Errorf("row %s already exists", row.GetID())
	}

	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal row: %w", err)
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open table file for append: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}

	clone := row.Clone()
	t.byID[clone.GetID()] = len(t.rows)
	t.rows = append(t.rows, clone)
	for _, o := range t.observers {
		o.OnAppend(clone)
	}
	return nil
}

// Update applies fn to a clone of the row with the given ID and persists the
// result, holding the write lock for the whole read-modify-write. Returns the
// updated row, or false if the row does not exist.
func (t *Table[T]) Update(id ID, fn func(row T) error) (T, bool, error) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return zero, false, nil
	}
	prev := t.rows[i]
	curr := prev.Clone()
	if err := fn(curr); err != nil {
		return zero, true, err
	}
	if curr.GetID() != id {
		return zero, true, fmt.Errorf("update must not change the row ID")
	}
	if err := curr.Validate(); err != nil {
		return zero, true, fmt.Errorf("invalid row: %w", err)
	}

	t.rows[i] = curr
	if err := t.rewrite(); err != nil {
		t.rows[i] = prev
		return zero, true, err
	}
	for _, o := range t.observers {
		o.OnUpdate(prev, curr)
	}
	return curr.Clone(), true, nil
}

// Delete removes the row with the given ID and persists the change.
// Returns false if the row does not exist.
func (t *Table[T]) Delete(id ID) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.byID[id]
	if !ok {
		return false, nil
	}
	row := t.rows[i]
	rows := make([]T, 0, len(t.rows)-1)
	rows = append(rows, t.rows[:i]...)
	rows = append(rows, t.rows[i+1:]...)
	prevRows := t.rows
	t.rows = rows
	if err := t.rewrite(); err != nil {
		t.rows = prevRows
		return false, err
	}
	delete(t.byID, id)
	for j := i; j < len(t.rows); j++ {
		t.byID[t.rows[j].GetID()] = j
	}
	for _, o := range t.observers {
		o.OnDelete(row)
	}
	return true, nil
}

// rewrite persists all rows to the file atomically. Caller must hold the write lock.
func (t *Table[T]) rewrite() error {
	tmp := t.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	writer := bufio.NewWriter(f)
	for _, row := range t.rows {
		data, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		if _, err := writer.Write(append(data, '\n')); err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close table file: %w", err)
	}
	if err := os.Rename(tmp, t.path); err != nil {
		return fmt.Errorf("failed to replace table file: %w", err)
	}
	return nil
}
