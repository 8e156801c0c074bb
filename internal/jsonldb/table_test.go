package jsonldb

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

type testRow struct {
	ID   ID       `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

func (r *testRow) Clone() *testRow {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	return &c
}

func (r *testRow) GetID() ID { return r.ID }

func (r *testRow) Validate() error {
	if r.ID.IsZero() {
		return errors.New("id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func newTestTable(t *testing.T) *Table[*testRow] {
	t.Helper()
	table, err := NewTable[*testRow](filepath.Join(t.TempDir(), "rows.jsonl"))
	if err != nil {
		t.Fatalf("NewTable() failed: %v", err)
	}
	return table
}

func TestTable(t *testing.T) {
	t.Parallel()

	t.Run("AppendGet", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		row := &testRow{ID: NewID(), Name: "first"}
		if err := table.Append(row); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		got := table.Get(row.ID)
		if got == nil || got.Name != "first" {
			t.Fatalf("Get() = %+v, want name %q", got, "first")
		}
		// Get must return a clone, not the cached row.
		got.Name = "mutated"
		if again := table.Get(row.ID); again.Name != "first" {
			t.Errorf("cache mutated through Get() result")
		}
	})

	t.Run("AppendDuplicateID", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		row := &testRow{ID: NewID(), Name: "first"}
		if err := table.Append(row); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		if err := table.Append(&testRow{ID: row.ID, Name: "second"}); err == nil {
			t.Error("Append() with duplicate ID succeeded, want error")
		}
	})

	t.Run("AppendInvalid", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		if err := table.Append(&testRow{ID: NewID()}); err == nil {
			t.Error("Append() with empty name succeeded, want error")
		}
	})

	t.Run("Update", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		row := &testRow{ID: NewID(), Name: "before"}
		if err := table.Append(row); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		curr, found, err := table.Update(row.ID, func(r *testRow) error {
			r.Name = "after"
			return nil
		})
		if err != nil || !found {
			t.Fatalf("Update() = found %v, err %v", found, err)
		}
		if curr.Name != "after" {
			t.Errorf("Update() returned %q, want %q", curr.Name, "after")
		}
		if got := table.Get(row.ID); got.Name != "after" {
			t.Errorf("Get() after update = %q, want %q", got.Name, "after")
		}
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		_, found, err := table.Update(NewID(), func(r *testRow) error { return nil })
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if found {
			t.Error("Update() on missing row reported found")
		}
	})

	t.Run("UpdateRollbackOnError", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		row := &testRow{ID: NewID(), Name: "keep"}
		if err := table.Append(row); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
		wantErr := errors.New("boom")
		_, found, err := table.Update(row.ID, func(r *testRow) error {
			r.Name = "lost"
			return wantErr
		})
		if !found || !errors.Is(err, wantErr) {
			t.Fatalf("Update() = found %v, err %v", found, err)
		}
		if got := table.Get(row.ID); got.Name != "keep" {
			t.Errorf("row changed despite error: %q", got.Name)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		a := &testRow{ID: NewID(), Name: "a"}
		b := &testRow{ID: NewID(), Name: "b"}
		for _, row := range []*testRow{a, b} {
			if err := table.Append(row); err != nil {
				t.Fatalf("Append() failed: %v", err)
			}
		}
		found, err := table.Delete(a.ID)
		if err != nil || !found {
			t.Fatalf("Delete() = found %v, err %v", found, err)
		}
		if table.Get(a.ID) != nil {
			t.Error("deleted row still readable")
		}
		if table.Get(b.ID) == nil {
			t.Error("surviving row lost after delete")
		}
		if found, _ := table.Delete(a.ID); found {
			t.Error("second Delete() reported found")
		}
	})

	t.Run("Reload", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rows.jsonl")
		table, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatalf("NewTable() failed: %v", err)
		}
		a := &testRow{ID: NewID(), Name: "a", Tags: []string{"x"}}
		b := &testRow{ID: NewID(), Name: "b"}
		for _, row := range []*testRow{a, b} {
			if err := table.Append(row); err != nil {
				t.Fatalf("Append() failed: %v", err)
			}
		}
		if _, _, err := table.Update(a.ID, func(r *testRow) error {
			r.Name = "a2"
			return nil
		}); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}

		reopened, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatalf("NewTable() reopen failed: %v", err)
		}
		if reopened.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", reopened.Len())
		}
		if got := reopened.Get(a.ID); got.Name != "a2" || !slices.Equal(got.Tags, []string{"x"}) {
			t.Errorf("reopened row = %+v", got)
		}
	})

	t.Run("LoadLaterLineWins", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "rows.jsonl")
		id := NewID()
		lines := []string{
			`{"id":"` + id.String() + `","name":"old"}`,
			`{"id":"` + id.String() + `","name":"new"}`,
		}
		if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
			t.Fatalf("WriteFile() failed: %v", err)
		}
		table, err := NewTable[*testRow](path)
		if err != nil {
			t.Fatalf("NewTable() failed: %v", err)
		}
		if table.Len() != 1 {
			t.Fatalf("Len() = %d, want 1", table.Len())
		}
		if got := table.Get(id); got.Name != "new" {
			t.Errorf("Get() = %q, want %q", got.Name, "new")
		}
	})

	t.Run("All", func(t *testing.T) {
		t.Parallel()
		table := newTestTable(t)
		want := []string{"a", "b", "c"}
		for _, name := range want {
			if err := table.Append(&testRow{ID: NewID(), Name: name}); err != nil {
				t.Fatalf("Append() failed: %v", err)
			}
		}
		var got []string
		for row := range table.All() {
			got = append(got, row.Name)
		}
		if !slices.Equal(got, want) {
			t.Errorf("All() order = %v, want %v", got, want)
		}
	})
}
