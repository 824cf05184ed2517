package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/entitykit/internal/db"
	"github.com/rpattn/entitykit/internal/domain"
)

func openSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	handle, err := db.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	store := NewSQLiteStore(handle)
	fields := []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString},
		{Name: "status", Type: domain.FieldTypeString},
		{Name: "rank", Type: domain.FieldTypeInteger},
	}
	if err := store.EnsureTable(ctx, customers, fields); err != nil {
		t.Fatalf("ensure table: %v", err)
	}
	return store
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)

	key, err := store.Insert(ctx, customers, map[string]any{"name": "Acme", "status": "open", "rank": int64(3)})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if key != int64(1) {
		t.Fatalf("expected rowid 1, got %#v", key)
	}

	row, err := store.FetchByKey(ctx, customers, key)
	if err != nil || row == nil {
		t.Fatalf("fetch: row=%v err=%v", row, err)
	}
	if row.Fields["name"] != "Acme" || row.Fields["rank"] != int64(3) {
		t.Fatalf("unexpected row %#v", row.Fields)
	}

	if err := store.Update(ctx, customers, key, map[string]any{"id": key, "name": "Acme Ltd", "status": "closed", "rank": nil}); err != nil {
		t.Fatalf("update: %v", err)
	}
	row, _ = store.FetchByKey(ctx, customers, key)
	if row.Fields["name"] != "Acme Ltd" || row.Fields["rank"] != nil {
		t.Fatalf("update not applied: %#v", row.Fields)
	}

	if err := store.Update(ctx, customers, 99, map[string]any{"name": "x"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on missing update, got %v", err)
	}
	if err := store.Delete(ctx, customers, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if row, _ := store.FetchByKey(ctx, customers, key); row != nil {
		t.Fatalf("row still present after delete")
	}
}

func TestSQLiteStore_PaginationAndConditions(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t)
	seedMemory(t, store, 97)

	for _, tc := range []struct{ offset, want int }{{0, 20}, {80, 17}, {100, 0}} {
		rows, err := store.FetchWhere(ctx, customers, nil, nil, 20, tc.offset)
		if err != nil {
			t.Fatalf("fetch at %d: %v", tc.offset, err)
		}
		if len(rows) != tc.want {
			t.Fatalf("offset %d: expected %d rows, got %d", tc.offset, tc.want, len(rows))
		}
	}

	open, err := store.Count(ctx, customers, domain.Match{"status": "open"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if open != 49 {
		t.Fatalf("expected 49 open rows, got %d", open)
	}

	rows, err := store.FetchWhere(ctx, customers, domain.In("id", 3, 1, 2), []domain.OrderTerm{{Field: "id", Direction: domain.SortDirectionDesc}}, 0, 0)
	if err != nil {
		t.Fatalf("fetch in: %v", err)
	}
	if len(rows) != 3 || rows[0].Fields["id"] != int64(3) {
		t.Fatalf("unexpected in/desc result %v", rows)
	}
}

func TestSQLiteVersionRepository(t *testing.T) {
	ctx := context.Background()
	handle, err := db.OpenSQLite(ctx, "")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer handle.Close()

	repo, err := NewSQLiteVersionRepository(ctx, handle)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	second, err := repo.Append(ctx, domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", CreatedAt: base.Add(time.Minute), Payload: []byte(`{"email":"b@acme.test"}`)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	first, err := repo.Append(ctx, domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", CreatedAt: base, Payload: []byte(`{"email":"a@acme.test"}`)})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if second.Sequence != 1 || first.Sequence != 2 {
		t.Fatalf("sequences follow append order, got %d and %d", second.Sequence, first.Sequence)
	}

	list, err := repo.ListByEntity(ctx, "Customer", "1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID {
		t.Fatalf("expected history ordered by creation time, got %v", list)
	}

	got, err := repo.GetByID(ctx, second.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Payload) != `{"email":"b@acme.test"}` || !got.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if _, err := repo.GetByID(ctx, first.ID); err != nil {
		t.Fatalf("get first: %v", err)
	}
}
