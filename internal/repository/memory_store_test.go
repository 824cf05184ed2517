package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/rpattn/entitykit/internal/domain"
)

var customers = domain.Table{Name: "customers"}

func seedMemory(t *testing.T, store RowStore, count int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < count; i++ {
		status := "open"
		if i%2 == 1 {
			status = "closed"
		}
		if _, err := store.Insert(ctx, customers, map[string]any{"name": "c", "status": status, "rank": int64(count - i)}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
}

func TestMemoryStore_PaginationWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedMemory(t, store, 97)

	cases := []struct {
		offset int
		want   int
	}{
		{0, 20},
		{80, 17},
		{100, 0},
	}
	for _, tc := range cases {
		rows, err := store.FetchWhere(ctx, customers, nil, nil, 20, tc.offset)
		if err != nil {
			t.Fatalf("fetch at %d: %v", tc.offset, err)
		}
		if len(rows) != tc.want {
			t.Fatalf("offset %d: expected %d rows, got %d", tc.offset, tc.want, len(rows))
		}
	}

	count, err := store.Count(ctx, customers, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 97 {
		t.Fatalf("expected 97 rows, got %d", count)
	}
}

func TestMemoryStore_ConditionAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedMemory(t, store, 6)

	rows, err := store.FetchWhere(ctx, customers, domain.Match{"status": "open"},
		[]domain.OrderTerm{{Field: "rank", Direction: domain.SortDirectionAsc}}, 0, 0)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 open rows, got %d", len(rows))
	}
	var last int64
	for _, row := range rows {
		rank := row.Fields["rank"].(int64)
		if rank < last {
			t.Fatalf("rows not ordered by rank: %v", rows)
		}
		last = rank
		if row.Table != "customers" {
			t.Fatalf("row tagged with %q", row.Table)
		}
	}
}

func TestMemoryStore_KeysAndCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key, err := store.Insert(ctx, customers, map[string]any{"name": "Acme", "address": map[string]any{"city": "Paris"}})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if key != int64(1) {
		t.Fatalf("expected first key 1, got %#v", key)
	}

	row, err := store.FetchByKey(ctx, customers, 1.0)
	if err != nil || row == nil {
		t.Fatalf("fetch by float key: row=%v err=%v", row, err)
	}
	row.Fields["address"].(map[string]any)["city"] = "Lyon"

	again, _ := store.FetchByKey(ctx, customers, 1)
	if city := again.Fields["address"].(map[string]any)["city"]; city != "Paris" {
		t.Fatalf("stored row mutated through fetched copy: %v", city)
	}

	if _, err := store.Insert(ctx, customers, map[string]any{"id": int64(1)}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
	explicit, err := store.Insert(ctx, customers, map[string]any{"id": int64(10)})
	if err != nil || explicit != int64(10) {
		t.Fatalf("explicit key insert: key=%v err=%v", explicit, err)
	}
	next, _ := store.Insert(ctx, customers, map[string]any{})
	if next != int64(11) {
		t.Fatalf("expected counter to continue after explicit key, got %v", next)
	}
}

func TestMemoryStore_UpdateDeleteMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.Update(ctx, customers, 5, map[string]any{"name": "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	key, _ := store.Insert(ctx, customers, map[string]any{"name": "x"})
	if err := store.Delete(ctx, customers, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, customers, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	row, err := store.FetchByKey(ctx, customers, key)
	if err != nil || row != nil {
		t.Fatalf("expected no row after delete, got %v %v", row, err)
	}
}

func TestMemoryVersionRepository_Sequences(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVersionRepository()

	first, _ := repo.Append(ctx, domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", Payload: []byte(`{}`)})
	second, _ := repo.Append(ctx, domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", Payload: []byte(`{}`)})
	other, _ := repo.Append(ctx, domain.VersionSnapshot{EntityType: "Customer", EntityKey: "2", Payload: []byte(`{}`)})

	if first.Sequence != 1 || second.Sequence != 2 || other.Sequence != 1 {
		t.Fatalf("unexpected sequences %d %d %d", first.Sequence, second.Sequence, other.Sequence)
	}

	list, _ := repo.ListByEntity(ctx, "Customer", "1")
	if len(list) != 2 || list[0].ID != first.ID {
		t.Fatalf("unexpected history %v", list)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}
}
