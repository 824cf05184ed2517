package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rpattn/entitykit/internal/domain"
)

// MemoryStore is an in-process RowStore. It keeps rows per table in insertion order and
// assigns int64 keys from a per-table counter.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memoryTable
}

type memoryTable struct {
	nextKey int64
	order   []string
	rows    map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memoryTable)}
}

func (s *MemoryStore) table(name string) *memoryTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memoryTable{rows: make(map[string]map[string]any)}
		s.tables[name] = t
	}
	return t
}

// FetchByKey implements RowStore.
func (s *MemoryStore) FetchByKey(ctx context.Context, table domain.Table, key any) (*domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table.Name]
	if !ok {
		return nil, nil
	}
	fields, ok := t.rows[domain.FormatKey(key)]
	if !ok {
		return nil, nil
	}
	return &domain.Row{Table: table.Name, Fields: domain.CopyFields(fields)}, nil
}

// FetchWhere implements RowStore.
func (s *MemoryStore) FetchWhere(ctx context.Context, table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) ([]domain.Row, error) {
	s.mu.RLock()
	matched := s.match(table, condition)
	s.mu.RUnlock()

	if len(order) == 0 {
		order = []domain.OrderTerm{{Field: table.Key(), Direction: domain.SortDirectionAsc}}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		for _, term := range order {
			cmp := domain.CompareValues(matched[i][term.Field], matched[j][term.Field])
			if cmp == 0 {
				continue
			}
			if term.Descending() {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.Row{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	rows := make([]domain.Row, len(matched))
	for i, fields := range matched {
		rows[i] = domain.Row{Table: table.Name, Fields: fields}
	}
	return rows, nil
}

// match returns copies of the matching rows in insertion order. Callers hold the read lock.
func (s *MemoryStore) match(table domain.Table, condition domain.Condition) []map[string]any {
	t, ok := s.tables[table.Name]
	if !ok {
		return nil
	}
	normalized := domain.Normalize(condition)
	out := make([]map[string]any, 0, len(t.order))
	for _, id := range t.order {
		fields := t.rows[id]
		if domain.Evaluate(normalized, fields) {
			out = append(out, domain.CopyFields(fields))
		}
	}
	return out
}

// Count implements RowStore.
func (s *MemoryStore) Count(ctx context.Context, table domain.Table, condition domain.Condition) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.match(table, condition)), nil
}

// Insert implements RowStore.
func (s *MemoryStore) Insert(ctx context.Context, table domain.Table, fields map[string]any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table.Name)
	row := domain.CopyFields(fields)
	key := domain.NormalizeKey(row[table.Key()])
	if key == nil {
		t.nextKey++
		key = t.nextKey
	} else if n, ok := key.(int64); ok && n > t.nextKey {
		t.nextKey = n
	}
	id := domain.FormatKey(key)
	if _, exists := t.rows[id]; exists {
		return nil, &duplicateKeyError{table: table.Name, key: id}
	}
	row[table.Key()] = key
	t.rows[id] = row
	t.order = append(t.order, id)
	return key, nil
}

// Update implements RowStore.
func (s *MemoryStore) Update(ctx context.Context, table domain.Table, key any, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table.Name]
	if !ok {
		return notFound(table, key)
	}
	id := domain.FormatKey(key)
	if _, ok := t.rows[id]; !ok {
		return notFound(table, key)
	}
	row := domain.CopyFields(fields)
	row[table.Key()] = domain.NormalizeKey(key)
	t.rows[id] = row
	return nil
}

// Delete implements RowStore.
func (s *MemoryStore) Delete(ctx context.Context, table domain.Table, key any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[table.Name]
	if !ok {
		return notFound(table, key)
	}
	id := domain.FormatKey(key)
	if _, ok := t.rows[id]; !ok {
		return notFound(table, key)
	}
	delete(t.rows, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

type duplicateKeyError struct {
	table string
	key   string
}

func (e *duplicateKeyError) Error() string {
	return "duplicate key " + e.key + " in table " + e.table
}

// MemoryVersionRepository keeps snapshots in memory, in append order.
type MemoryVersionRepository struct {
	mu        sync.RWMutex
	snapshots []domain.VersionSnapshot
	byID      map[uuid.UUID]int
	sequences map[string]int64
}

// NewMemoryVersionRepository creates an empty in-memory version repository.
func NewMemoryVersionRepository() *MemoryVersionRepository {
	return &MemoryVersionRepository{
		byID:      make(map[uuid.UUID]int),
		sequences: make(map[string]int64),
	}
}

// Append implements VersionRepository.
func (r *MemoryVersionRepository) Append(ctx context.Context, snapshot domain.VersionSnapshot) (domain.VersionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	entity := snapshot.EntityType + "\x00" + snapshot.EntityKey
	r.sequences[entity]++
	snapshot.Sequence = r.sequences[entity]
	snapshot.Payload = append([]byte(nil), snapshot.Payload...)
	snapshot.Fields = nil

	r.byID[snapshot.ID] = len(r.snapshots)
	r.snapshots = append(r.snapshots, snapshot)
	return snapshot, nil
}

// ListByEntity implements VersionRepository.
func (r *MemoryVersionRepository) ListByEntity(ctx context.Context, entityType, entityKey string) ([]domain.VersionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.VersionSnapshot, 0)
	for _, s := range r.snapshots {
		if s.EntityType == entityType && s.EntityKey == entityKey {
			out = append(out, s)
		}
	}
	sortSnapshots(out)
	return out, nil
}

// GetByID implements VersionRepository.
func (r *MemoryVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.VersionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return domain.VersionSnapshot{}, ErrVersionNotFound
	}
	return r.snapshots[idx], nil
}

func sortSnapshots(snapshots []domain.VersionSnapshot) {
	sort.SliceStable(snapshots, func(i, j int) bool {
		if !snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].CreatedAt.Before(snapshots[j].CreatedAt)
		}
		return snapshots[i].Sequence < snapshots[j].Sequence
	})
}
