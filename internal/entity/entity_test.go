package entity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/repository"
	"github.com/rpattn/entitykit/pkg/validator"
)

var fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func customerSpec(extensions ...Extension) TypeSpec {
	return TypeSpec{
		Name:  "Customer",
		Table: "customers",
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldTypeString, Required: true},
			{Name: "email", Type: domain.FieldTypeString},
			{Name: "status", Type: domain.FieldTypeString, Default: "active"},
			{Name: "rank", Type: domain.FieldTypeInteger},
			{Name: "address", Type: domain.FieldTypeJSON},
			{Name: "order_id", Type: domain.FieldTypeReference, ReferenceEntityType: "Order"},
			{Name: domain.CreatedAtField, Type: domain.FieldTypeTimestamp},
			{Name: domain.UpdatedAtField, Type: domain.FieldTypeTimestamp},
		},
		Extensions: extensions,
		Rules: []validator.Rule{
			{Name: "email_format", Field: "email", Expression: `email == nil || email contains "@"`, Message: "must contain @"},
		},
	}
}

func orderSpec() TypeSpec {
	return TypeSpec{
		Name:   "Order",
		Table:  "orders",
		Fields: []domain.FieldDefinition{{Name: "total", Type: domain.FieldTypeFloat}},
	}
}

func newTestManager(t *testing.T, specs []TypeSpec, opts ...Option) (*Manager, *repository.MemoryStore) {
	t.Helper()
	registry := NewRegistry()
	for _, spec := range specs {
		_, err := registry.Register(spec)
		require.NoError(t, err)
	}
	store := repository.NewMemoryStore()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewManager(registry, store, opts...), store
}

func persistCustomer(t *testing.T, m *Manager, values map[string]any) *Entity {
	t.Helper()
	e, err := m.New("Customer")
	require.NoError(t, err)
	require.NoError(t, e.Assign(values))
	require.NoError(t, e.Persist(context.Background()))
	return e
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, []TypeSpec{customerSpec(), orderSpec()})

	e, err := m.New("Customer")
	require.NoError(t, err)
	assert.False(t, e.Loaded())
	assert.Nil(t, e.Key())
	assert.Equal(t, "active", e.Get("status"), "declared default applied")

	require.NoError(t, e.Assign(map[string]any{
		"name":    "Acme",
		"email":   "a@acme.test",
		"address": map[string]any{"city": "Paris"},
	}))
	require.NoError(t, e.Persist(ctx))

	assert.True(t, e.Loaded())
	assert.Equal(t, int64(1), e.Key())
	assert.Equal(t, fixedNow, e.Get(domain.CreatedAtField))
	assert.Equal(t, fixedNow, e.Get(domain.UpdatedAtField))

	loaded, err := m.Load(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.True(t, loaded.Loaded())
	assert.Equal(t, e.Key(), loaded.Key())
	assert.Equal(t, e.Fields(), loaded.Fields())
	assert.Equal(t, "Customer#1", loaded.Reference().String())
}

func TestLoadMissingReturnsUnloadedEntity(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, []TypeSpec{customerSpec()})

	e, err := m.Load(ctx, "Customer", 99)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	require.NotNil(t, e)
	assert.False(t, e.Loaded())
	assert.Equal(t, "Customer", e.TypeName())

	_, err = m.Load(ctx, "Invoice", 1)
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	m, _ := newTestManager(t, []TypeSpec{customerSpec()}, WithClock(func() time.Time { return now }))

	e := persistCustomer(t, m, map[string]any{"name": "Acme"})
	now = fixedNow.Add(time.Hour)
	require.NoError(t, e.Set("email", "b@acme.test"))
	require.NoError(t, e.Persist(ctx))

	loaded, err := m.Load(ctx, "Customer", e.Key())
	require.NoError(t, err)
	assert.Equal(t, fixedNow, loaded.Get(domain.CreatedAtField))
	assert.Equal(t, fixedNow.Add(time.Hour), loaded.Get(domain.UpdatedAtField))
	assert.Equal(t, "b@acme.test", loaded.Get("email"))
}

func TestSetRejectsUndeclaredAndKeyChanges(t *testing.T) {
	m, _ := newTestManager(t, []TypeSpec{customerSpec()})
	e := persistCustomer(t, m, map[string]any{"name": "Acme"})

	err := e.Set("nickname", "A")
	assert.True(t, errors.Is(err, domain.ErrUnknownAttribute))

	assert.Error(t, e.Set("id", 7))
	assert.NoError(t, e.Set("id", 1.0), "same key in another numeric shape is allowed")

	assert.Error(t, e.Set("rank", "many"))
}

func TestReferenceFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, []TypeSpec{customerSpec(), orderSpec()})

	order, err := m.New("Order")
	require.NoError(t, err)
	require.NoError(t, order.Set("total", 12.5))
	require.NoError(t, order.Persist(ctx))

	customer := persistCustomer(t, m, map[string]any{"name": "Acme", "order_id": order})
	assert.Equal(t, domain.Reference{Type: "Order", Key: int64(1)}, customer.Get("order_id"))

	row, err := store.FetchByKey(ctx, customer.Table(), customer.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.Fields["order_id"], "rows hold the bare key")

	loaded, err := m.Load(ctx, "Customer", customer.Key())
	require.NoError(t, err)
	assert.Equal(t, domain.Reference{Type: "Order", Key: int64(1)}, loaded.Get("order_id"))
}

func TestValidationBlocksWrite(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, []TypeSpec{customerSpec()})

	e, _ := m.New("Customer")
	err := e.Persist(ctx)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Violations[0].Field)

	require.NoError(t, e.Assign(map[string]any{"name": "Acme", "email": "nope"}))
	err = e.Persist(ctx)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must contain @", verr.Violations[0].Message)

	count, _ := store.Count(ctx, e.Table(), nil)
	assert.Zero(t, count)
	assert.False(t, e.Loaded())
}

func TestFailedPersistRestoresTimestamps(t *testing.T) {
	ctx := context.Background()
	now := fixedNow
	m, _ := newTestManager(t, []TypeSpec{customerSpec()}, WithClock(func() time.Time { return now }))

	fresh, _ := m.New("Customer")
	require.Error(t, fresh.Persist(ctx))
	assert.False(t, fresh.Has(domain.CreatedAtField))
	assert.False(t, fresh.Has(domain.UpdatedAtField))

	e := persistCustomer(t, m, map[string]any{"name": "Acme"})
	now = fixedNow.Add(time.Hour)
	require.NoError(t, e.Set("email", "nope"))
	require.Error(t, e.Persist(ctx))
	assert.Equal(t, fixedNow, e.Get(domain.CreatedAtField))
	assert.Equal(t, fixedNow, e.Get(domain.UpdatedAtField))

	require.NoError(t, e.Set("email", "a@acme.test"))
	require.NoError(t, e.Persist(ctx))
	assert.Equal(t, fixedNow.Add(time.Hour), e.Get(domain.UpdatedAtField))
}

type recorder struct {
	name  string
	calls *[]string
	fail  map[Hook]error
}

func (r recorder) Name() string { return r.name }

func (r recorder) record(hook Hook) error {
	*r.calls = append(*r.calls, r.name+":"+string(hook))
	return r.fail[hook]
}

func (r recorder) PrePersist(ctx context.Context, e *Entity) error  { return r.record(HookPrePersist) }
func (r recorder) PostPersist(ctx context.Context, e *Entity) error { return r.record(HookPostPersist) }
func (r recorder) PreRemove(ctx context.Context, e *Entity) error   { return r.record(HookPreRemove) }
func (r recorder) PostRemove(ctx context.Context, e *Entity) error  { return r.record(HookPostRemove) }

func TestHookOrderAndAsymmetry(t *testing.T) {
	ctx := context.Background()
	var calls []string
	var logs bytes.Buffer
	boom := errors.New("boom")

	spec := customerSpec(
		recorder{name: "first", calls: &calls, fail: map[Hook]error{HookPostPersist: boom, HookPreRemove: boom}},
		recorder{name: "second", calls: &calls},
	)
	spec.Hooks = HookFuncs{OnPrePersist: func(ctx context.Context, e *Entity) error {
		calls = append(calls, "own:PrePersist")
		return nil
	}}
	m, store := newTestManager(t, []TypeSpec{spec}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	e := persistCustomer(t, m, map[string]any{"name": "Acme"})
	assert.Equal(t, []string{
		"first:PrePersist", "second:PrePersist", "own:PrePersist",
		"first:PostPersist", "second:PostPersist",
	}, calls)
	assert.Contains(t, logs.String(), "lifecycle hook failed")
	assert.Contains(t, logs.String(), "extension=first")

	calls = nil
	require.NoError(t, e.Remove(ctx), "a failing cleanup hook never blocks removal")
	assert.Equal(t, []string{"first:PreRemove", "second:PreRemove", "first:PostRemove", "second:PostRemove"}, calls)
	assert.False(t, e.Loaded())
	count, _ := store.Count(ctx, e.Table(), nil)
	assert.Zero(t, count)
}

func TestPrePersistFailureAborts(t *testing.T) {
	ctx := context.Background()
	var calls []string
	spec := customerSpec(recorder{name: "guard", calls: &calls, fail: map[Hook]error{HookPrePersist: errors.New("denied")}})
	m, store := newTestManager(t, []TypeSpec{spec})

	e, _ := m.New("Customer")
	require.NoError(t, e.Set("name", "Acme"))
	err := e.Persist(ctx)

	var herr *HookError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, HookPrePersist, herr.Hook)
	assert.Equal(t, "guard", herr.Extension)
	assert.Equal(t, []string{"guard:PrePersist"}, calls)

	count, _ := store.Count(ctx, e.Table(), nil)
	assert.Zero(t, count)
}

type fakeSnapshotter struct {
	taken []string
	err   error
}

func (f *fakeSnapshotter) Snapshot(ctx context.Context, e *Entity) (domain.VersionSnapshot, error) {
	if !e.Loaded() {
		return domain.VersionSnapshot{}, errors.New("unloaded")
	}
	f.taken = append(f.taken, e.KeyString())
	return domain.VersionSnapshot{}, f.err
}

func TestPersistTakesSnapshot(t *testing.T) {
	snaps := &fakeSnapshotter{}
	m, _ := newTestManager(t, []TypeSpec{customerSpec()}, WithVersionStore(snaps))

	e := persistCustomer(t, m, map[string]any{"name": "Acme"})
	require.NoError(t, e.Persist(context.Background()))
	assert.Equal(t, []string{"1", "1"}, snaps.taken)

	snaps.err = errors.New("version store down")
	assert.NoError(t, e.Persist(context.Background()), "snapshot failures are logged, not returned")
}

func TestRemoveAndReset(t *testing.T) {
	ctx := context.Background()
	m, store := newTestManager(t, []TypeSpec{customerSpec()})

	unsaved, _ := m.New("Customer")
	assert.True(t, errors.Is(unsaved.Remove(ctx), domain.ErrNotLoaded))
	assert.True(t, errors.Is(unsaved.Reset(ctx), domain.ErrNotLoaded))

	e := persistCustomer(t, m, map[string]any{"name": "Acme"})
	require.NoError(t, e.Set("name", "Changed"))
	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, "Acme", e.Get("name"))

	require.NoError(t, store.Delete(ctx, e.Table(), e.Key()))
	err := e.Reset(ctx)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, e.Loaded())
}

func TestHydrateChecksTable(t *testing.T) {
	m, _ := newTestManager(t, []TypeSpec{customerSpec(), orderSpec()})

	_, err := m.Hydrate("Customer", domain.Row{Table: "orders", Fields: map[string]any{"id": int64(1)}})
	assert.True(t, errors.Is(err, domain.ErrTypeMismatch))

	e, err := m.Hydrate("Customer", domain.Row{Table: "customers", Fields: map[string]any{"id": int64(4), "name": "Acme", "rank": "3"}})
	require.NoError(t, err)
	assert.True(t, e.Loaded())
	assert.Equal(t, int64(3), e.Get("rank"))
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Register(TypeSpec{})
	assert.Error(t, err)

	_, err = registry.Register(TypeSpec{Name: "A", Fields: []domain.FieldDefinition{{Name: "x"}, {Name: "x"}}})
	assert.Error(t, err)

	_, err = registry.Register(TypeSpec{Name: "B", Rules: []validator.Rule{{Name: "broken", Expression: "a >"}}})
	assert.Error(t, err)

	registry.MustRegister(TypeSpec{Name: "C"})
	_, err = registry.Register(TypeSpec{Name: "C"})
	assert.Error(t, err)
	assert.Equal(t, []string{"C"}, registry.Names())
}
