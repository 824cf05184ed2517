package diff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
	"github.com/rpattn/entitykit/internal/repository"
	"github.com/rpattn/entitykit/internal/versioning"
)

func TestCompareFieldsPaths(t *testing.T) {
	current := map[string]any{
		"name":    "Acme",
		"address": map[string]any{"city": "Paris"},
		"tags":    []any{"a", "b"},
		"score":   1,
	}
	other := map[string]any{
		"name":    "Acme",
		"address": map[string]any{"city": "Lyon", "zip": "69000"},
		"tags":    []any{"a"},
		"score":   1.0,
	}
	report := CompareFields(current, other)

	assert.Equal(t, []string{"address.city", "address.zip", "name", "score", "tags[0]", "tags[1]"}, report.Paths())

	changed := report.Changed()
	require.Len(t, changed, 3)
	assert.Equal(t, "address.city", changed[0].Path)
	assert.Equal(t, "address.zip", changed[1].Path)
	assert.False(t, changed[1].CurrentPresent)
	assert.True(t, changed[1].OtherPresent)
	assert.Equal(t, "tags[1]", changed[2].Path)

	assert.True(t, report.HasChanges())
	assert.False(t, report.Find("score").Changed(), "numbers compare by value")
	assert.False(t, report.Find("address").IsLeaf())
	assert.Nil(t, report.Find("missing"))
}

func TestCompareContainerAgainstAbsentSide(t *testing.T) {
	report := CompareFields(map[string]any{"address": map[string]any{"city": "Paris"}}, map[string]any{})
	leaves := report.Leaves()
	require.Len(t, leaves, 1)
	assert.Equal(t, "address.city", leaves[0].Path)
	assert.True(t, leaves[0].CurrentPresent)
	assert.False(t, leaves[0].OtherPresent)
	assert.True(t, leaves[0].Changed)

	nullSide := CompareFields(map[string]any{"address": map[string]any{"city": "Paris"}}, map[string]any{"address": nil})
	assert.Equal(t, []string{"address.city"}, nullSide.Paths())
}

func TestCompareLeafShapes(t *testing.T) {
	tests := []struct {
		name    string
		current any
		other   any
		changed bool
	}{
		{"container against scalar", map[string]any{"a": 1}, "flat", true},
		{"map against list", map[string]any{"a": 1}, []any{1}, true},
		{"empty containers", map[string]any{}, map[string]any{}, false},
		{"markers by key value", map[string]any{"__class": "Order", "__primaryKey": 42.0}, map[string]any{"__class": "Order", "__primaryKey": int64(42)}, false},
		{"markers of different types", map[string]any{"__class": "Order", "__primaryKey": 42}, map[string]any{"__class": "Invoice", "__primaryKey": 42}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := CompareFields(map[string]any{"x": tt.current}, map[string]any{"x": tt.other})
			node := report.Find("x")
			require.NotNil(t, node)
			assert.True(t, node.IsLeaf())
			assert.Equal(t, tt.changed, node.Changed())
		})
	}
}

func TestCompareIsSymmetric(t *testing.T) {
	a := domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", Sequence: 1, Payload: []byte(`{"name":"Acme","address":{"city":"Paris"},"tags":["x"]}`)}
	b := domain.VersionSnapshot{EntityType: "Customer", EntityKey: "1", Sequence: 2, Payload: []byte(`{"name":"Acme Ltd","address":{"zip":"75001"}}`)}

	forward, err := CompareSnapshots(a, b)
	require.NoError(t, err)
	backward, err := CompareSnapshots(b, a)
	require.NoError(t, err)
	assert.Equal(t, backward, forward.Swap())
	assert.Equal(t, forward.Paths(), backward.Paths())
}

func TestCompareSnapshotsRejectsUndecodablePayload(t *testing.T) {
	id := uuid.New()
	a := domain.VersionSnapshot{ID: id, Payload: []byte(`{"id":1,"name":"Acme",`)}
	b := domain.VersionSnapshot{ID: uuid.New(), Payload: []byte(`{"name":"Acme"}`)}

	_, err := CompareSnapshots(a, b)
	var cerr *domain.CorruptSnapshotError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, id.String(), cerr.VersionID)

	_, err = CompareSnapshots(b, a)
	assert.ErrorIs(t, err, domain.ErrCorruptSnapshot)
}

func TestCompareSnapshotsKeepsDecodedFields(t *testing.T) {
	a := domain.VersionSnapshot{Fields: map[string]any{"name": "Acme"}, Payload: []byte(`not json`)}
	b := domain.VersionSnapshot{Payload: []byte(`{"name":"Acme Ltd"}`)}

	report, err := CompareSnapshots(a, b)
	require.NoError(t, err)
	changed := report.Changed()
	require.Len(t, changed, 1)
	assert.Equal(t, "Acme", changed[0].Current)
	assert.Equal(t, "Acme Ltd", changed[0].Other)
}

func TestOnlyChanged(t *testing.T) {
	report := CompareFields(
		map[string]any{"name": "Acme", "address": map[string]any{"city": "Paris", "zip": "75001"}},
		map[string]any{"name": "Acme", "address": map[string]any{"city": "Lyon", "zip": "75001"}},
	)
	assert.Equal(t, []string{"address.city"}, report.OnlyChanged().Paths())
	assert.Len(t, report.Paths(), 3, "the original report is untouched")
}

func TestVersionDiffEndToEnd(t *testing.T) {
	ctx := context.Background()
	registry := entity.NewRegistry()
	registry.MustRegister(entity.TypeSpec{
		Name:  "Customer",
		Table: "customers",
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldTypeString, Required: true},
			{Name: "email", Type: domain.FieldTypeString},
		},
	})
	tick := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	versions := versioning.NewStore(repository.NewMemoryVersionRepository(), versioning.WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}))
	manager := entity.NewManager(registry, repository.NewMemoryStore(), entity.WithVersionStore(versions))

	customer, err := manager.New("Customer")
	require.NoError(t, err)
	require.NoError(t, customer.Assign(map[string]any{"name": "Acme", "email": "a@acme.test"}))
	require.NoError(t, customer.Persist(ctx))
	require.NoError(t, customer.Set("email", "b@acme.test"))
	require.NoError(t, customer.Persist(ctx))

	history, err := versions.History(ctx, "Customer", customer.Key())
	require.NoError(t, err)
	require.Len(t, history, 2)

	report := Compare(history[0], history[1])
	changed := report.Changed()
	require.Len(t, changed, 1)
	assert.Equal(t, "email", changed[0].Path)
	assert.Equal(t, "a@acme.test", changed[0].Current)
	assert.Equal(t, "b@acme.test", changed[0].Other)
	assert.Equal(t, []string{"email", "id", "name"}, report.Paths())
	assert.Equal(t, int64(1), report.Current.Sequence)
	assert.Equal(t, int64(2), report.Other.Sequence)
}
