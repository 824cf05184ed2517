package entity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/repository"
	"github.com/rpattn/entitykit/pkg/validator"
)

// DefaultPageSize is used by Paginate when the caller passes a non-positive size.
const DefaultPageSize = 20

// Snapshotter captures a version snapshot after each successful store write.
type Snapshotter interface {
	Snapshot(ctx context.Context, e *Entity) (domain.VersionSnapshot, error)
}

// Manager binds a type registry to a RowStore. It is the entry point for New, Load,
// LoadBy and Collection.
type Manager struct {
	registry  *Registry
	store     repository.RowStore
	versions  Snapshotter
	logger    *slog.Logger
	clock     func() time.Time
	pageSize  int
	validator *validator.FieldValidator
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for soft hook and snapshot failures.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithVersionStore enables snapshot capture on every Persist.
func WithVersionStore(s Snapshotter) Option {
	return func(m *Manager) {
		m.versions = s
	}
}

// WithClock overrides the time source used for timestamp stamping.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithPageSize sets the default page size for Paginate.
func WithPageSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.pageSize = size
		}
	}
}

// NewManager creates a manager over a registry and a store.
func NewManager(registry *Registry, store repository.RowStore, opts ...Option) *Manager {
	m := &Manager{
		registry:  registry,
		store:     store,
		logger:    slog.Default(),
		clock:     time.Now,
		pageSize:  DefaultPageSize,
		validator: validator.NewFieldValidator(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Registry returns the type registry the manager was built with.
func (m *Manager) Registry() *Registry { return m.registry }

// Store returns the underlying RowStore.
func (m *Manager) Store() repository.RowStore { return m.store }

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.logger }

// Now returns the manager's current time.
func (m *Manager) Now() time.Time { return m.clock() }

// New returns an unloaded entity with the type's declared defaults.
func (m *Manager) New(typeName string) (*Entity, error) {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return m.newEntity(t), nil
}

func (m *Manager) newEntity(t *Type) *Entity {
	e := &Entity{typ: t, mgr: m, fields: make(map[string]any, len(t.fields))}
	for _, def := range t.fields {
		if def.Default == nil {
			continue
		}
		value, err := def.Coerce(def.DefaultValue())
		if err != nil {
			value = def.DefaultValue()
		}
		e.fields[def.Name] = value
	}
	return e
}

// Load fetches one entity by primary key. When no row exists it returns an unloaded entity
// of the requested type together with a *domain.NotFoundError, so optional-lookup callers
// can ignore the error and check Loaded.
func (m *Manager) Load(ctx context.Context, typeName string, key any) (*Entity, error) {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	e := m.newEntity(t)
	if domain.NormalizeKey(key) == nil {
		return e, &domain.NotFoundError{EntityType: t.name, Key: key}
	}
	row, err := m.store.FetchByKey(ctx, t.table, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", t.name, domain.FormatKey(key), err)
	}
	if row == nil {
		return e, &domain.NotFoundError{EntityType: t.name, Key: key}
	}
	if err := e.hydrate(*row); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadBy returns the first entity, in primary-key order, whose field equals value. Failure
// semantics match Load.
func (m *Manager) LoadBy(ctx context.Context, typeName, field string, value any) (*Entity, error) {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	first, err := m.collection(t).Where(domain.Eq(field, value)).GetFirst(ctx)
	if err != nil {
		return nil, err
	}
	if first == nil {
		return m.newEntity(t), &domain.NotFoundError{EntityType: t.name, Key: field + "=" + fmt.Sprint(domain.StorageValue(value))}
	}
	return first, nil
}

// Collection starts a query over one entity type.
func (m *Manager) Collection(typeName string) *Collection {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return &Collection{mgr: m, err: err}
	}
	return m.collection(t)
}

func (m *Manager) collection(t *Type) *Collection {
	return &Collection{mgr: m, typ: t}
}

// Hydrate wraps a row already fetched from the store. The row must come from the type's table.
func (m *Manager) Hydrate(typeName string, row domain.Row) (*Entity, error) {
	t, err := m.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	e := m.newEntity(t)
	if err := e.hydrate(row); err != nil {
		return nil, err
	}
	return e, nil
}
