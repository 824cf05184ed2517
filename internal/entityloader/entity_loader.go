package entityloader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
)

// EntityLoader batches reference lookups: concurrent Load calls for one entity type within
// the wait window become a single key-set query. Results are cached for the loader's
// lifetime, so one loader should serve one request.
type EntityLoader struct {
	mgr     *entity.Manager
	wait    time.Duration
	mu      sync.Mutex
	loaders map[string]*dataloader.Loader
}

// Option configures an EntityLoader.
type Option func(*EntityLoader)

// WithWait sets how long the loader collects keys before running a batch.
func WithWait(wait time.Duration) Option {
	return func(l *EntityLoader) {
		l.wait = wait
	}
}

// NewEntityLoader creates a loader over a manager.
func NewEntityLoader(mgr *entity.Manager, opts ...Option) *EntityLoader {
	l := &EntityLoader{
		mgr:     mgr,
		wait:    5 * time.Millisecond,
		loaders: make(map[string]*dataloader.Loader),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// key adapts an entity primary key to dataloader.Key.
type key struct {
	raw any
}

func (k key) String() string   { return domain.FormatKey(k.raw) }
func (k key) Raw() interface{} { return k.raw }

// Load resolves one entity. A missing row yields a *domain.NotFoundError.
func (l *EntityLoader) Load(ctx context.Context, typeName string, pk any) (*entity.Entity, error) {
	if domain.NormalizeKey(pk) == nil {
		return nil, &domain.NotFoundError{EntityType: typeName, Key: pk}
	}
	loader := l.loaderFor(typeName)
	data, err := loader.Load(ctx, key{raw: domain.NormalizeKey(pk)})()
	if err != nil {
		return nil, err
	}
	e, ok := data.(*entity.Entity)
	if !ok || e == nil {
		return nil, &domain.NotFoundError{EntityType: typeName, Key: pk}
	}
	return e, nil
}

// LoadMany resolves several entities of one type in a single batch. The returned slices are
// aligned with keys; missing rows have a nil entity and a *domain.NotFoundError.
func (l *EntityLoader) LoadMany(ctx context.Context, typeName string, pks ...any) ([]*entity.Entity, []error) {
	keys := make(dataloader.Keys, len(pks))
	for i, pk := range pks {
		keys[i] = key{raw: domain.NormalizeKey(pk)}
	}
	data, errs := l.loaderFor(typeName).LoadMany(ctx, keys)()

	entities := make([]*entity.Entity, len(pks))
	aligned := make([]error, len(pks))
	for i := range pks {
		if len(errs) == len(pks) && errs[i] != nil {
			aligned[i] = errs[i]
			continue
		}
		if len(errs) == 1 && errs[0] != nil {
			aligned[i] = errs[0]
			continue
		}
		if i < len(data) {
			if e, ok := data[i].(*entity.Entity); ok && e != nil {
				entities[i] = e
				continue
			}
		}
		aligned[i] = &domain.NotFoundError{EntityType: typeName, Key: pks[i]}
	}
	return entities, aligned
}

func (l *EntityLoader) loaderFor(typeName string) *dataloader.Loader {
	l.mu.Lock()
	defer l.mu.Unlock()
	if loader, ok := l.loaders[typeName]; ok {
		return loader
	}
	loader := dataloader.NewBatchedLoader(l.batchFn(typeName), dataloader.WithWait(l.wait))
	l.loaders[typeName] = loader
	return loader
}

func (l *EntityLoader) batchFn(typeName string) dataloader.BatchFunc {
	return func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		t, err := l.mgr.Registry().Lookup(typeName)
		if err != nil {
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		values := make([]any, len(keys))
		for i, k := range keys {
			values[i] = k.Raw()
		}
		items, err := l.mgr.Collection(typeName).Where(domain.In(t.Table().Key(), values...)).Items(ctx)
		if err != nil {
			err = fmt.Errorf("failed to batch load %s: %w", typeName, err)
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Map key -> entity for ordering
		byKey := make(map[string]*entity.Entity, len(items))
		for _, e := range items {
			byKey[e.KeyString()] = e
		}
		for i, k := range keys {
			if e, ok := byKey[k.String()]; ok {
				results[i] = &dataloader.Result{Data: e}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}
}

type ctxKey string

const entityLoaderKey ctxKey = "entityLoader"

// WithLoader attaches a loader to the context.
func WithLoader(ctx context.Context, l *EntityLoader) context.Context {
	return context.WithValue(ctx, entityLoaderKey, l)
}

// FromContext retrieves the loader from the context, or nil.
func FromContext(ctx context.Context) *EntityLoader {
	if l, ok := ctx.Value(entityLoaderKey).(*EntityLoader); ok {
		return l
	}
	return nil
}
