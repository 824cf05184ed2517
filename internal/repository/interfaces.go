package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/rpattn/entitykit/internal/domain"
)

// ErrVersionNotFound is returned by VersionRepository.GetByID when no snapshot has that id.
var ErrVersionNotFound = errors.New("version not found")

// RowStore is the row-oriented store the entity layer writes through. Implementations own
// pooling, transactions and timeouts; the entity layer issues one logical write per call.
type RowStore interface {
	// FetchByKey returns the row at key, or nil when absent.
	FetchByKey(ctx context.Context, table domain.Table, key any) (*domain.Row, error)
	// FetchWhere returns the rows matching condition, ordered by order (primary key ascending
	// when empty) and windowed by limit/offset. A limit <= 0 means no limit.
	FetchWhere(ctx context.Context, table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) ([]domain.Row, error)
	// Count returns the number of rows matching condition, ignoring any window.
	Count(ctx context.Context, table domain.Table, condition domain.Condition) (int, error)
	// Insert writes a new row and returns its key. A non-nil primary-key value in fields is
	// used as-is; otherwise the store assigns one.
	Insert(ctx context.Context, table domain.Table, fields map[string]any) (any, error)
	// Update replaces the row at key with fields.
	Update(ctx context.Context, table domain.Table, key any, fields map[string]any) error
	// Delete removes the row at key.
	Delete(ctx context.Context, table domain.Table, key any) error
}

// VersionRepository persists append-only version snapshots keyed by
// (entity type, entity key, created at).
type VersionRepository interface {
	// Append stores a snapshot and returns it with its per-entity Sequence assigned.
	Append(ctx context.Context, snapshot domain.VersionSnapshot) (domain.VersionSnapshot, error)
	// ListByEntity returns every snapshot of one entity ordered by creation time, then sequence.
	ListByEntity(ctx context.Context, entityType, entityKey string) ([]domain.VersionSnapshot, error)
	// GetByID returns one snapshot without decoding its payload.
	GetByID(ctx context.Context, id uuid.UUID) (domain.VersionSnapshot, error)
}

func notFound(table domain.Table, key any) error {
	return &domain.NotFoundError{EntityType: table.Name, Key: key}
}
