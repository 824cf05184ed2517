// Package versioning captures and reads entity version snapshots.
package versioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
	"github.com/rpattn/entitykit/internal/repository"
)

// Store appends snapshots on persist and reads them back for audit and diffing.
type Store struct {
	repo  repository.VersionRepository
	clock func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for snapshot timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore creates a version store over a repository.
func NewStore(repo repository.VersionRepository, opts ...Option) *Store {
	s := &Store{repo: repo, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot serializes the entity's field map and appends it. References to other entities,
// and keys held in declared reference fields, are written as {"__class", "__primaryKey"}
// markers instead of nested payloads.
func (s *Store) Snapshot(ctx context.Context, e *entity.Entity) (domain.VersionSnapshot, error) {
	if err := e.CheckLoaded("snapshot"); err != nil {
		return domain.VersionSnapshot{}, err
	}
	fields := Normalize(e.Fields(), e.Type().Fields())
	payload, err := json.Marshal(fields)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("failed to encode %s snapshot: %w", e.TypeName(), err)
	}
	stored, err := s.repo.Append(ctx, domain.VersionSnapshot{
		ID:         uuid.New(),
		EntityType: e.TypeName(),
		EntityKey:  e.KeyString(),
		CreatedAt:  s.clock().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return domain.VersionSnapshot{}, err
	}
	stored.Fields = fields
	return stored, nil
}

// History returns every snapshot of one entity, oldest first, with fields decoded. The first
// undecodable payload fails the whole read with a *domain.CorruptSnapshotError.
func (s *Store) History(ctx context.Context, entityType string, key any) ([]domain.VersionSnapshot, error) {
	snapshots, err := s.repo.ListByEntity(ctx, entityType, domain.FormatKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s %s: %w", entityType, domain.FormatKey(key), err)
	}
	for i, snapshot := range snapshots {
		decoded, err := decode(snapshot)
		if err != nil {
			return nil, err
		}
		snapshots[i] = decoded
	}
	return snapshots, nil
}

// Latest returns the newest snapshot of an entity with its fields decoded.
func (s *Store) Latest(ctx context.Context, entityType string, key any) (domain.VersionSnapshot, error) {
	history, err := s.History(ctx, entityType, key)
	if err != nil {
		return domain.VersionSnapshot{}, err
	}
	if len(history) == 0 {
		return domain.VersionSnapshot{}, &domain.NotFoundError{EntityType: entityType + " version", Key: key}
	}
	return history[len(history)-1], nil
}

// Get returns one snapshot with its fields decoded. An undecodable payload is reported as
// a *domain.CorruptSnapshotError.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.VersionSnapshot, error) {
	snapshot, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return domain.VersionSnapshot{}, &domain.NotFoundError{EntityType: "version", Key: id.String()}
		}
		return domain.VersionSnapshot{}, fmt.Errorf("failed to load version %s: %w", id, err)
	}
	return decode(snapshot)
}

// GetString parses a version id and calls Get.
func (s *Store) GetString(ctx context.Context, id string) (domain.VersionSnapshot, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("invalid version id %q: %w", id, err)
	}
	return s.Get(ctx, parsed)
}

func decode(snapshot domain.VersionSnapshot) (domain.VersionSnapshot, error) {
	fields, err := snapshot.DecodeFields()
	if err != nil {
		return domain.VersionSnapshot{}, &domain.CorruptSnapshotError{VersionID: snapshot.ID.String(), Err: err}
	}
	snapshot.Fields = fields
	return snapshot, nil
}
