package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/entitykit/internal/domain"
)

// postgresStore implements RowStore on a pgx connection pool
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed row store
func NewPostgresStore(pool *pgxpool.Pool) RowStore {
	return &postgresStore{pool: pool}
}

// FetchByKey retrieves one row by primary key
func (r *postgresStore) FetchByKey(ctx context.Context, table domain.Table, key any) (*domain.Row, error) {
	stmt := postgresDialect.selectByKey(table, key)
	rows, err := r.pool.Query(ctx, stmt.text, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s row: %w", table.Name, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s row: %w", table.Name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &domain.Row{Table: table.Name, Fields: records[0]}, nil
}

// FetchWhere retrieves the rows matching a condition
func (r *postgresStore) FetchWhere(ctx context.Context, table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) ([]domain.Row, error) {
	stmt, err := postgresDialect.selectWhere(table, condition, order, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", table.Name, err)
	}
	rows, err := r.pool.Query(ctx, stmt.text, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", table.Name, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", table.Name, err)
	}

	result := make([]domain.Row, len(records))
	for i, record := range records {
		result[i] = domain.Row{Table: table.Name, Fields: record}
	}
	return result, nil
}

// Count returns the number of rows matching a condition
func (r *postgresStore) Count(ctx context.Context, table domain.Table, condition domain.Condition) (int, error) {
	stmt, err := postgresDialect.count(table, condition)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s count: %w", table.Name, err)
	}
	var count int64
	if err := r.pool.QueryRow(ctx, stmt.text, stmt.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", table.Name, err)
	}
	return int(count), nil
}

// Insert creates a row and returns its key
func (r *postgresStore) Insert(ctx context.Context, table domain.Table, fields map[string]any) (any, error) {
	stmt, err := postgresDialect.insert(table, fields, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s insert: %w", table.Name, err)
	}
	var key any
	if err := r.pool.QueryRow(ctx, stmt.text, stmt.args...).Scan(&key); err != nil {
		return nil, fmt.Errorf("failed to insert %s row: %w", table.Name, err)
	}
	return domain.NormalizeKey(key), nil
}

// Update replaces the row at key
func (r *postgresStore) Update(ctx context.Context, table domain.Table, key any, fields map[string]any) error {
	stmt, err := postgresDialect.update(table, key, fields)
	if err != nil {
		return fmt.Errorf("failed to build %s update: %w", table.Name, err)
	}
	tag, err := r.pool.Exec(ctx, stmt.text, stmt.args...)
	if err != nil {
		return fmt.Errorf("failed to update %s row: %w", table.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(table, key)
	}
	return nil
}

// Delete removes the row at key
func (r *postgresStore) Delete(ctx context.Context, table domain.Table, key any) error {
	stmt := postgresDialect.delete(table, key)
	tag, err := r.pool.Exec(ctx, stmt.text, stmt.args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s row: %w", table.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(table, key)
	}
	return nil
}

// postgresVersionRepository implements VersionRepository on the entity_versions table
type postgresVersionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresVersionRepository creates a Postgres-backed version repository
func NewPostgresVersionRepository(pool *pgxpool.Pool) VersionRepository {
	return &postgresVersionRepository{pool: pool}
}

const postgresAppendVersion = `
INSERT INTO entity_versions (id, entity_type, entity_key, sequence, created_at, fields)
SELECT $1, $2::text, $3::text, COALESCE(MAX(sequence), 0) + 1, $4, $5
FROM entity_versions WHERE entity_type = $2::text AND entity_key = $3::text
RETURNING sequence`

const postgresVersionColumns = `id, entity_type, entity_key, sequence, created_at, fields`

// Append stores a snapshot
func (r *postgresVersionRepository) Append(ctx context.Context, snapshot domain.VersionSnapshot) (domain.VersionSnapshot, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, postgresAppendVersion,
		snapshot.ID, snapshot.EntityType, snapshot.EntityKey, snapshot.CreatedAt, []byte(snapshot.Payload),
	).Scan(&snapshot.Sequence)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("failed to append version: %w", err)
	}
	snapshot.Fields = nil
	return snapshot, nil
}

// ListByEntity retrieves the history of one entity
func (r *postgresVersionRepository) ListByEntity(ctx context.Context, entityType, entityKey string) ([]domain.VersionSnapshot, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+postgresVersionColumns+" FROM entity_versions WHERE entity_type = $1 AND entity_key = $2 ORDER BY created_at, sequence",
		entityType, entityKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.VersionSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanPostgresVersion(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	return snapshots, nil
}

// GetByID retrieves one snapshot
func (r *postgresVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.VersionSnapshot, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+postgresVersionColumns+" FROM entity_versions WHERE id = $1", id)
	snapshot, err := scanPostgresVersion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionSnapshot{}, ErrVersionNotFound
		}
		return domain.VersionSnapshot{}, err
	}
	return snapshot, nil
}

func scanPostgresVersion(row pgx.Row) (domain.VersionSnapshot, error) {
	var (
		snapshot domain.VersionSnapshot
		payload  []byte
	)
	if err := row.Scan(&snapshot.ID, &snapshot.EntityType, &snapshot.EntityKey, &snapshot.Sequence, &snapshot.CreatedAt, &payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VersionSnapshot{}, err
		}
		return domain.VersionSnapshot{}, fmt.Errorf("failed to scan version: %w", err)
	}
	snapshot.CreatedAt = snapshot.CreatedAt.UTC()
	snapshot.Payload = payload
	return snapshot, nil
}
