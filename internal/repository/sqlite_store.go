package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/entitykit/internal/domain"
)

// SQLiteStore implements RowStore on a database/sql handle opened with the ncruces driver.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureTable creates the table for a type when it does not exist yet. Column affinities
// follow the declared field types; the primary key is an INTEGER rowid alias unless the
// type declares a string key.
func (s *SQLiteStore) EnsureTable(ctx context.Context, table domain.Table, fields []domain.FieldDefinition) error {
	columns := make([]string, 0, len(fields)+1)
	keyDeclared := false
	for _, field := range fields {
		if field.Name == table.Key() {
			keyDeclared = true
			if field.Type == domain.FieldTypeString {
				columns = append(columns, sqliteDialect.quote(field.Name)+" TEXT PRIMARY KEY")
			} else {
				columns = append(columns, sqliteDialect.quote(field.Name)+" INTEGER PRIMARY KEY AUTOINCREMENT")
			}
			continue
		}
		columns = append(columns, sqliteDialect.quote(field.Name)+" "+sqliteAffinity(field.Type))
	}
	if !keyDeclared {
		columns = append([]string{sqliteDialect.quote(table.Key()) + " INTEGER PRIMARY KEY AUTOINCREMENT"}, columns...)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", sqliteDialect.quote(table.Name), strings.Join(columns, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}
	return nil
}

func sqliteAffinity(fieldType domain.FieldType) string {
	switch fieldType {
	case domain.FieldTypeInteger, domain.FieldTypeBoolean:
		return "INTEGER"
	case domain.FieldTypeFloat:
		return "REAL"
	case domain.FieldTypeReference:
		return "NUMERIC"
	default:
		return "TEXT"
	}
}

// FetchByKey implements RowStore.
func (s *SQLiteStore) FetchByKey(ctx context.Context, table domain.Table, key any) (*domain.Row, error) {
	stmt := sqliteDialect.selectByKey(table, key)
	records, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s row: %w", table.Name, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &domain.Row{Table: table.Name, Fields: records[0]}, nil
}

// FetchWhere implements RowStore.
func (s *SQLiteStore) FetchWhere(ctx context.Context, table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) ([]domain.Row, error) {
	stmt, err := sqliteDialect.selectWhere(table, condition, order, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s query: %w", table.Name, err)
	}
	records, err := s.query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s rows: %w", table.Name, err)
	}
	rows := make([]domain.Row, len(records))
	for i, record := range records {
		rows[i] = domain.Row{Table: table.Name, Fields: record}
	}
	return rows, nil
}

// Count implements RowStore.
func (s *SQLiteStore) Count(ctx context.Context, table domain.Table, condition domain.Condition) (int, error) {
	stmt, err := sqliteDialect.count(table, condition)
	if err != nil {
		return 0, fmt.Errorf("failed to build %s count: %w", table.Name, err)
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, stmt.text, stmt.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s rows: %w", table.Name, err)
	}
	return int(count), nil
}

// Insert implements RowStore.
func (s *SQLiteStore) Insert(ctx context.Context, table domain.Table, fields map[string]any) (any, error) {
	stmt, err := sqliteDialect.insert(table, fields, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s insert: %w", table.Name, err)
	}
	var key any
	if err := s.db.QueryRowContext(ctx, stmt.text, stmt.args...).Scan(&key); err != nil {
		return nil, fmt.Errorf("failed to insert %s row: %w", table.Name, err)
	}
	return domain.NormalizeKey(key), nil
}

// Update implements RowStore.
func (s *SQLiteStore) Update(ctx context.Context, table domain.Table, key any, fields map[string]any) error {
	stmt, err := sqliteDialect.update(table, key, fields)
	if err != nil {
		return fmt.Errorf("failed to build %s update: %w", table.Name, err)
	}
	return s.execAffecting(ctx, table, key, stmt, "update")
}

// Delete implements RowStore.
func (s *SQLiteStore) Delete(ctx context.Context, table domain.Table, key any) error {
	return s.execAffecting(ctx, table, key, sqliteDialect.delete(table, key), "delete")
}

func (s *SQLiteStore) execAffecting(ctx context.Context, table domain.Table, key any, stmt sqlStatement, op string) error {
	result, err := s.db.ExecContext(ctx, stmt.text, stmt.args...)
	if err != nil {
		return fmt.Errorf("failed to %s %s row: %w", op, table.Name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s %s row: %w", op, table.Name, err)
	}
	if affected == 0 {
		return notFound(table, key)
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, stmt sqlStatement) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, stmt.text, stmt.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	records := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				record[column] = string(b)
				continue
			}
			record[column] = values[i]
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

const sqliteVersionSchema = `
CREATE TABLE IF NOT EXISTS entity_versions (
    id TEXT PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_key TEXT NOT NULL,
    sequence INTEGER NOT NULL,
    created_at TEXT NOT NULL,
    fields TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entity_versions_entity ON entity_versions(entity_type, entity_key, created_at);
`

// SQLiteVersionRepository implements VersionRepository on an entity_versions table.
type SQLiteVersionRepository struct {
	db *sql.DB
}

// NewSQLiteVersionRepository wraps an open handle and creates the versions table if needed.
func NewSQLiteVersionRepository(ctx context.Context, db *sql.DB) (*SQLiteVersionRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteVersionSchema); err != nil {
		return nil, fmt.Errorf("failed to create version schema: %w", err)
	}
	return &SQLiteVersionRepository{db: db}, nil
}

// Append implements VersionRepository.
func (r *SQLiteVersionRepository) Append(ctx context.Context, snapshot domain.VersionSnapshot) (domain.VersionSnapshot, error) {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO entity_versions (id, entity_type, entity_key, sequence, created_at, fields)
		SELECT ?1, ?2, ?3, COALESCE(MAX(sequence), 0) + 1, ?4, ?5
		FROM entity_versions WHERE entity_type = ?2 AND entity_key = ?3
		RETURNING sequence
	`, snapshot.ID.String(), snapshot.EntityType, snapshot.EntityKey,
		snapshot.CreatedAt.UTC().Format(time.RFC3339Nano), string(snapshot.Payload),
	).Scan(&snapshot.Sequence)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("failed to append version: %w", err)
	}
	snapshot.Fields = nil
	return snapshot, nil
}

// ListByEntity implements VersionRepository.
func (r *SQLiteVersionRepository) ListByEntity(ctx context.Context, entityType, entityKey string) ([]domain.VersionSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_key, sequence, created_at, fields
		FROM entity_versions WHERE entity_type = ? AND entity_key = ?
	`, entityType, entityKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	snapshots := make([]domain.VersionSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read versions: %w", err)
	}
	// Text timestamps do not sort reliably across zone offsets, so order after parsing.
	sortSnapshots(snapshots)
	return snapshots, nil
}

// GetByID implements VersionRepository.
func (r *SQLiteVersionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.VersionSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, entity_type, entity_key, sequence, created_at, fields
		FROM entity_versions WHERE id = ?
	`, id.String())
	snapshot, err := scanSQLiteVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VersionSnapshot{}, ErrVersionNotFound
	}
	return snapshot, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteVersion(row rowScanner) (domain.VersionSnapshot, error) {
	var (
		snapshot  domain.VersionSnapshot
		id        string
		createdAt string
		payload   string
	)
	if err := row.Scan(&id, &snapshot.EntityType, &snapshot.EntityKey, &snapshot.Sequence, &createdAt, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.VersionSnapshot{}, err
		}
		return domain.VersionSnapshot{}, fmt.Errorf("failed to scan version: %w", err)
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("invalid version id %q: %w", id, err)
	}
	parsedAt, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return domain.VersionSnapshot{}, fmt.Errorf("invalid version timestamp %q: %w", createdAt, err)
	}
	snapshot.ID = parsedID
	snapshot.CreatedAt = parsedAt
	snapshot.Payload = []byte(payload)
	return snapshot, nil
}
