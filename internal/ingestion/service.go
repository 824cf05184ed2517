package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
)

// TablePreparer creates storage for a type before rows are written, e.g.
// (*repository.SQLiteStore).EnsureTable.
type TablePreparer func(ctx context.Context, table domain.Table, fields []domain.FieldDefinition) error

// Request describes one bulk import.
type Request struct {
	TypeName        string
	FileName        string
	Data            io.Reader
	HeaderRowIndex  *int
	ColumnOverrides map[string]domain.FieldType
}

// RowError reports one rejected row by its 1-based line in the source file.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// Summary reports the outcome of an import. Row failures are collected, not returned.
type Summary struct {
	TypeName       string
	TypeRegistered bool
	Fields         []domain.FieldDefinition
	TotalRows      int
	Inserted       int
	Updated        int
	InvalidRows    int
	SkippedColumns []string
	Warnings       []string
	Errors         []RowError
}

// Service imports tabular files into entities through the lifecycle pipeline, so hooks,
// validation and version snapshots apply to every row.
type Service struct {
	mgr     *entity.Manager
	logger  *slog.Logger
	prepare TablePreparer
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for row failures and schema warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTablePreparer runs prepare once per import, after the type is resolved.
func WithTablePreparer(prepare TablePreparer) Option {
	return func(s *Service) {
		s.prepare = prepare
	}
}

// NewService creates an import service writing through mgr.
func NewService(mgr *entity.Manager, opts ...Option) *Service {
	s := &Service{mgr: mgr, logger: mgr.Logger()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Import reads the file, resolves the target type and persists one entity per data row.
// An unregistered type is registered from the inferred columns. A column matching the
// primary key selects the entity to update; rows without it are inserted.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{TypeName: req.TypeName}
	if strings.TrimSpace(req.TypeName) == "" {
		return summary, errors.New("type name is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := ReadTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return summary, err
	}
	detected := applyOverrides(InferFields(table), req.ColumnOverrides)
	summary.TotalRows = len(table.Rows)

	typ, registered, err := s.resolveType(req.TypeName, detected)
	if err != nil {
		return summary, err
	}
	summary.TypeRegistered = registered
	summary.Fields = typ.Fields()

	columns := make([]column, len(table.Headers))
	for idx, header := range table.Headers {
		columns[idx] = s.planColumn(ctx, typ, header, detected[idx], &summary)
	}

	if s.prepare != nil {
		if err := s.prepare(ctx, typ.Table(), storageFields(typ, detected)); err != nil {
			return summary, err
		}
	}

	for idx, row := range table.Rows {
		inserted, err := s.importRow(ctx, typ, columns, row)
		if err != nil {
			rowErr := RowError{Row: table.RowNumber(idx), Err: err}
			summary.Errors = append(summary.Errors, rowErr)
			summary.InvalidRows++
			s.logger.LogAttrs(ctx, slog.LevelWarn, "import row rejected",
				slog.String("entity_type", typ.Name()),
				slog.Int("row", rowErr.Row),
				slog.Any("error", err),
			)
			continue
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "import finished",
		slog.String("entity_type", typ.Name()),
		slog.Int("rows", summary.TotalRows),
		slog.Int("inserted", summary.Inserted),
		slog.Int("updated", summary.Updated),
		slog.Int("invalid", summary.InvalidRows),
	)
	return summary, nil
}

func (s *Service) resolveType(name string, detected []domain.FieldDefinition) (*entity.Type, bool, error) {
	registry := s.mgr.Registry()
	typ, err := registry.Lookup(name)
	if err == nil {
		return typ, false, nil
	}
	if !errors.Is(err, entity.ErrUnknownType) {
		return nil, false, err
	}

	fields := make([]domain.FieldDefinition, 0, len(detected))
	for _, def := range detected {
		if def.Name == domain.DefaultPrimaryKey {
			continue
		}
		fields = append(fields, def)
	}
	if len(fields) == 0 {
		return nil, false, errors.New("no fields inferred from data set")
	}
	typ, err = registry.Register(entity.TypeSpec{Name: name, Fields: fields})
	if err != nil {
		return nil, false, fmt.Errorf("failed to register inferred type: %w", err)
	}
	return typ, true, nil
}

type columnRole int

const (
	columnSkip columnRole = iota
	columnKey
	columnField
)

type column struct {
	role      columnRole
	name      string
	fieldType domain.FieldType
}

func (s *Service) planColumn(ctx context.Context, typ *entity.Type, header string, detected domain.FieldDefinition, summary *Summary) column {
	if header == typ.Table().Key() {
		return column{role: columnKey, name: header}
	}
	def, declared := typ.Field(header)
	if !declared {
		if len(typ.Fields()) == 0 {
			return column{role: columnField, name: header, fieldType: detected.Type}
		}
		summary.SkippedColumns = append(summary.SkippedColumns, header)
		return column{role: columnSkip, name: header}
	}
	if !fieldTypesCompatible(def.Type, detected.Type) {
		message := fmt.Sprintf("field %s type mismatch: declared=%s, detected=%s", header, def.Type, detected.Type)
		summary.Warnings = append(summary.Warnings, message)
		s.logger.LogAttrs(ctx, slog.LevelWarn, "import column type mismatch",
			slog.String("entity_type", typ.Name()),
			slog.String("field", header),
			slog.String("declared", string(def.Type)),
			slog.String("detected", string(detected.Type)),
		)
	}
	return column{role: columnField, name: header, fieldType: def.Type}
}

// importRow persists one row and reports whether it was inserted.
func (s *Service) importRow(ctx context.Context, typ *entity.Type, columns []column, row []string) (bool, error) {
	var key any
	values := make(map[string]any, len(columns))
	for idx, col := range columns {
		raw := strings.TrimSpace(row[idx])
		if raw == "" || col.role == columnSkip {
			continue
		}
		if col.role == columnKey {
			key = parseKey(raw)
			continue
		}
		value, err := coerceCell(col.fieldType, raw)
		if err != nil {
			return false, fmt.Errorf("field %s: %w", col.name, err)
		}
		values[col.name] = value
	}

	var e *entity.Entity
	if key != nil {
		loaded, err := s.mgr.Load(ctx, typ.Name(), key)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		e = loaded
		if !e.Loaded() {
			if err := e.Set(typ.Table().Key(), key); err != nil {
				return false, err
			}
		}
	} else {
		created, err := s.mgr.New(typ.Name())
		if err != nil {
			return false, err
		}
		e = created
	}

	inserting := !e.Loaded()
	if err := e.Assign(values); err != nil {
		return false, err
	}
	if err := e.Persist(ctx); err != nil {
		return false, err
	}
	return inserting, nil
}

// storageFields is the column set handed to a TablePreparer: the type's fields plus the
// key column as detected in the file, so string keys get a text primary key. Schemaless
// types take the detected columns.
func storageFields(typ *entity.Type, detected []domain.FieldDefinition) []domain.FieldDefinition {
	fields := typ.Fields()
	if len(fields) == 0 {
		return detected
	}
	for _, def := range detected {
		if def.Name == typ.Table().Key() {
			return append([]domain.FieldDefinition{def}, fields...)
		}
	}
	return fields
}
