package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/repository"
)

// LoggingStore decorates a RowStore and logs every call with its table, operation, duration
// and error.
type LoggingStore struct {
	next   repository.RowStore
	logger *slog.Logger
	level  slog.Level
}

// NewLoggingStore wraps next. Successful calls are logged at Debug, failures at Error.
func NewLoggingStore(next repository.RowStore, logger *slog.Logger) *LoggingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingStore{next: next, logger: logger, level: slog.LevelDebug}
}

func (s *LoggingStore) log(ctx context.Context, table domain.Table, op string, start time.Time, err error, attrs ...slog.Attr) {
	level := s.level
	if err != nil {
		level = slog.LevelError
	}
	if !s.logger.Enabled(ctx, level) {
		return
	}
	attrs = append(attrs,
		slog.String("table", table.Name),
		slog.String("op", op),
		slog.Duration("duration", time.Since(start)),
	)
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	s.logger.LogAttrs(ctx, level, "[STORE] "+op, attrs...)
}

// FetchByKey implements repository.RowStore.
func (s *LoggingStore) FetchByKey(ctx context.Context, table domain.Table, key any) (*domain.Row, error) {
	start := time.Now()
	row, err := s.next.FetchByKey(ctx, table, key)
	s.log(ctx, table, "fetch", start, err, slog.String("key", domain.FormatKey(key)), slog.Bool("found", row != nil))
	return row, err
}

// FetchWhere implements repository.RowStore.
func (s *LoggingStore) FetchWhere(ctx context.Context, table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) ([]domain.Row, error) {
	start := time.Now()
	rows, err := s.next.FetchWhere(ctx, table, condition, order, limit, offset)
	s.log(ctx, table, "list", start, err, slog.Int("limit", limit), slog.Int("offset", offset), slog.Int("rows", len(rows)))
	return rows, err
}

// Count implements repository.RowStore.
func (s *LoggingStore) Count(ctx context.Context, table domain.Table, condition domain.Condition) (int, error) {
	start := time.Now()
	count, err := s.next.Count(ctx, table, condition)
	s.log(ctx, table, "count", start, err, slog.Int("count", count))
	return count, err
}

// Insert implements repository.RowStore.
func (s *LoggingStore) Insert(ctx context.Context, table domain.Table, fields map[string]any) (any, error) {
	start := time.Now()
	key, err := s.next.Insert(ctx, table, fields)
	s.log(ctx, table, "insert", start, err, slog.String("key", domain.FormatKey(key)))
	return key, err
}

// Update implements repository.RowStore.
func (s *LoggingStore) Update(ctx context.Context, table domain.Table, key any, fields map[string]any) error {
	start := time.Now()
	err := s.next.Update(ctx, table, key, fields)
	s.log(ctx, table, "update", start, err, slog.String("key", domain.FormatKey(key)))
	return err
}

// Delete implements repository.RowStore.
func (s *LoggingStore) Delete(ctx context.Context, table domain.Table, key any) error {
	start := time.Now()
	err := s.next.Delete(ctx, table, key)
	s.log(ctx, table, "delete", start, err, slog.String("key", domain.FormatKey(key)))
	return err
}
