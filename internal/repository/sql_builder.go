package repository

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/entitykit/internal/domain"
)

// dialect captures the few places Postgres and SQLite SQL differ.
type dialect struct {
	name        string
	placeholder func(n int) string
	quote       func(ident string) string
	noLimit     string
	// textTime writes timestamps as RFC 3339 text, for stores without a native time type.
	textTime bool
}

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	quote:       func(ident string) string { return pgx.Identifier{ident}.Sanitize() },
	noLimit:     "ALL",
}

var sqliteDialect = dialect{
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	quote:       func(ident string) string { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` },
	noLimit:     "-1",
	textTime:    true,
}

// sqlStatement is a query text plus its positional arguments.
type sqlStatement struct {
	text string
	args []any
}

type argList struct {
	d    dialect
	args []any
}

func (a *argList) add(value any) string {
	a.args = append(a.args, value)
	return a.d.placeholder(len(a.args))
}

func (d dialect) selectByKey(table domain.Table, key any) sqlStatement {
	args := &argList{d: d}
	text := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s", d.quote(table.Name), d.quote(table.Key()), args.add(domain.NormalizeKey(key)))
	return sqlStatement{text: text, args: args.args}
}

func (d dialect) selectWhere(table domain.Table, condition domain.Condition, order []domain.OrderTerm, limit, offset int) (sqlStatement, error) {
	args := &argList{d: d}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.quote(table.Name))

	where, err := d.where(condition, args)
	if err != nil {
		return sqlStatement{}, err
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if len(order) == 0 {
		order = []domain.OrderTerm{{Field: table.Key(), Direction: domain.SortDirectionAsc}}
	}
	terms := make([]string, len(order))
	for i, term := range order {
		direction := "ASC"
		if term.Descending() {
			direction = "DESC"
		}
		terms[i] = d.quote(term.Field) + " " + direction
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(terms, ", "))

	if limit > 0 || offset > 0 {
		b.WriteString(" LIMIT ")
		if limit > 0 {
			b.WriteString(args.add(limit))
		} else {
			b.WriteString(d.noLimit)
		}
		if offset > 0 {
			b.WriteString(" OFFSET ")
			b.WriteString(args.add(offset))
		}
	}
	return sqlStatement{text: b.String(), args: args.args}, nil
}

func (d dialect) count(table domain.Table, condition domain.Condition) (sqlStatement, error) {
	args := &argList{d: d}
	text := "SELECT COUNT(*) FROM " + d.quote(table.Name)
	where, err := d.where(condition, args)
	if err != nil {
		return sqlStatement{}, err
	}
	if where != "" {
		text += " WHERE " + where
	}
	return sqlStatement{text: text, args: args.args}, nil
}

func (d dialect) insert(table domain.Table, fields map[string]any, returning bool) (sqlStatement, error) {
	args := &argList{d: d}
	columns := sortedColumns(fields)
	if domain.NormalizeKey(fields[table.Key()]) == nil {
		columns = without(columns, table.Key())
	}
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		value, err := d.encode(fields[column])
		if err != nil {
			return sqlStatement{}, fmt.Errorf("failed to encode %s: %w", column, err)
		}
		quoted[i] = d.quote(column)
		placeholders[i] = args.add(value)
	}

	var text string
	if len(columns) == 0 {
		text = "INSERT INTO " + d.quote(table.Name) + " DEFAULT VALUES"
	} else {
		text = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.quote(table.Name), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}
	if returning {
		text += " RETURNING " + d.quote(table.Key())
	}
	return sqlStatement{text: text, args: args.args}, nil
}

func (d dialect) update(table domain.Table, key any, fields map[string]any) (sqlStatement, error) {
	args := &argList{d: d}
	columns := without(sortedColumns(fields), table.Key())
	sets := make([]string, 0, len(columns))
	for _, column := range columns {
		value, err := d.encode(fields[column])
		if err != nil {
			return sqlStatement{}, fmt.Errorf("failed to encode %s: %w", column, err)
		}
		sets = append(sets, d.quote(column)+" = "+args.add(value))
	}
	if len(sets) == 0 {
		// Only the key is present; a self-assignment keeps the affected-row check meaningful.
		sets = append(sets, d.quote(table.Key())+" = "+d.quote(table.Key()))
	}
	text := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s", d.quote(table.Name), strings.Join(sets, ", "), d.quote(table.Key()), args.add(domain.NormalizeKey(key)))
	return sqlStatement{text: text, args: args.args}, nil
}

func (d dialect) delete(table domain.Table, key any) sqlStatement {
	args := &argList{d: d}
	text := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.quote(table.Name), d.quote(table.Key()), args.add(domain.NormalizeKey(key)))
	return sqlStatement{text: text, args: args.args}
}

// where renders a condition tree. An empty string means no filter.
func (d dialect) where(condition domain.Condition, args *argList) (string, error) {
	switch typed := domain.Normalize(condition).(type) {
	case nil:
		return "", nil
	case domain.Term:
		column := d.quote(typed.Field)
		switch typed.Op {
		case domain.OpIsNull:
			return column + " IS NULL", nil
		case domain.OpEq:
			if len(typed.Values) != 1 {
				return "", fmt.Errorf("equality on %s needs exactly one value", typed.Field)
			}
			value, err := d.encode(typed.Values[0])
			if err != nil {
				return "", err
			}
			return column + " = " + args.add(value), nil
		case domain.OpIn:
			if len(typed.Values) == 0 {
				return "1 = 0", nil
			}
			placeholders := make([]string, len(typed.Values))
			for i, v := range typed.Values {
				value, err := d.encode(v)
				if err != nil {
					return "", err
				}
				placeholders[i] = args.add(value)
			}
			return column + " IN (" + strings.Join(placeholders, ", ") + ")", nil
		}
		return "", fmt.Errorf("unsupported operator %q", typed.Op)
	case domain.Group:
		joiner := " AND "
		if typed.Logic == domain.LogicOr {
			joiner = " OR "
		}
		parts := make([]string, 0, len(typed.Conditions))
		for _, member := range typed.Conditions {
			part, err := d.where(member, args)
			if err != nil {
				return "", err
			}
			if part != "" {
				parts = append(parts, "("+part+")")
			}
		}
		return strings.Join(parts, joiner), nil
	default:
		return "", fmt.Errorf("unsupported condition %T", condition)
	}
}

func (d dialect) encode(value any) (any, error) {
	encoded, err := encodeValue(value)
	if err != nil || !d.textTime {
		return encoded, err
	}
	if t, ok := encoded.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	return encoded, nil
}

// encodeValue converts a field value into a driver argument. Nested structures are written
// as JSON text; references collapse to their key.
func encodeValue(value any) (any, error) {
	value = domain.StorageValue(value)
	switch typed := value.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return nil, err
		}
		return string(encoded), nil
	default:
		return value, nil
	}
}

func sortedColumns(fields map[string]any) []string {
	columns := make([]string, 0, len(fields))
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

func without(columns []string, drop string) []string {
	out := columns[:0:0]
	for _, c := range columns {
		if c != drop {
			out = append(out, c)
		}
	}
	return out
}
