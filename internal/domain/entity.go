package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// DefaultPrimaryKey is the key column used when a type does not declare one.
const DefaultPrimaryKey = "id"

// Table names a storage location and its primary-key column.
type Table struct {
	Name       string
	PrimaryKey string
}

// Key returns the primary-key column, falling back to DefaultPrimaryKey.
func (t Table) Key() string {
	if t.PrimaryKey == "" {
		return DefaultPrimaryKey
	}
	return t.PrimaryKey
}

// Row is one record as returned by a RowStore, tagged with the table it came from.
type Row struct {
	Table  string
	Fields map[string]any
}

// Key extracts the normalized primary key of the row.
func (r Row) Key(table Table) any {
	if r.Fields == nil {
		return nil
	}
	return NormalizeKey(r.Fields[table.Key()])
}

// NormalizeKey folds the many numeric shapes a key can arrive in (driver ints, JSON floats,
// json.Number, numeric strings are left alone) into int64 so keys compare by value.
func NormalizeKey(key any) any {
	switch k := key.(type) {
	case nil:
		return nil
	case int:
		return int64(k)
	case int8:
		return int64(k)
	case int16:
		return int64(k)
	case int32:
		return int64(k)
	case int64:
		return k
	case uint:
		return int64(k)
	case uint8:
		return int64(k)
	case uint16:
		return int64(k)
	case uint32:
		return int64(k)
	case uint64:
		return int64(k)
	case float32:
		if f := float64(k); f == math.Trunc(f) {
			return int64(f)
		}
		return float64(k)
	case float64:
		if k == math.Trunc(k) {
			return int64(k)
		}
		return k
	case json.Number:
		if i, err := k.Int64(); err == nil {
			return i
		}
		return k.String()
	case []byte:
		return string(k)
	default:
		return k
	}
}

// FormatKey renders a key for messages, version-store rows and reference labels.
func FormatKey(key any) string {
	switch k := NormalizeKey(key).(type) {
	case nil:
		return "<new>"
	case int64:
		return strconv.FormatInt(k, 10)
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case string:
		return k
	default:
		return fmt.Sprintf("%v", k)
	}
}

// KeysEqual compares two keys after normalization.
func KeysEqual(a, b any) bool {
	na, nb := NormalizeKey(a), NormalizeKey(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	return FormatKey(na) == FormatKey(nb)
}

// CopyFields makes a deep copy of a field map; nested maps and slices are copied too.
func CopyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CopyFields(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = copyValue(item)
		}
		return out
	default:
		return value
	}
}
