package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FieldType represents the declared storage type of an entity field.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	// FieldTypeReference holds the primary key of another entity. ReferenceEntityType names
	// the referenced type; snapshots render the value as a reference marker.
	FieldTypeReference FieldType = "reference"
)

// Timestamp fields stamped on persist when a type declares them.
const (
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"
)

// FieldDefinition represents a declared field of an entity type.
type FieldDefinition struct {
	Name                string    `json:"name"`
	Type                FieldType `json:"type"`
	Required            bool      `json:"required"`
	Description         string    `json:"description,omitempty"`
	Default             any       `json:"default,omitempty"`
	ReferenceEntityType string    `json:"referenceEntityType,omitempty"`
}

// IsReference reports whether the field points at another entity.
func (f FieldDefinition) IsReference() bool {
	return f.Type == FieldTypeReference
}

// DefaultValue returns a copy of the declared default so callers cannot mutate the declaration.
func (f FieldDefinition) DefaultValue() any {
	return copyValue(f.Default)
}

// Coerce converts a raw value (as produced by a store driver or a JSON decode) into the
// canonical Go shape for the field type: int64, float64, bool, string, time.Time, or a
// decoded JSON structure. Nil passes through.
func (f FieldDefinition) Coerce(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldTypeString:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
		return nil, fmt.Errorf("field %s expects string, got %T", f.Name, value)
	case FieldTypeInteger:
		return coerceInteger(f.Name, value)
	case FieldTypeFloat:
		return coerceFloat(f.Name, value)
	case FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case int:
			return v != 0, nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("field %s expects boolean: %w", f.Name, err)
			}
			return parsed, nil
		}
		return nil, fmt.Errorf("field %s expects boolean, got %T", f.Name, value)
	case FieldTypeTimestamp:
		return coerceTimestamp(f.Name, value)
	case FieldTypeJSON:
		switch v := value.(type) {
		case []byte:
			return decodeJSONValue(f.Name, v)
		case json.RawMessage:
			return decodeJSONValue(f.Name, v)
		case string:
			trimmed := strings.TrimSpace(v)
			if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				return decodeJSONValue(f.Name, []byte(trimmed))
			}
			return v, nil
		}
		return value, nil
	case FieldTypeReference:
		if ref, ok := value.(Referenceable); ok {
			target := ref.Reference()
			return Reference{Type: target.Type, Key: NormalizeKey(target.Key)}, nil
		}
		if marker, ok := ParseMarker(value); ok {
			return marker, nil
		}
		key := NormalizeKey(value)
		if f.ReferenceEntityType == "" {
			return key, nil
		}
		return Reference{Type: f.ReferenceEntityType, Key: key}, nil
	default:
		return value, nil
	}
}

func coerceInteger(name string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s expects integer: %w", name, err)
		}
		return parsed, nil
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("field %s expects integer, got fractional %v", name, v)
		}
		return int64(v), nil
	case float32:
		return coerceInteger(name, float64(v))
	case bool:
		return nil, fmt.Errorf("field %s expects integer, got bool", name)
	}
	normalized := NormalizeKey(value)
	if i, ok := normalized.(int64); ok {
		return i, nil
	}
	return nil, fmt.Errorf("field %s expects integer, got %T", name, value)
}

func coerceFloat(name string, value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("field %s expects float: %w", name, err)
		}
		return parsed, nil
	}
	return nil, fmt.Errorf("field %s expects float, got %T", name, value)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func coerceTimestamp(name string, value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return v.UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed.UTC(), nil
			}
		}
		return nil, fmt.Errorf("field %s expects timestamp, got %q", name, v)
	}
	return nil, fmt.Errorf("field %s expects timestamp, got %T", name, value)
}

func decodeJSONValue(name string, raw []byte) (any, error) {
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("field %s holds invalid json: %w", name, err)
	}
	return out, nil
}
