package versioning

import (
	"time"

	"github.com/rpattn/entitykit/internal/domain"
)

// Normalize prepares a field map for a snapshot payload. Referenceable values anywhere in
// the tree become markers; a declared reference field holding a bare key becomes a marker
// when the field names its target type. Times are written as RFC 3339 text.
func Normalize(fields map[string]any, definitions []domain.FieldDefinition) map[string]any {
	refTypes := make(map[string]string)
	for _, def := range definitions {
		if def.IsReference() && def.ReferenceEntityType != "" {
			refTypes[def.Name] = def.ReferenceEntityType
		}
	}
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		if refType, ok := refTypes[name]; ok && value != nil {
			if _, isRef := value.(domain.Referenceable); !isRef {
				if _, isMarker := domain.ParseMarker(value); !isMarker {
					out[name] = domain.Reference{Type: refType, Key: value}.Marker()
					continue
				}
			}
		}
		out[name] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case domain.Referenceable:
		return typed.Reference().Marker()
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return value
	}
}
