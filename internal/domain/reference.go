package domain

import "fmt"

// Marker keys used in snapshot payloads for cross-entity references.
const (
	MarkerClassKey = "__class"
	MarkerKeyKey   = "__primaryKey"
)

// Reference points at another entity by type and primary key. Snapshots store references
// as markers instead of nested payloads, which keeps them bounded and cycle-free.
type Reference struct {
	Type string
	Key  any
}

// Referenceable is implemented by values that stand for another entity (loaded entities,
// typed wrappers). Snapshot normalization and store writes collapse them to a Reference.
type Referenceable interface {
	Reference() Reference
}

// Reference lets a Reference satisfy Referenceable.
func (r Reference) Reference() Reference { return r }

// Marker returns the snapshot form {"__class": type, "__primaryKey": key}.
func (r Reference) Marker() map[string]any {
	return map[string]any{
		MarkerClassKey: r.Type,
		MarkerKeyKey:   NormalizeKey(r.Key),
	}
}

// String renders the reference as "<type>#<primaryKey>".
func (r Reference) String() string {
	return fmt.Sprintf("%s#%s", r.Type, FormatKey(r.Key))
}

// ParseMarker recognizes the marker form. A map qualifies only when it holds exactly the two
// marker keys and the class is a non-empty string.
func ParseMarker(value any) (Reference, bool) {
	m, ok := value.(map[string]any)
	if !ok || len(m) != 2 {
		return Reference{}, false
	}
	class, ok := m[MarkerClassKey].(string)
	if !ok || class == "" {
		return Reference{}, false
	}
	key, ok := m[MarkerKeyKey]
	if !ok {
		return Reference{}, false
	}
	return Reference{Type: class, Key: NormalizeKey(key)}, true
}

// StorageValue collapses references to the key that is written to a row. Other values pass through.
func StorageValue(value any) any {
	if ref, ok := value.(Referenceable); ok {
		return NormalizeKey(ref.Reference().Key)
	}
	return value
}
