package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VersionSnapshot is an immutable capture of an entity's field map at persist time.
// Payload is the serialized field map with cross-entity references replaced by markers;
// Fields is its decoded form, filled in by the version store when reading.
type VersionSnapshot struct {
	ID         uuid.UUID       `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityKey  string          `json:"entity_key"`
	Sequence   int64           `json:"sequence"`
	CreatedAt  time.Time       `json:"created_at"`
	Payload    json.RawMessage `json:"fields"`
	Fields     map[string]any  `json:"-"`
}

// DecodeFields parses Payload into a field map. Numbers decode as float64, matching what
// every reader of the payload sees.
func (s VersionSnapshot) DecodeFields() (map[string]any, error) {
	var fields map[string]any
	if len(s.Payload) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(s.Payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// Label is a short human-readable identifier used in diff headers.
func (s VersionSnapshot) Label() string {
	return s.EntityType + "#" + s.EntityKey + "@" + s.CreatedAt.UTC().Format(time.RFC3339)
}
