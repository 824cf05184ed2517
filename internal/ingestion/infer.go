package ingestion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/entitykit/internal/domain"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006/01/02",
	"01/02/2006",
}

// InferFields profiles every column and returns one field definition per header. A column
// is required when every row has a value.
func InferFields(table Table) []domain.FieldDefinition {
	definitions := make([]domain.FieldDefinition, 0, len(table.Headers))
	for idx, header := range table.Headers {
		fieldType, required := profileColumn(idx, table.Rows)
		definitions = append(definitions, domain.FieldDefinition{
			Name:     header,
			Type:     fieldType,
			Required: required,
		})
	}
	return definitions
}

func applyOverrides(fields []domain.FieldDefinition, overrides map[string]domain.FieldType) []domain.FieldDefinition {
	if len(overrides) == 0 {
		return fields
	}
	out := make([]domain.FieldDefinition, len(fields))
	for idx, field := range fields {
		if override, ok := overrides[field.Name]; ok && override != "" {
			field.Type = override
		}
		out[idx] = field
	}
	return out
}

func profileColumn(col int, rows [][]string) (domain.FieldType, bool) {
	isBool, isInt, isFloat, isTimestamp, isJSON := true, true, true, true, true
	allPresent := true
	hasValue := false

	for _, row := range rows {
		value := ""
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		if value == "" {
			allPresent = false
			continue
		}
		hasValue = true

		isBool = isBool && looksLikeBool(value)
		isInt = isInt && looksLikeInt(value)
		isFloat = isFloat && looksLikeFloat(value)
		isTimestamp = isTimestamp && looksLikeTimestamp(value)
		isJSON = isJSON && looksLikeJSON(value)
	}

	required := allPresent && hasValue
	switch {
	case !hasValue:
		return domain.FieldTypeString, false
	case isBool:
		return domain.FieldTypeBoolean, required
	case isInt:
		return domain.FieldTypeInteger, required
	case isFloat:
		return domain.FieldTypeFloat, required
	case isTimestamp:
		return domain.FieldTypeTimestamp, required
	case isJSON:
		return domain.FieldTypeJSON, required
	default:
		return domain.FieldTypeString, required
	}
}

// Booleans are words only; 1/0 columns profile as integers.
func looksLikeBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func looksLikeTimestamp(value string) bool {
	_, err := parseTimestamp(value)
	return err == nil
}

func looksLikeJSON(value string) bool {
	if !strings.HasPrefix(value, "{") && !strings.HasPrefix(value, "[") {
		return false
	}
	return json.Valid([]byte(value))
}

func fieldTypesCompatible(existing, detected domain.FieldType) bool {
	switch {
	case existing == detected:
		return true
	case existing == domain.FieldTypeFloat && detected == domain.FieldTypeInteger:
		return true
	case existing == domain.FieldTypeString, existing == domain.FieldTypeReference:
		return true
	case existing == domain.FieldTypeJSON:
		return true
	}
	return false
}

// coerceCell converts one trimmed, non-empty cell to the canonical value for a field type.
func coerceCell(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to float", raw)
		}
		return f, nil
	case domain.FieldTypeBoolean:
		switch strings.ToLower(raw) {
		case "1", "yes", "y", "true":
			return true, nil
		case "0", "no", "n", "false":
			return false, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
	case domain.FieldTypeTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts, nil
	case domain.FieldTypeJSON:
		if !looksLikeJSON(raw) {
			return raw, nil
		}
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("invalid json payload: %w", err)
		}
		return out, nil
	case domain.FieldTypeReference:
		return parseKey(raw), nil
	default:
		return raw, nil
	}
}

// parseKey reads a key cell: whole numbers become int64, anything else stays a string.
func parseKey(raw string) any {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	return raw
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
