package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/entitykit/internal/domain"
)

// FieldValidator checks an entity's field map against its declared field definitions
type FieldValidator struct{}

// NewFieldValidator creates a new field validator
func NewFieldValidator() *FieldValidator {
	return &FieldValidator{}
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool                    `json:"is_valid"`
	Errors   []domain.FieldViolation `json:"errors"`
	Warnings []domain.FieldViolation `json:"warnings"`
}

// ValidateProperties validates entity properties against field definitions. Properties that
// are not declared are reported as warnings, since stores may carry extra columns.
func (fv *FieldValidator) ValidateProperties(properties map[string]any, definitions []domain.FieldDefinition) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []domain.FieldViolation{},
		Warnings: []domain.FieldViolation{},
	}

	declared := make(map[string]struct{}, len(definitions))
	for _, def := range definitions {
		declared[def.Name] = struct{}{}
		value, exists := properties[def.Name]

		if def.Required && (!exists || value == nil) {
			result.IsValid = false
			result.Errors = append(result.Errors, domain.FieldViolation{
				Field:   def.Name,
				Message: fmt.Sprintf("required field '%s' is missing", def.Name),
			})
			continue
		}

		if !exists || value == nil {
			continue
		}

		if err := fv.validateFieldType(def, value); err != nil {
			result.IsValid = false
			result.Errors = append(result.Errors, domain.FieldViolation{
				Field:   def.Name,
				Message: err.Error(),
				Value:   value,
			})
		}
	}

	for name, value := range properties {
		if _, ok := declared[name]; !ok {
			result.Warnings = append(result.Warnings, domain.FieldViolation{
				Field:   name,
				Message: fmt.Sprintf("property '%s' is not defined in schema", name),
				Value:   value,
			})
		}
	}

	return result
}

// validateFieldType validates the type of a field value
func (fv *FieldValidator) validateFieldType(def domain.FieldDefinition, value any) error {
	switch def.Type {
	case domain.FieldTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field '%s' must be a string, got %T", def.Name, value)
		}
	case domain.FieldTypeInteger:
		if !fv.isInteger(value) {
			return fmt.Errorf("field '%s' must be an integer, got %T", def.Name, value)
		}
	case domain.FieldTypeFloat:
		if !fv.isFloat(value) {
			return fmt.Errorf("field '%s' must be a float, got %T", def.Name, value)
		}
	case domain.FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field '%s' must be a boolean, got %T", def.Name, value)
		}
	case domain.FieldTypeTimestamp:
		switch v := value.(type) {
		case time.Time:
		case string:
			if _, err := time.Parse(time.RFC3339, v); err != nil {
				return fmt.Errorf("field '%s' must be a valid timestamp (RFC3339): %v", def.Name, err)
			}
		default:
			return fmt.Errorf("field '%s' must be a timestamp, got %T", def.Name, value)
		}
	case domain.FieldTypeJSON:
		if _, err := json.Marshal(value); err != nil {
			return fmt.Errorf("field '%s' contains invalid JSON: %v", def.Name, err)
		}
	case domain.FieldTypeReference:
		return fv.validateReference(def, value)
	case "":
		// Untyped fields accept anything the store can hold.
	default:
		return fmt.Errorf("unknown field type: %s", def.Type)
	}
	return nil
}

func (fv *FieldValidator) validateReference(def domain.FieldDefinition, value any) error {
	if ref, ok := value.(domain.Referenceable); ok {
		target := ref.Reference()
		if target.Key == nil {
			return fmt.Errorf("field '%s' references an unsaved %s", def.Name, target.Type)
		}
		if def.ReferenceEntityType != "" && target.Type != def.ReferenceEntityType {
			return fmt.Errorf("field '%s' must reference %s, got %s", def.Name, def.ReferenceEntityType, target.Type)
		}
		return nil
	}
	if marker, ok := domain.ParseMarker(value); ok {
		if def.ReferenceEntityType != "" && marker.Type != def.ReferenceEntityType {
			return fmt.Errorf("field '%s' must reference %s, got %s", def.Name, def.ReferenceEntityType, marker.Type)
		}
		return nil
	}
	switch key := domain.NormalizeKey(value).(type) {
	case int64:
		return nil
	case string:
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("field '%s' must be a non-empty reference key", def.Name)
		}
		return nil
	}
	return fmt.Errorf("field '%s' must be a reference key, got %T", def.Name, value)
}

// Helper methods for type checking
func (fv *FieldValidator) isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v)
	case string:
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	default:
		return false
	}
}

func (fv *FieldValidator) isFloat(value any) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}
