package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/entitykit/internal/domain"
)

var knownFieldTypes = map[domain.FieldType]struct{}{
	"":                        {},
	domain.FieldTypeString:    {},
	domain.FieldTypeInteger:   {},
	domain.FieldTypeFloat:     {},
	domain.FieldTypeBoolean:   {},
	domain.FieldTypeTimestamp: {},
	domain.FieldTypeJSON:      {},
	domain.FieldTypeReference: {},
}

// ValidateFields checks a type's field declarations before registration. Names must be
// usable as diff paths and columns, only reference fields may name a target type, and a
// declared default must coerce to the field type.
func ValidateFields(fields []domain.FieldDefinition) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if err := validateName(field.Name); err != nil {
			return err
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("field %s declared twice", field.Name)
		}
		seen[field.Name] = struct{}{}
		if _, ok := knownFieldTypes[field.Type]; !ok {
			return fmt.Errorf("field %s has unknown type %s", field.Name, field.Type)
		}

		trimmedRefType := strings.TrimSpace(field.ReferenceEntityType)
		if trimmedRefType != "" && !field.IsReference() {
			return fmt.Errorf("field %s cannot declare referenceEntityType because type %s does not support references", field.Name, field.Type)
		}
		if trimmedRefType != field.ReferenceEntityType {
			return fmt.Errorf("field %s has a padded referenceEntityType %q", field.Name, field.ReferenceEntityType)
		}
		if field.Default != nil {
			if _, err := field.Coerce(field.DefaultValue()); err != nil {
				return fmt.Errorf("field %s has an invalid default: %w", field.Name, err)
			}
		}
	}
	return nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("field name is required")
	}
	if strings.HasPrefix(name, "__") {
		return fmt.Errorf("field %s: names starting with __ are reserved", name)
	}
	if strings.ContainsAny(name, " \t\n.[]*") {
		return fmt.Errorf("field %q contains characters reserved for field paths", name)
	}
	return nil
}
