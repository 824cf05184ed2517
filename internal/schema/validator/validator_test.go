package validator

import (
	"testing"

	"github.com/rpattn/entitykit/internal/domain"
)

func TestValidateFields_AllowsReferenceFields(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString},
		{Name: "owner_id", Type: domain.FieldTypeReference, ReferenceEntityType: "user"},
		{Name: "parent_id", Type: domain.FieldTypeReference},
	}

	if err := ValidateFields(fields); err != nil {
		t.Fatalf("expected validation to pass, got error: %v", err)
	}
}

func TestValidateFields_RejectsDuplicates(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "name", Type: domain.FieldTypeString},
		{Name: "name", Type: domain.FieldTypeString},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected duplicate field to be rejected")
	}
}

func TestValidateFields_RejectsReferenceTypeOnScalar(t *testing.T) {
	fields := []domain.FieldDefinition{
		{Name: "owner", Type: domain.FieldTypeString, ReferenceEntityType: "user"},
	}

	if err := ValidateFields(fields); err == nil {
		t.Fatalf("expected error for referenceEntityType on a string field")
	}
}

func TestValidateFields_RejectsPathCharacters(t *testing.T) {
	for _, name := range []string{"address.city", "items[0]", "__class", " ", "a b"} {
		if err := ValidateFields([]domain.FieldDefinition{{Name: name, Type: domain.FieldTypeString}}); err == nil {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
}

func TestValidateFields_UnknownTypeAndBadDefault(t *testing.T) {
	if err := ValidateFields([]domain.FieldDefinition{{Name: "x", Type: "ENTITY_ID"}}); err == nil {
		t.Fatalf("expected unknown type to be rejected")
	}
	if err := ValidateFields([]domain.FieldDefinition{{Name: "qty", Type: domain.FieldTypeInteger, Default: "many"}}); err == nil {
		t.Fatalf("expected invalid default to be rejected")
	}
	if err := ValidateFields([]domain.FieldDefinition{{Name: "qty", Type: domain.FieldTypeInteger, Default: 3}}); err != nil {
		t.Fatalf("expected valid default to pass, got %v", err)
	}
}
