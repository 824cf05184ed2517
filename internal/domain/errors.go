package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks. Every typed error below unwraps to one of these.
var (
	ErrNotFound         = errors.New("entity not found")
	ErrNotLoaded        = errors.New("entity not loaded")
	ErrTypeMismatch     = errors.New("entity type mismatch")
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrCorruptSnapshot  = errors.New("corrupt snapshot")
	ErrValidation       = errors.New("validation failed")
)

// NotFoundError reports that no row exists at the requested key or condition.
type NotFoundError struct {
	EntityType string
	Key        any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.EntityType, FormatKey(e.Key), ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotLoadedError is a precondition violation: a loaded-only operation was called on an unloaded entity.
type NotLoadedError struct {
	EntityType string
	Operation  string
}

func (e *NotLoadedError) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("%s: %v", e.EntityType, ErrNotLoaded)
	}
	return fmt.Sprintf("%s.%s: %v", e.EntityType, e.Operation, ErrNotLoaded)
}

func (e *NotLoadedError) Unwrap() error { return ErrNotLoaded }

// TypeMismatchError is returned when a row fetched from one table is wrapped by a type declared for another.
type TypeMismatchError struct {
	EntityType    string
	ExpectedTable string
	ActualTable   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s expects table %q, row came from %q: %v", e.EntityType, e.ExpectedTable, e.ActualTable, ErrTypeMismatch)
}

func (e *TypeMismatchError) Unwrap() error { return ErrTypeMismatch }

// UnknownAttributeError is returned by accessor dispatch when neither a field nor a declared method matches.
type UnknownAttributeError struct {
	EntityType string
	Name       string
}

func (e *UnknownAttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %q: %v", e.EntityType, e.Name, ErrUnknownAttribute)
}

func (e *UnknownAttributeError) Unwrap() error { return ErrUnknownAttribute }

// InvalidConditionError is returned when a collection condition or ordering references an undeclared field.
type InvalidConditionError struct {
	EntityType string
	Field      string
	Reason     string
}

func (e *InvalidConditionError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown field"
	}
	return fmt.Sprintf("%s condition on %q: %s: %v", e.EntityType, e.Field, reason, ErrInvalidCondition)
}

func (e *InvalidConditionError) Unwrap() error { return ErrInvalidCondition }

// CorruptSnapshotError is returned when a stored snapshot payload cannot be decoded.
type CorruptSnapshotError struct {
	VersionID string
	Err       error
}

func (e *CorruptSnapshotError) Error() string {
	return fmt.Sprintf("snapshot %s: %v: %v", e.VersionID, ErrCorruptSnapshot, e.Err)
}

func (e *CorruptSnapshotError) Unwrap() []error { return []error{ErrCorruptSnapshot, e.Err} }

// FieldViolation describes one failed validation check.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationError aggregates every violation found while validating an entity.
type ValidationError struct {
	EntityType string
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Field == "" {
			parts = append(parts, v.Message)
			continue
		}
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("%s: %v: %s", e.EntityType, ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
