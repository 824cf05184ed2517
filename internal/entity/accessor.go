package entity

import (
	"context"
	"reflect"
	"strings"
	"unicode"

	"github.com/rpattn/entitykit/internal/domain"
)

type accessorKind int

const (
	accessorGet accessorKind = iota
	accessorSet
	accessorHas
)

// accessor is one entry of a type's accessor table: "getFooBar" → (get, "foo_bar").
type accessor struct {
	kind  accessorKind
	field string
}

// buildAccessors derives the get/set/has table from the declared fields and the primary key.
func buildAccessors(t *Type) map[string]accessor {
	names := make([]string, 0, len(t.fields)+1)
	names = append(names, t.table.Key())
	for _, def := range t.fields {
		names = append(names, def.Name)
	}
	table := make(map[string]accessor, len(names)*3)
	for _, name := range names {
		pascal := pascalCase(name)
		table["get"+pascal] = accessor{kind: accessorGet, field: name}
		table["set"+pascal] = accessor{kind: accessorSet, field: name}
		table["has"+pascal] = accessor{kind: accessorHas, field: name}
	}
	return table
}

// Call is the single dynamic dispatcher. Declared methods win; otherwise the name is looked up
// in the accessor table. Schemaless types fall back to splitting the name, so generic callers
// can still reach stored columns. Set returns the entity itself.
func (e *Entity) Call(ctx context.Context, name string, args ...any) (any, error) {
	if method, ok := e.typ.methods[name]; ok {
		return method(ctx, e, args...)
	}
	acc, ok := e.typ.accessors[name]
	if !ok && e.typ.schemaless() {
		acc, ok = parseAccessor(name)
	}
	if !ok {
		return nil, &domain.UnknownAttributeError{EntityType: e.typ.name, Name: name}
	}

	switch acc.kind {
	case accessorGet:
		return e.Get(acc.field), nil
	case accessorHas:
		return e.Has(acc.field), nil
	default:
		if len(args) != 1 {
			return nil, &domain.UnknownAttributeError{EntityType: e.typ.name, Name: name + " (expects one argument)"}
		}
		if err := e.Set(acc.field, args[0]); err != nil {
			return nil, err
		}
		return e, nil
	}
}

func parseAccessor(name string) (accessor, bool) {
	for prefix, kind := range map[string]accessorKind{"get": accessorGet, "set": accessorSet, "has": accessorHas} {
		rest, found := strings.CutPrefix(name, prefix)
		if !found || rest == "" || !unicode.IsUpper(rune(rest[0])) {
			continue
		}
		return accessor{kind: kind, field: snakeCase(rest)}, true
	}
	return accessor{}, false
}

// pascalCase turns "shipping_address" into "ShippingAddress".
func pascalCase(field string) string {
	var b strings.Builder
	for _, part := range strings.Split(field, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// snakeCase turns "ShippingAddress" into "shipping_address".
func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Value reads a field as T. Numeric values convert between Go numeric kinds; anything else
// must already have type T. The boolean is false when the field is absent, null or not
// convertible.
func Value[T any](e *Entity, field string) (T, bool) {
	var zero T
	raw := e.Get(field)
	if raw == nil {
		return zero, false
	}
	if typed, ok := raw.(T); ok {
		return typed, true
	}
	target := reflect.TypeOf((*T)(nil)).Elem()
	source := reflect.ValueOf(raw)
	if isNumericKind(source.Kind()) && isNumericKind(target.Kind()) {
		return source.Convert(target).Interface().(T), true
	}
	return zero, false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
