package entity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/entitykit/internal/domain"
	schemavalidator "github.com/rpattn/entitykit/internal/schema/validator"
	"github.com/rpattn/entitykit/pkg/validator"
)

// ErrUnknownType is returned when an operation names an entity type that was never registered.
var ErrUnknownType = errors.New("unknown entity type")

// Method is a declared read accessor or operation, reachable through Entity.Call.
type Method func(ctx context.Context, e *Entity, args ...any) (any, error)

// TypeSpec declares an entity type once, at registration time. Table defaults to Name and
// PrimaryKey to "id". Extensions run before Hooks at every lifecycle point.
type TypeSpec struct {
	Name       string
	Table      string
	PrimaryKey string
	Fields     []domain.FieldDefinition
	Extensions []Extension
	Hooks      HookFuncs
	Methods    map[string]Method
	Rules      []validator.Rule
}

// Type is a registered, immutable entity type.
type Type struct {
	name       string
	table      domain.Table
	fields     []domain.FieldDefinition
	fieldIndex map[string]int
	accessors  map[string]accessor
	methods    map[string]Method
	extensions []Extension
	rules      *validator.RuleSet
}

// Name returns the logical type name.
func (t *Type) Name() string { return t.name }

// Table returns the storage location of the type.
func (t *Type) Table() domain.Table { return t.table }

// Fields returns the declared fields, including those contributed by extensions.
func (t *Type) Fields() []domain.FieldDefinition {
	out := make([]domain.FieldDefinition, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field looks up one declared field.
func (t *Type) Field(name string) (domain.FieldDefinition, bool) {
	idx, ok := t.fieldIndex[name]
	if !ok {
		return domain.FieldDefinition{}, false
	}
	return t.fields[idx], true
}

// HasField reports whether name is declared or is the primary key.
func (t *Type) HasField(name string) bool {
	if name == t.table.Key() {
		return true
	}
	_, ok := t.fieldIndex[name]
	return ok
}

// Schemaless types declare no fields and accept any attribute.
func (t *Type) schemaless() bool { return len(t.fields) == 0 }

// Extensions returns the extensions attached to the type, in run order.
func (t *Type) Extensions() []Extension {
	out := make([]Extension, len(t.extensions))
	copy(out, t.extensions)
	return out
}

// Methods lists the callable names of the type: declared methods and field accessors.
func (t *Type) Methods() []string {
	names := make([]string, 0, len(t.methods)+len(t.accessors))
	for name := range t.methods {
		names = append(names, name)
	}
	for name := range t.accessors {
		if _, shadowed := t.methods[name]; !shadowed {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Registry holds every registered entity type by name.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Type)}
}

// Register validates a spec and adds the type. Extension-declared fields and methods are
// merged in; a field declared by both the spec and an extension keeps the spec's definition.
func (r *Registry) Register(spec TypeSpec) (*Type, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("entity type name is required")
	}
	tableName := spec.Table
	if tableName == "" {
		tableName = spec.Name
	}

	t := &Type{
		name:       spec.Name,
		table:      domain.Table{Name: tableName, PrimaryKey: spec.PrimaryKey},
		fieldIndex: make(map[string]int),
		methods:    make(map[string]Method),
		extensions: append([]Extension(nil), spec.Extensions...),
	}

	addField := func(def domain.FieldDefinition) error {
		if def.Name == "" {
			return fmt.Errorf("type %s: field name is required", spec.Name)
		}
		if _, exists := t.fieldIndex[def.Name]; exists {
			return nil
		}
		t.fieldIndex[def.Name] = len(t.fields)
		t.fields = append(t.fields, def)
		return nil
	}
	for _, def := range spec.Fields {
		if _, exists := t.fieldIndex[def.Name]; exists {
			return nil, fmt.Errorf("type %s: field %s declared twice", spec.Name, def.Name)
		}
		if err := addField(def); err != nil {
			return nil, err
		}
	}

	for _, ext := range t.extensions {
		if declarer, ok := ext.(FieldDeclarer); ok {
			for _, def := range declarer.DeclareFields() {
				if err := addField(def); err != nil {
					return nil, err
				}
			}
		}
		if declarer, ok := ext.(MethodDeclarer); ok {
			for name, method := range declarer.DeclareMethods() {
				t.methods[name] = method
			}
		}
	}
	// Methods declared on the type itself win over extension methods.
	for name, method := range spec.Methods {
		t.methods[name] = method
	}
	if err := schemavalidator.ValidateFields(t.fields); err != nil {
		return nil, fmt.Errorf("type %s: %w", spec.Name, err)
	}
	if !spec.Hooks.empty() {
		t.extensions = append(t.extensions, spec.Hooks)
	}

	t.accessors = buildAccessors(t)

	rules, err := validator.CompileRules(spec.Rules...)
	if err != nil {
		return nil, fmt.Errorf("type %s: %w", spec.Name, err)
	}
	t.rules = rules

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[spec.Name]; exists {
		return nil, fmt.Errorf("entity type %s already registered", spec.Name)
	}
	r.types[spec.Name] = t
	return t, nil
}

// MustRegister is Register for package-level setup; it panics on an invalid spec.
func (r *Registry) MustRegister(spec TypeSpec) *Type {
	t, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns a registered type.
func (r *Registry) Lookup(name string) (*Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return t, nil
}

// Names lists registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
