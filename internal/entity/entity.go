package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/entitykit/internal/domain"
)

// Entity wraps one record of a registered type: a mutable field map plus identity.
// An entity is loaded only while it has a key and the row is known to exist.
type Entity struct {
	typ    *Type
	mgr    *Manager
	key    any
	loaded bool
	fields map[string]any
}

// Type returns the registered type of the entity.
func (e *Entity) Type() *Type { return e.typ }

// TypeName returns the logical type name.
func (e *Entity) TypeName() string { return e.typ.name }

// Table returns the storage location of the entity.
func (e *Entity) Table() domain.Table { return e.typ.table }

// Manager returns the manager the entity belongs to, for extensions that need nested operations.
func (e *Entity) Manager() *Manager { return e.mgr }

// Key returns the primary key, or nil for an unsaved entity.
func (e *Entity) Key() any { return e.key }

// KeyString renders the key for logs and version rows.
func (e *Entity) KeyString() string { return domain.FormatKey(e.key) }

// Loaded reports whether the entity has an identity backed by a stored row.
func (e *Entity) Loaded() bool { return e.loaded && e.key != nil }

// CheckLoaded guards loaded-only operations.
func (e *Entity) CheckLoaded(operation string) error {
	if !e.Loaded() {
		return &domain.NotLoadedError{EntityType: e.typ.name, Operation: operation}
	}
	return nil
}

// Reference identifies the entity by type and key, so entities can be assigned to reference
// fields and used in conditions directly.
func (e *Entity) Reference() domain.Reference {
	return domain.Reference{Type: e.typ.name, Key: e.key}
}

// Get returns a field value, or nil when the field is absent.
func (e *Entity) Get(name string) any {
	return e.fields[name]
}

// Has reports whether the field holds a non-null value.
func (e *Entity) Has(name string) bool {
	value, ok := e.fields[name]
	return ok && value != nil
}

// Set assigns a field, coercing the value to the declared field type. Undeclared fields are
// rejected unless the type is schemaless. The key of a loaded entity cannot change.
func (e *Entity) Set(name string, value any) error {
	if name == e.typ.table.Key() {
		if e.Loaded() && !domain.KeysEqual(value, e.key) {
			return fmt.Errorf("%s %s: primary key of a loaded entity cannot change", e.typ.name, e.KeyString())
		}
		e.fields[name] = domain.NormalizeKey(domain.StorageValue(value))
		return nil
	}
	def, declared := e.typ.Field(name)
	if !declared {
		if !e.typ.schemaless() {
			return &domain.UnknownAttributeError{EntityType: e.typ.name, Name: name}
		}
		e.fields[name] = value
		return nil
	}
	coerced, err := def.Coerce(value)
	if err != nil {
		return fmt.Errorf("%s: %w", e.typ.name, err)
	}
	e.fields[name] = coerced
	return nil
}

// Assign sets several fields, stopping at the first failure. Fields are applied in the
// type's declaration order so failures are deterministic.
func (e *Entity) Assign(values map[string]any) error {
	if value, ok := values[e.typ.table.Key()]; ok {
		if err := e.Set(e.typ.table.Key(), value); err != nil {
			return err
		}
	}
	for _, def := range e.typ.fields {
		if value, ok := values[def.Name]; ok {
			if err := e.Set(def.Name, value); err != nil {
				return err
			}
		}
	}
	for name, value := range values {
		if name == e.typ.table.Key() || e.typ.HasField(name) {
			continue
		}
		if err := e.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Unset removes a field from the map.
func (e *Entity) Unset(name string) {
	delete(e.fields, name)
}

// Fields returns a deep copy of the field map.
func (e *Entity) Fields() map[string]any {
	return domain.CopyFields(e.fields)
}

// Validate checks declared fields and the type's expression rules.
func (e *Entity) Validate() error {
	result := e.mgr.validator.ValidateProperties(e.fields, e.typ.fields)
	violations := result.Errors
	violations = append(violations, e.typ.rules.Evaluate(e.fields, e.mgr.clock())...)
	if len(violations) > 0 {
		return &domain.ValidationError{EntityType: e.typ.name, Violations: violations}
	}
	return nil
}

// Persist writes the full field map: PrePersist hooks, timestamp stamping, validation, the
// store write (insert when unloaded, update otherwise), a version snapshot, then PostPersist
// hooks. Failures before the store write abort; snapshot and PostPersist failures are logged.
func (e *Entity) Persist(ctx context.Context) error {
	if err := e.runHard(ctx, HookPrePersist); err != nil {
		return err
	}

	inserting := !e.Loaded()
	restore := e.stampTimestamps(inserting)

	if err := e.Validate(); err != nil {
		restore()
		return err
	}

	row := e.storageFields()
	if inserting {
		key, err := e.mgr.store.Insert(ctx, e.typ.table, row)
		if err != nil {
			restore()
			return fmt.Errorf("failed to persist %s: %w", e.typ.name, err)
		}
		e.key = domain.NormalizeKey(key)
		e.fields[e.typ.table.Key()] = e.key
		e.loaded = true
	} else {
		if err := e.mgr.store.Update(ctx, e.typ.table, e.key, row); err != nil {
			restore()
			return fmt.Errorf("failed to persist %s %s: %w", e.typ.name, e.KeyString(), err)
		}
	}

	if e.mgr.versions != nil {
		if _, err := e.mgr.versions.Snapshot(ctx, e); err != nil {
			e.mgr.logger.LogAttrs(ctx, slog.LevelError, "version snapshot failed",
				slog.String("entity_type", e.typ.name),
				slog.String("key", e.KeyString()),
				slog.Any("error", err),
			)
		}
	}

	e.runSoft(ctx, HookPostPersist)
	return nil
}

// stampTimestamps sets created_at (on insert, when unset) and updated_at for types declaring
// them. The returned func puts the previous values back after a failed write.
func (e *Entity) stampTimestamps(inserting bool) func() {
	type previous struct {
		value any
		set   bool
	}
	saved := map[string]previous{}
	stamp := func(name string, value any) {
		old, set := e.fields[name]
		saved[name] = previous{value: old, set: set}
		e.fields[name] = value
	}

	now := e.mgr.clock().UTC()
	if _, ok := e.typ.fieldIndex[domain.CreatedAtField]; ok && inserting && !e.Has(domain.CreatedAtField) {
		stamp(domain.CreatedAtField, now)
	}
	if _, ok := e.typ.fieldIndex[domain.UpdatedAtField]; ok {
		stamp(domain.UpdatedAtField, now)
	}

	return func() {
		for name, p := range saved {
			if p.set {
				e.fields[name] = p.value
			} else {
				delete(e.fields, name)
			}
		}
	}
}

// Remove deletes the row and clears identity. PreRemove and PostRemove hooks are cleanup
// hooks: their failures are logged and never block the delete. Version history is kept.
func (e *Entity) Remove(ctx context.Context) error {
	if err := e.CheckLoaded("remove"); err != nil {
		return err
	}
	e.runSoft(ctx, HookPreRemove)

	if err := e.mgr.store.Delete(ctx, e.typ.table, e.key); err != nil {
		return fmt.Errorf("failed to remove %s %s: %w", e.typ.name, e.KeyString(), err)
	}

	e.runSoft(ctx, HookPostRemove)
	e.key = nil
	e.loaded = false
	delete(e.fields, e.typ.table.Key())
	return nil
}

// Reset reloads the field map from the store, discarding unsaved changes. If the row has
// gone the entity becomes unloaded and a *domain.NotFoundError is returned.
func (e *Entity) Reset(ctx context.Context) error {
	if err := e.CheckLoaded("reset"); err != nil {
		return err
	}
	row, err := e.mgr.store.FetchByKey(ctx, e.typ.table, e.key)
	if err != nil {
		return fmt.Errorf("failed to reset %s %s: %w", e.typ.name, e.KeyString(), err)
	}
	if row == nil {
		missing := e.key
		e.key = nil
		e.loaded = false
		return &domain.NotFoundError{EntityType: e.typ.name, Key: missing}
	}
	return e.hydrate(*row)
}

// storageFields is the field map as written to the store: references collapse to keys and a
// nil key is left out so the store assigns one.
func (e *Entity) storageFields() map[string]any {
	row := make(map[string]any, len(e.fields))
	for name, value := range e.fields {
		row[name] = domain.StorageValue(value)
	}
	if domain.NormalizeKey(row[e.typ.table.Key()]) == nil {
		delete(row, e.typ.table.Key())
	}
	return row
}

// hydrate replaces the field map with a stored row, coercing declared fields.
func (e *Entity) hydrate(row domain.Row) error {
	if row.Table != e.typ.table.Name {
		return &domain.TypeMismatchError{EntityType: e.typ.name, ExpectedTable: e.typ.table.Name, ActualTable: row.Table}
	}
	key := row.Key(e.typ.table)
	if key == nil {
		return fmt.Errorf("%s row has no %s", e.typ.name, e.typ.table.Key())
	}
	fields := make(map[string]any, len(row.Fields))
	for name, raw := range row.Fields {
		def, declared := e.typ.Field(name)
		if !declared {
			fields[name] = raw
			continue
		}
		value, err := def.Coerce(raw)
		if err != nil {
			return fmt.Errorf("failed to hydrate %s %s: %w", e.typ.name, domain.FormatKey(key), err)
		}
		fields[name] = value
	}
	fields[e.typ.table.Key()] = key
	e.fields = fields
	e.key = key
	e.loaded = true
	return nil
}
