package extensions

import (
	"context"
	"fmt"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
)

// Parented arranges entities of one type in a tree through a parent reference.
type Parented struct {
	Field string
}

func (p Parented) field() string {
	if p.Field == "" {
		return "parent_id"
	}
	return p.Field
}

func (p Parented) Name() string { return "parented" }

func (p Parented) DeclareFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{{Name: p.field(), Type: domain.FieldTypeReference}}
}

func (p Parented) DeclareMethods() map[string]entity.Method {
	return map[string]entity.Method{
		"getChildren": func(ctx context.Context, e *entity.Entity, args ...any) (any, error) {
			children, err := p.Children(e)
			if err != nil {
				return nil, err
			}
			return children.Items(ctx)
		},
		"getParent": func(ctx context.Context, e *entity.Entity, args ...any) (any, error) {
			return p.Parent(ctx, e)
		},
	}
}

// Children returns the collection of direct children. The entity must be loaded.
func (p Parented) Children(e *entity.Entity) (*entity.Collection, error) {
	if err := e.CheckLoaded("children"); err != nil {
		return nil, err
	}
	return e.Manager().Collection(e.TypeName()).Where(domain.Eq(p.field(), e.Key())), nil
}

// Parent loads the parent entity, or returns nil for a root.
func (p Parented) Parent(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	key := domain.StorageValue(e.Get(p.field()))
	if domain.NormalizeKey(key) == nil {
		return nil, nil
	}
	return e.Manager().Load(ctx, e.TypeName(), key)
}

// PrePersist rejects an entity that names itself as parent.
func (p Parented) PrePersist(ctx context.Context, e *entity.Entity) error {
	parent := domain.StorageValue(e.Get(p.field()))
	if e.Key() != nil && parent != nil && domain.KeysEqual(parent, e.Key()) {
		return fmt.Errorf("%s %s cannot be its own parent", e.TypeName(), e.KeyString())
	}
	return nil
}

// PreRemove detaches the children so they become roots.
func (p Parented) PreRemove(ctx context.Context, e *entity.Entity) error {
	children, err := p.Children(e)
	if err != nil {
		return err
	}
	items, err := children.Items(ctx)
	if err != nil {
		return err
	}
	for _, child := range items {
		if err := child.Set(p.field(), nil); err != nil {
			return err
		}
		if err := child.Persist(ctx); err != nil {
			return err
		}
	}
	return nil
}
