package extensions

import (
	"context"
	"fmt"

	"github.com/rpattn/entitykit/internal/auth"
	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
	"github.com/rpattn/entitykit/internal/entityloader"
)

// Ownable ties an entity to the user that owns it.
type Ownable struct {
	Field     string
	OwnerType string
}

func (o Ownable) field() string {
	if o.Field == "" {
		return "owner_id"
	}
	return o.Field
}

func (o Ownable) ownerType() string {
	if o.OwnerType == "" {
		return "user"
	}
	return o.OwnerType
}

func (o Ownable) Name() string { return "ownable" }

func (o Ownable) DeclareFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{{Name: o.field(), Type: domain.FieldTypeReference, ReferenceEntityType: o.ownerType()}}
}

func (o Ownable) DeclareMethods() map[string]entity.Method {
	return map[string]entity.Method{
		"getOwner": func(ctx context.Context, e *entity.Entity, args ...any) (any, error) {
			return o.Owner(ctx, e)
		},
	}
}

// PrePersist assigns the acting user as owner of new entities and rejects writes to an
// entity owned by someone else.
func (o Ownable) PrePersist(ctx context.Context, e *entity.Entity) error {
	if !e.Has(o.field()) {
		if user, ok := auth.UserFromContext(ctx); ok {
			return e.Set(o.field(), domain.Reference{Type: o.ownerType(), Key: user})
		}
		return nil
	}
	return auth.EnforceOwner(ctx, domain.StorageValue(e.Get(o.field())))
}

// Owner resolves the owning entity. It goes through the request's entity loader when one is
// attached to the context, so listing many owned entities costs one owner query.
func (o Ownable) Owner(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	key := domain.StorageValue(e.Get(o.field()))
	if domain.NormalizeKey(key) == nil {
		return nil, fmt.Errorf("%s %s has no owner", e.TypeName(), e.KeyString())
	}
	if loader := entityloader.FromContext(ctx); loader != nil {
		return loader.Load(ctx, o.ownerType(), key)
	}
	return e.Manager().Load(ctx, o.ownerType(), key)
}
