// Package extensions holds lifecycle extensions that entity types compose at registration.
package extensions

import (
	"context"
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
)

// RewriteType is the entity type holding URL rewrite records.
const RewriteType = "rewrite"

// Rewrite record fields.
const (
	RewriteRequestPath = "request_path"
	RewriteTargetType  = "target_type"
	RewriteTargetKey   = "target_key"
)

// RegisterRewrite registers the rewrite type that WebVisible maintains.
func RegisterRewrite(registry *entity.Registry) (*entity.Type, error) {
	return registry.Register(entity.TypeSpec{
		Name:  RewriteType,
		Table: "rewrites",
		Fields: []domain.FieldDefinition{
			{Name: RewriteRequestPath, Type: domain.FieldTypeString, Required: true},
			{Name: RewriteTargetType, Type: domain.FieldTypeString, Required: true},
			{Name: RewriteTargetKey, Type: domain.FieldTypeString, Required: true},
		},
	})
}

// WebVisible gives an entity a slug and a canonical URL backed by a rewrite record.
type WebVisible struct {
	Prefix      string
	SourceField string
	SlugField   string
}

func (w WebVisible) sourceField() string {
	if w.SourceField == "" {
		return "name"
	}
	return w.SourceField
}

func (w WebVisible) slugField() string {
	if w.SlugField == "" {
		return "slug"
	}
	return w.SlugField
}

func (w WebVisible) Name() string { return "webvisible" }

func (w WebVisible) DeclareFields() []domain.FieldDefinition {
	return []domain.FieldDefinition{{Name: w.slugField(), Type: domain.FieldTypeString}}
}

func (w WebVisible) DeclareMethods() map[string]entity.Method {
	return map[string]entity.Method{
		"getUrl": func(ctx context.Context, e *entity.Entity, args ...any) (any, error) {
			return w.URL(e)
		},
	}
}

// URL returns the canonical path of the entity.
func (w WebVisible) URL(e *entity.Entity) (string, error) {
	slug, _ := entity.Value[string](e, w.slugField())
	if slug == "" {
		return "", fmt.Errorf("%s %s has no slug", e.TypeName(), e.KeyString())
	}
	return path.Join("/", w.Prefix, slug), nil
}

// PrePersist derives the slug from the source field when it is empty. A derived slug whose
// path belongs to another entity gets a numeric suffix ("acme-2"); an explicit one is rejected.
func (w WebVisible) PrePersist(ctx context.Context, e *entity.Entity) error {
	if current, _ := entity.Value[string](e, w.slugField()); current != "" {
		taken, err := w.pathTaken(ctx, e, path.Join("/", w.Prefix, current))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("slug %q is already used by another entity", current)
		}
		return nil
	}
	source, _ := entity.Value[string](e, w.sourceField())
	base := Slugify(source)
	if base == "" {
		return fmt.Errorf("cannot derive a slug: %s is empty", w.sourceField())
	}
	slug := base
	for n := 2; ; n++ {
		taken, err := w.pathTaken(ctx, e, path.Join("/", w.Prefix, slug))
		if err != nil {
			return err
		}
		if !taken {
			break
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
	return e.Set(w.slugField(), slug)
}

// PostPersist creates or updates the rewrite record pointing at the entity.
func (w WebVisible) PostPersist(ctx context.Context, e *entity.Entity) error {
	requestPath, err := w.URL(e)
	if err != nil {
		return err
	}
	rewrite, err := w.findRewrite(ctx, e)
	if err != nil {
		return err
	}
	if rewrite == nil {
		if rewrite, err = e.Manager().New(RewriteType); err != nil {
			return err
		}
	}
	if err := rewrite.Assign(map[string]any{
		RewriteRequestPath: requestPath,
		RewriteTargetType:  e.TypeName(),
		RewriteTargetKey:   e.KeyString(),
	}); err != nil {
		return err
	}
	return rewrite.Persist(ctx)
}

// PreRemove deletes the rewrite record. A missing record is not an error.
func (w WebVisible) PreRemove(ctx context.Context, e *entity.Entity) error {
	rewrite, err := w.findRewrite(ctx, e)
	if err != nil || rewrite == nil {
		return err
	}
	return rewrite.Remove(ctx)
}

// pathTaken reports whether a rewrite for requestPath points at something other than e.
func (w WebVisible) pathTaken(ctx context.Context, e *entity.Entity, requestPath string) (bool, error) {
	rewrite, err := e.Manager().Collection(RewriteType).Where(domain.Eq(RewriteRequestPath, requestPath)).GetFirst(ctx)
	if err != nil || rewrite == nil {
		return false, err
	}
	targetType, _ := entity.Value[string](rewrite, RewriteTargetType)
	targetKey, _ := entity.Value[string](rewrite, RewriteTargetKey)
	return targetType != e.TypeName() || targetKey != e.KeyString(), nil
}

func (w WebVisible) findRewrite(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return e.Manager().Collection(RewriteType).Where(domain.Match{
		RewriteTargetType: e.TypeName(),
		RewriteTargetKey:  e.KeyString(),
	}).GetFirst(ctx)
}

// Slugify lowercases s, strips diacritics and joins alphanumeric runs with hyphens:
// "Crème Brûlée Café" becomes "creme-brulee-cafe".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
