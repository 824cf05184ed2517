package entity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rpattn/entitykit/internal/domain"
)

// Hook names the four lifecycle extension points.
type Hook string

const (
	HookPrePersist  Hook = "PrePersist"
	HookPostPersist Hook = "PostPersist"
	HookPreRemove   Hook = "PreRemove"
	HookPostRemove  Hook = "PostRemove"
)

// Extension is an independent unit attached to entity types at registration. It takes part
// in any of the lifecycle points by also implementing PrePersister, PostPersister,
// PreRemover or PostRemover, and may contribute fields and methods.
type Extension interface {
	Name() string
}

type PrePersister interface {
	PrePersist(ctx context.Context, e *Entity) error
}

type PostPersister interface {
	PostPersist(ctx context.Context, e *Entity) error
}

type PreRemover interface {
	PreRemove(ctx context.Context, e *Entity) error
}

type PostRemover interface {
	PostRemove(ctx context.Context, e *Entity) error
}

// FieldDeclarer lets an extension add the fields it relies on to every type it is attached to.
type FieldDeclarer interface {
	DeclareFields() []domain.FieldDefinition
}

// MethodDeclarer lets an extension add read accessors such as "getOwner".
type MethodDeclarer interface {
	DeclareMethods() map[string]Method
}

// HookFuncs are a type's own lifecycle hooks. Nil functions are no-ops.
type HookFuncs struct {
	OnPrePersist  func(ctx context.Context, e *Entity) error
	OnPostPersist func(ctx context.Context, e *Entity) error
	OnPreRemove   func(ctx context.Context, e *Entity) error
	OnPostRemove  func(ctx context.Context, e *Entity) error
}

func (h HookFuncs) empty() bool {
	return h.OnPrePersist == nil && h.OnPostPersist == nil && h.OnPreRemove == nil && h.OnPostRemove == nil
}

func (h HookFuncs) Name() string { return "hooks" }

func (h HookFuncs) PrePersist(ctx context.Context, e *Entity) error {
	if h.OnPrePersist == nil {
		return nil
	}
	return h.OnPrePersist(ctx, e)
}

func (h HookFuncs) PostPersist(ctx context.Context, e *Entity) error {
	if h.OnPostPersist == nil {
		return nil
	}
	return h.OnPostPersist(ctx, e)
}

func (h HookFuncs) PreRemove(ctx context.Context, e *Entity) error {
	if h.OnPreRemove == nil {
		return nil
	}
	return h.OnPreRemove(ctx, e)
}

func (h HookFuncs) PostRemove(ctx context.Context, e *Entity) error {
	if h.OnPostRemove == nil {
		return nil
	}
	return h.OnPostRemove(ctx, e)
}

// HookError reports which hook and extension failed.
type HookError struct {
	Hook       Hook
	Extension  string
	EntityType string
	Err        error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s %s hook (%s) failed: %v", e.EntityType, e.Hook, e.Extension, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// hookCall adapts one extension to one lifecycle point; ok is false when the extension does
// not take part in it.
func hookCall(hook Hook, ext Extension) (fn func(context.Context, *Entity) error, ok bool) {
	switch hook {
	case HookPrePersist:
		if h, ok := ext.(PrePersister); ok {
			return h.PrePersist, true
		}
	case HookPostPersist:
		if h, ok := ext.(PostPersister); ok {
			return h.PostPersist, true
		}
	case HookPreRemove:
		if h, ok := ext.(PreRemover); ok {
			return h.PreRemove, true
		}
	case HookPostRemove:
		if h, ok := ext.(PostRemover); ok {
			return h.PostRemove, true
		}
	}
	return nil, false
}

// runHard runs every participant in order and stops at the first failure.
func (e *Entity) runHard(ctx context.Context, hook Hook) error {
	for _, ext := range e.typ.extensions {
		fn, ok := hookCall(hook, ext)
		if !ok {
			continue
		}
		if err := fn(ctx, e); err != nil {
			return &HookError{Hook: hook, Extension: ext.Name(), EntityType: e.typ.name, Err: err}
		}
	}
	return nil
}

// runSoft runs every participant; failures are logged and do not stop later participants.
func (e *Entity) runSoft(ctx context.Context, hook Hook) {
	for _, ext := range e.typ.extensions {
		fn, ok := hookCall(hook, ext)
		if !ok {
			continue
		}
		if err := fn(ctx, e); err != nil {
			e.mgr.logger.LogAttrs(ctx, slog.LevelError, "lifecycle hook failed",
				slog.String("entity_type", e.typ.name),
				slog.String("hook", string(hook)),
				slog.String("extension", ext.Name()),
				slog.String("key", e.KeyString()),
				slog.Any("error", err),
			)
		}
	}
}
