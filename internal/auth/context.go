package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/entitykit/internal/domain"
)

type contextKey string

const actingUserKey contextKey = "actingUser"

// ErrForbidden is returned when the acting user does not own the record it touches.
var ErrForbidden = errors.New("forbidden")

// ContextWithUser returns a new context that carries the acting user's key.
func ContextWithUser(ctx context.Context, userKey any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actingUserKey, domain.NormalizeKey(userKey))
}

// UserFromContext retrieves the acting user's key from the context, if any.
func UserFromContext(ctx context.Context) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	value := ctx.Value(actingUserKey)
	if value == nil {
		return nil, false
	}
	if s, ok := value.(string); ok && s == "" {
		return nil, false
	}
	return value, true
}

// EnforceOwner ensures the given owner matches the acting user when one is present. Calls
// without an acting user (CLI, background jobs) are not restricted.
func EnforceOwner(ctx context.Context, ownerKey any) error {
	userKey, ok := UserFromContext(ctx)
	if !ok {
		return nil
	}
	if domain.NormalizeKey(ownerKey) == nil {
		return fmt.Errorf("owner is required: %w", ErrForbidden)
	}
	if !domain.KeysEqual(userKey, ownerKey) {
		return fmt.Errorf("owner %s does not match acting user %s: %w", domain.FormatKey(ownerKey), domain.FormatKey(userKey), ErrForbidden)
	}
	return nil
}
