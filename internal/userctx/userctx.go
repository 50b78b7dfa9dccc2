// ABOUTME: Carries the authenticated user id through context.Context.
// ABOUTME: Storage operations read it instead of taking a user parameter.
package userctx

import (
	"context"
	"errors"
)

// ErrNoUser is returned when a context carries no user id.
var ErrNoUser = errors.New("no authenticated user in context")

type key struct{}

// WithUserID returns a context carrying the user id.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, key{}, userID)
}

// UserID returns the user id from ctx, or ErrNoUser when absent or not positive.
func UserID(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(key{}).(int64)
	if !ok || id <= 0 {
		return 0, ErrNoUser
	}
	return id, nil
}
