// ABOUTME: Tests for the user id context helpers.
// ABOUTME: Missing or invalid ids must surface ErrNoUser.
package userctx

import (
	"context"
	"errors"
	"testing"
)

func TestUserID(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	id, err := UserID(ctx)
	if err != nil {
		t.Fatalf("UserID failed: %v", err)
	}
	if id != 42 {
		t.Errorf("UserID = %d, want 42", id)
	}
}

func TestUserIDMissing(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser, got %v", err)
	}
	if _, err := UserID(WithUserID(context.Background(), 0)); !errors.Is(err, ErrNoUser) {
		t.Errorf("expected ErrNoUser for zero id, got %v", err)
	}
}
