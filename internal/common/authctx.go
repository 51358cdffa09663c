package common

import (
	"context"
	"strings"
)

type userIDKey struct{}

// WithUserID marks ctx as authenticated for the buyer id. Blank ids are ignored.
func WithUserID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the authenticated buyer id, if any.
func UserID(ctx context.Context) (string, bool) {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id, id != ""
}
