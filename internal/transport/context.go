package transport

import (
	"context"

	"github.com/pullproxy/pullproxy/internal/auth"
)

// contextKey is a private type for context keys in this package.
type contextKey int

const grantKey contextKey = iota

// contextWithGrant stores the caller's grant in the request context.
func contextWithGrant(ctx context.Context, grant *auth.Grant) context.Context {
	return context.WithValue(ctx, grantKey, grant)
}

// grantFromContext retrieves the caller's grant from the request context.
func grantFromContext(ctx context.Context) (*auth.Grant, bool) {
	grant, ok := ctx.Value(grantKey).(*auth.Grant)
	return grant, ok && grant != nil
}
