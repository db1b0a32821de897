package web

import (
	"context"

	"github.com/victorteokw/docmap/core/schema"
)

func withCaller(ctx context.Context, ident *schema.Identity) context.Context {
	return context.WithValue(ctx, callerKey, ident)
}

// callerFrom returns the authenticated identity, nil when unauthenticated.
func callerFrom(ctx context.Context) *schema.Identity {
	ident, _ := ctx.Value(callerKey).(*schema.Identity)
	return ident
}
