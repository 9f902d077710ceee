package auth

import (
	"context"

	"github.com/lexvault/lexvault/pkg/contextkeys"
)

// ContextWithPrincipal stores the request principal in the context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextkeys.PrincipalKey, p)
}

// PrincipalFromContext returns the request principal, or false when the
// request is anonymous.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextkeys.PrincipalKey).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
