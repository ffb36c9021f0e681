// Package identity turns bearer tokens and stored judge assignments into
// principals.
package identity

import (
	"context"

	"github.com/okian/arena/internal/domain/model"
)

type ctxKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(model.Principal)
	return p, ok
}
