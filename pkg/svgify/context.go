package svgify

import (
	"context"
	"errors"
)

// ErrNoProvider is returned when icons are used outside a provider scope.
var ErrNoProvider = errors.New("svgify provider should be established before using icons")

type providerKey struct{}

// NewContext returns a copy of ctx that carries p. Widgets created from the
// returned context, or any context derived from it, use p.
func NewContext(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// FromContext returns the provider of the scope ctx belongs to, or
// ErrNoProvider.
func FromContext(ctx context.Context) (*Provider, error) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	if !ok || p == nil {
		return nil, ErrNoProvider
	}
	return p, nil
}
