// Package auth resolves opaque client tokens into user identities.
package auth

import (
	"context"
	"errors"

	"github.com/vicr123/entertaining-server/internal/models"
)

// ErrInvalidToken means the token is well-formed input but names no user.
var ErrInvalidToken = errors.New("invalid token")

// Resolver turns a token into an identity. Implementations return an error wrapping
// ErrInvalidToken for unknown tokens and any other error for lookup failures.
type Resolver interface {
	ResolveToken(ctx context.Context, token string) (models.Identity, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, token string) (models.Identity, error)

func (f ResolverFunc) ResolveToken(ctx context.Context, token string) (models.Identity, error) {
	return f(ctx, token)
}

// Chain tries each resolver in order and returns the first identity found.
// A lookup failure (anything but ErrInvalidToken) stops the chain.
type Chain []Resolver

func (c Chain) ResolveToken(ctx context.Context, token string) (models.Identity, error) {
	for _, r := range c {
		ident, err := r.ResolveToken(ctx, token)
		if err == nil {
			return ident, nil
		}
		if !errors.Is(err, ErrInvalidToken) {
			return models.Identity{}, err
		}
	}
	return models.Identity{}, ErrInvalidToken
}
