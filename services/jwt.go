package services

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPrecheck rejects access tokens that could never resolve: malformed,
// not signed with the project's JWT secret, or expired.
type TokenPrecheck struct {
	secret []byte
}

func NewTokenPrecheck(secret string) *TokenPrecheck {
	return &TokenPrecheck{secret: []byte(secret)}
}

func (p *TokenPrecheck) Check(token string) error {
	_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return nil
}

// PrecheckedResolver runs the local precheck before delegating to the auth
// service, which stays authoritative for accepted tokens.
type PrecheckedResolver struct {
	Precheck *TokenPrecheck
	Next     TokenResolver
}

func (r *PrecheckedResolver) ResolveUser(ctx context.Context, token string) (*AuthUser, error) {
	if err := r.Precheck.Check(token); err != nil {
		return nil, nil
	}
	return r.Next.ResolveUser(ctx, token)
}
