// Package auth resolves bearer credentials issued by the hosted auth platform
// to stable user identities.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Config holds auth configuration.
type Config struct {
	JWTSecret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
	Audience  string `envconfig:"AUTH_JWT_AUDIENCE" default:"authenticated"`
}

// ErrInvalidToken is returned when a bearer token cannot be verified.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to a user identifier.
type Verifier interface {
	Resolve(ctx context.Context, token string) (userID string, err error)
}

// JWTVerifier validates access tokens signed with the platform's shared secret.
type JWTVerifier struct {
	secret   []byte
	audience string
}

// NewJWTVerifier creates a verifier for HS256-signed access tokens.
func NewJWTVerifier(cfg Config) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(cfg.JWTSecret),
		audience: cfg.Audience,
	}
}

// Resolve validates the token signature and standard claims and returns the
// subject claim as the user id.
func (v *JWTVerifier) Resolve(ctx context.Context, token string) (string, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
		jwt.WithContext(ctx),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	t, err := jwt.ParseString(token, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	sub := t.Subject()
	if sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return sub, nil
}
