// Package auth verifies the bearer credentials presented during the connection
// handshake and on the read-path endpoints. Token issuance is owned by the
// login service; only verification lives here.
package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("no credential provided")
	ErrInvalidToken = errors.New("invalid credential")
	ErrExpiredToken = errors.New("credential has expired")
)

// Identity is the verified principal behind a credential
type Identity struct {
	UserID   int64
	Username string
	Role     string
}

// Verifier resolves a bearer credential into an Identity
type Verifier interface {
	Verify(tokenString string) (Identity, error)
}

type claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 tokens issued by the login service
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, mapping failures onto the
// Missing/Invalid/Expired error taxonomy
func (v *JWTVerifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || c.UserID < 1 {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: c.UserID, Username: c.Username, Role: c.Role}, nil
}

type contextKey string

var identityKey contextKey

// NewContext returns a context carrying a verified Identity
func NewContext(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// FromContext extracts the Identity set by NewContext
func FromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok
}
