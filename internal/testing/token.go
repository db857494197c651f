package testing

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken issues an HS256 token with the claim shape the platform verifier
// expects. A negative ttl produces an already expired token.
func SignToken(secret string, userID int64, username, role string, ttl time.Duration) string {
	claims := jwt.MapClaims{
		"id":       userID,
		"username": username,
		"role":     role,
		"exp":      time.Now().Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}

	return signed
}
