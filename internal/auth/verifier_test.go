package auth

import (
	"context"
	"testing"
	"time"

	mytesting "chat-platform/internal/testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "secret_key"

func TestVerify(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	token := mytesting.SignToken(testSecret, 42, "alice", "admin", time.Hour)

	ident, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, Identity{UserID: 42, Username: "alice", Role: "admin"}, ident)
}

func TestVerifyMissing(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	_, err := v.Verify("")
	require.Equal(t, ErrMissingToken, err)
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	token := mytesting.SignToken(testSecret, 42, "alice", "user", -time.Hour)

	_, err := v.Verify(token)
	require.Equal(t, ErrExpiredToken, err)
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	token := mytesting.SignToken("another_secret", 42, "alice", "user", time.Hour)

	_, err := v.Verify(token)
	require.Equal(t, ErrInvalidToken, err)
}

func TestVerifyGarbage(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	_, err := v.Verify("not.a.token")
	require.Equal(t, ErrInvalidToken, err)
}

func TestVerifyZeroUserID(t *testing.T) {
	t.Parallel()

	v := NewJWTVerifier(testSecret)

	token := mytesting.SignToken(testSecret, 0, "alice", "user", time.Hour)

	_, err := v.Verify(token)
	require.Equal(t, ErrInvalidToken, err)
}

func TestIdentityContextRoundTrip(t *testing.T) {
	t.Parallel()

	ident := Identity{UserID: 7, Username: "bob", Role: "user"}

	ctx := NewContext(context.Background(), ident)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, ident, got)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}
