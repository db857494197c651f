package server

import (
	"net/http"
	"strings"

	"chat-platform/internal/auth"
	"chat-platform/internal/storage/zapadapter"

	"github.com/rs/xid"
	"go.uber.org/zap"
)

// logRequests assigns each request an id, stores it in the context for the
// pgx logger to pick up, and logs the request line
func logRequests(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := xid.New().String()

		ctx := zapadapter.NewContextWithID(r.Context(), id)

		logger.Info("incoming http request",
			zap.String("id", id),
			zap.String("method", r.Method),
			zap.String("uri", r.URL.RequestURI()),
			zap.String("ip", r.RemoteAddr),
		)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAuth verifies the Authorization bearer credential and stores the
// resulting identity in the request context. Requests failing verification
// never reach the wrapped handler.
func requireAuth(next http.Handler, verifier auth.Verifier) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := verifier.Verify(bearerToken(r))
		if err != nil {
			http.Error(w, authErrorText(err), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), ident)))
	})
}

// bearerToken extracts the credential from an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

func authErrorText(err error) string {
	switch err {
	case auth.ErrMissingToken:
		return "No credential provided"
	case auth.ErrExpiredToken:
		return "Credential has expired"
	default:
		return "Invalid credential"
	}
}
