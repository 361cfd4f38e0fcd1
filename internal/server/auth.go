package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/paperqa-go/internal/logging"
)

const realm = `Bearer realm="paperqa"`

// authMiddleware guards next with a shared API key sent as
// "Authorization: Bearer <key>". With no key configured next is returned
// as is. The key itself never reaches the logs.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	deny := func(w http.ResponseWriter, r *http.Request, challenge, reason string) {
		logging.FromContext(r.Context()).Warn("ask unauthorized",
			slog.String("reason", reason),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("WWW-Authenticate", challenge)
		writeError(w, http.StatusUnauthorized, reason)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := bearerToken(r)
		switch {
		case got == "":
			deny(w, r, realm, "authorization required")
		case subtle.ConstantTimeCompare([]byte(got), want) != 1:
			deny(w, r, realm+` error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// bearerToken returns the credential of a Bearer Authorization header, or ""
// for any other scheme.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
