package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

type tokenScope int

const (
	scopeNone tokenScope = iota
	scopeRead
	scopeFull
)

// authMiddleware guards /api/v1. With no api.token the API is open, which is
// only sensible behind a loopback bind. A read token may fetch stats, charts,
// buttons, icons and the audit trail but never record or change anything.
func authMiddleware(api APIConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	fullToken := strings.TrimSpace(api.Token)
	readToken := strings.TrimSpace(api.ReadToken)
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if fullToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented, ok := parseBearerToken(r.Header.Get("Authorization"))
			scope := scopeNone
			switch {
			case !ok:
			case constantTimeTokenEqual(fullToken, presented):
				scope = scopeFull
			case readToken != "" && constantTimeTokenEqual(readToken, presented):
				scope = scopeRead
			}

			status, msg := http.StatusOK, ""
			switch {
			case scope == scopeNone:
				status, msg = http.StatusUnauthorized, "unauthorized"
			case scope == scopeRead && !isReadMethod(r.Method):
				status, msg = http.StatusForbidden, "read-only token cannot modify clicks or buttons"
			}
			if status != http.StatusOK {
				logger.WarnContext(r.Context(), "API request rejected",
					"status", status,
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", RequestIDFromContext(r.Context()),
				)
				writeAPIError(w, status, msg, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isReadMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func parseBearerToken(headerValue string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(headerValue), " ")
	// RFC 7235 treats auth-scheme tokens as case-insensitive.
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// constantTimeTokenEqual hashes both sides so the comparison time does not
// leak the configured token's length.
func constantTimeTokenEqual(expected, presented string) bool {
	expectedDigest := sha256.Sum256([]byte(expected))
	presentedDigest := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(expectedDigest[:], presentedDigest[:]) == 1
}
