// ABOUTME: HTTP adapter for bearer authentication on API endpoints
// ABOUTME: Extracts the JWT from the Authorization header and hands the identity to the handler

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// IdentityHandler serves a request on behalf of an authenticated caller.
type IdentityHandler func(w http.ResponseWriter, r *http.Request, id Identity)

// BearerToken extracts a bearer token from an Authorization header value.
// Returns the token and an error message (empty if successful).
func BearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// RequireIdentity adapts next into an http.Handler that authenticates the
// bearer token first. Unauthenticated requests get a 401 and never reach next.
// A nil logger disables failure logging.
func RequireIdentity(authn Authenticator, logger *slog.Logger, next IdentityHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, errMsg := BearerToken(r.Header.Get("Authorization"))
		if errMsg != "" {
			logFailure(logger, r, errMsg)
			writeUnauthorized(w, errMsg)
			return
		}

		id, err := authn.Authenticate(token)
		if err != nil {
			logFailure(logger, r, err.Error())
			writeUnauthorized(w, "invalid token")
			return
		}

		next(w, r, id)
	})
}

func logFailure(logger *slog.Logger, r *http.Request, reason string) {
	if logger == nil {
		return
	}
	logger.Warn("authentication failed",
		"reason", reason,
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskd"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"kind":  "unauthenticated",
	})
}
