package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"devforge.org/internal/obs"
	"devforge.org/internal/principal"
	"devforge.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// errNoToken and errMalformedHeader stay internal. The wire response is the
// same 401 either way so probes cannot tell a missing header from a bad one.
var (
	errNoToken         = errors.New("missing bearer token")
	errMalformedHeader = errors.New("invalid authorization scheme")
)

var publicPaths = []string{
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/auth/register",
	"/api/health",
	"/metrics",
}

// The realtime endpoint authenticates inside the websocket handshake.
var publicPrefixes = []string{
	"/api/realtime",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			reason := "no_token"
			if errors.Is(err, errMalformedHeader) {
				reason = "malformed_header"
			}
			obs.CountAuthFailure(reason)
			obs.LogAuthEvent("auth.rejected", reason, map[string]any{"path": r.URL.Path})
			unauthorized(w, r)
			return
		}

		p, err := a.tokens.VerifyAccess(raw)
		if err != nil {
			reason := "invalid_token"
			if errors.Is(err, token.ErrTokenExpired) {
				reason = "expired_token"
			}
			obs.CountAuthFailure(reason)
			obs.LogAuthEvent("auth.rejected", reason, map[string]any{"path": r.URL.Path})
			unauthorized(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(principal.ContextWith(r.Context(), p)))
	})
}

// RequireRole admits only principals holding one of the allowed roles.
// Missing principal is 401, wrong role is 403.
func RequireRole(allowed ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principal.FromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if !p.HasRole(allowed...) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="devforge"`)
	writeError(w, r, http.StatusUnauthorized, "unauthorized")
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errNoToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errMalformedHeader
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errNoToken
	}
	return raw, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
