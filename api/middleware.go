package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmcleod/drivelocker/token"
)

type contextKey int

const identityKey contextKey = iota

// AuthMiddleware requires a valid token on every request except OPTIONS and
// public paths. The token is read from the Authorization header, falling back
// to the jwt cookie. The resolved identity is stored on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || a.security.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := tokenFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "not authorized, login again")
			return
		}

		id, err := a.validator.Authenticate(r.Context(), raw)
		if errors.Is(err, token.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "not authorized, login again")
			return
		}
		if err != nil {
			a.writeInternalError(w, r, "token validation failed", err)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the identity attached by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (*token.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*token.Identity)
	return id, ok && id != nil
}

func tokenFromRequest(r *http.Request) (string, bool) {
	if raw, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return raw, true
	}
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	raw := strings.TrimSpace(value[len(bearer):])
	return raw, raw != ""
}

func (a *API) setTokenCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, a.security.tokenCookie(value, a.tokens.TTL()))
}

func (a *API) clearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, a.security.tokenCookie("", 0))
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// identity returns the caller's identity, writing a 401 when the request was
// not authenticated.
func identity(w http.ResponseWriter, r *http.Request) (*token.Identity, bool) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "not authorized, login again")
	}
	return id, ok
}
