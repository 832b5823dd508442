package api

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/cors"
)

// Environment selects the cookie policy.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// tokenCookieName is the cookie that carries the bearer token.
const tokenCookieName = "jwt"

var defaultPublicPaths = []string{
	"/",
	"/health",
	"/openapi.yaml",
	"/auth/login",
	"/user/register",
	"/auth/send-reset-otp",
	"/auth/reset-password",
}

var defaultPublicPrefixes = []string{"/docs", "/redoc"}

// SecurityConfig is the request-authentication policy. It is built once at
// startup and never mutated afterwards; the accessors return copies.
type SecurityConfig struct {
	env            Environment
	publicPaths    map[string]struct{}
	publicPrefixes []string
	allowedOrigins []string
}

// DefaultSecurityConfig returns the standard public routes for env with no
// cross-origin access.
func DefaultSecurityConfig(env Environment) SecurityConfig {
	return NewSecurityConfig(env, nil)
}

// NewSecurityConfig returns the standard public routes for env, allowing
// credentialed cross-origin requests from origins.
func NewSecurityConfig(env Environment, origins []string) SecurityConfig {
	paths := make(map[string]struct{}, len(defaultPublicPaths))
	for _, p := range defaultPublicPaths {
		paths[p] = struct{}{}
	}
	var allowed []string
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed = append(allowed, o)
		}
	}
	return SecurityConfig{
		env:            env,
		publicPaths:    paths,
		publicPrefixes: slices.Clone(defaultPublicPrefixes),
		allowedOrigins: allowed,
	}
}

// Environment returns the configured environment.
func (c SecurityConfig) Environment() Environment {
	return c.env
}

// AllowedOrigins returns the CORS origins.
func (c SecurityConfig) AllowedOrigins() []string {
	return slices.Clone(c.allowedOrigins)
}

// IsPublic reports whether path may be served without a token. Paths match
// exactly, except the documentation prefixes which also cover sub-paths.
func (c SecurityConfig) IsPublic(path string) bool {
	if _, ok := c.publicPaths[path]; ok {
		return true
	}
	for _, p := range c.publicPrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

func (c SecurityConfig) development() bool {
	return c.env == EnvDevelopment
}

// tokenCookie builds the cookie carrying value for maxAge. A zero maxAge
// clears the cookie.
func (c SecurityConfig) tokenCookie(value string, maxAge time.Duration) *http.Cookie {
	cookie := &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !c.development(),
		SameSite: http.SameSiteNoneMode,
	}
	if c.development() {
		cookie.SameSite = http.SameSiteStrictMode
	}
	if maxAge > 0 {
		cookie.MaxAge = int(maxAge / time.Second)
		cookie.Expires = time.Now().Add(maxAge)
	} else {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	}
	return cookie
}

func (c SecurityConfig) corsHandler() func(http.Handler) http.Handler {
	if len(c.allowedOrigins) == 0 {
		return nil
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   c.AllowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
