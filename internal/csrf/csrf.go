// Package csrf implements the double-submit-cookie defense: a random
// token lives in a cookie and must be echoed back in a custom header on
// every state-changing request. Cross-site requests cannot read the
// cookie into the header, so a mismatch indicates forgery.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TokenBytes is the entropy of generated tokens before encoding.
const TokenBytes = 32

const (
	defaultCookieName = "mz_csrf"
	defaultHeaderName = "X-CSRF-Token"
	defaultTTL        = 24 * time.Hour
)

// Guard decides which requests need the double-submit check and performs
// the comparison. It holds no per-request state.
type Guard struct {
	CookieName     string
	HeaderName     string
	ExemptPrefixes []string
	TTL            time.Duration
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// Generate overrides token generation. Nil means the CSPRNG default.
	Generate func() (string, error)
}

// ShouldProtect reports whether the method/path pair requires a token
// check. Safe methods are never protected; exempt prefixes cover the
// login, logout, health, and report endpoints that legitimately arrive
// without a token.
func (g Guard) ShouldProtect(method, path string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	for _, prefix := range g.ExemptPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Validate compares the cookie-held token against the header echo. A
// length mismatch is rejected immediately (length is not secret); equal
// lengths are compared in constant time so timing never reveals where the
// first differing byte sits.
func (g Guard) Validate(cookieToken, headerToken string) bool {
	if cookieToken == "" || headerToken == "" {
		return false
	}
	if len(cookieToken) != len(headerToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cookieToken), []byte(headerToken)) == 1
}

// GenerateToken produces a fresh token from the operating system CSPRNG,
// base64url-encoded without padding.
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("csrf: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Token produces a fresh token without touching the response, so callers
// can fail before any cookie is written.
func (g Guard) Token() (string, error) {
	if g.Generate != nil {
		return g.Generate()
	}
	return GenerateToken()
}

// Set writes an already-generated token as a cookie readable by the
// client script.
func (g Guard) Set(w http.ResponseWriter, token string) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName(),
		Value:    token,
		Path:     "/",
		Domain:   g.CookieDomain,
		MaxAge:   int(ttl.Seconds()),
		Secure:   g.CookieSecure,
		HttpOnly: false,
		SameSite: g.CookieSameSite,
	})
}

// Issue generates a token and sets it as a cookie, returning the value
// for the response body echo.
func (g Guard) Issue(w http.ResponseWriter) (string, error) {
	token, err := g.Token()
	if err != nil {
		return "", err
	}
	g.Set(w, token)
	return token, nil
}

// Clear expires the token cookie.
func (g Guard) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName(),
		Value:    "",
		Path:     "/",
		Domain:   g.CookieDomain,
		MaxAge:   -1,
		Secure:   g.CookieSecure,
		SameSite: g.CookieSameSite,
	})
}

func (g Guard) cookieName() string {
	if name := strings.TrimSpace(g.CookieName); name != "" {
		return name
	}
	return defaultCookieName
}

func (g Guard) headerName() string {
	if name := strings.TrimSpace(g.HeaderName); name != "" {
		return name
	}
	return defaultHeaderName
}
