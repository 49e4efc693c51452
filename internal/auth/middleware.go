package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mazra-app/backend-gate/internal/common"
	"github.com/mazra-app/backend-gate/internal/obs"
)

var errNoToken = errors.New("auth: token missing")

// Middleware wires credential verification into HTTP handlers. The bearer
// header wins over the access cookie when both are present.
type Middleware struct {
	Verifier     *Verifier
	AccessCookie string
	Logger       zerolog.Logger
}

// Authenticate attaches verified claims to the request context when a
// valid credential is present, passing anonymous requests through.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth enforces a valid credential before executing the next
// handler. Every verification failure collapses to a generic 401 for the
// client; the distinct failure kind only reaches the log.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.authenticateRequest(r)
		if err != nil {
			if errors.Is(err, ErrConfigMissing) {
				m.Logger.Error().Err(err).Msg("auth verifier misconfigured")
				common.JSONAppError(w, errInternal)
				return
			}
			if !errors.Is(err, errNoToken) {
				m.Logger.Warn().Str("reason", verifyFailureKind(err)).Str("path", r.URL.Path).Msg("credential rejected")
			}
			obs.AuthRejectedTotal.WithLabelValues(verifyFailureKind(err)).Inc()
			common.JSONAppError(w, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Middleware) authenticateRequest(r *http.Request) (context.Context, error) {
	if m.Verifier == nil {
		return r.Context(), ErrConfigMissing
	}
	token := m.extractToken(r)
	if token == "" {
		return r.Context(), errNoToken
	}
	claims, err := m.Verifier.Verify(token)
	if err != nil {
		return r.Context(), err
	}
	return common.WithClaims(r.Context(), claims), nil
}

func (m Middleware) extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if m.AccessCookie != "" {
		if cookie, err := r.Cookie(m.AccessCookie); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	return ""
}

func verifyFailureKind(err error) string {
	switch {
	case errors.Is(err, errNoToken):
		return "missing"
	case errors.Is(err, ErrConfigMissing):
		return "config"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrSignature):
		return "signature"
	case errors.Is(err, ErrOutsideWindow):
		return "expired"
	case errors.Is(err, ErrClaimMismatch):
		return "claim_mismatch"
	case errors.Is(err, ErrMissingClaims):
		return "missing_claims"
	default:
		return "invalid"
	}
}
