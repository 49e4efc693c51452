package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mazra-app/backend-gate/internal/common"
	"github.com/mazra-app/backend-gate/internal/csrf"
	"github.com/mazra-app/backend-gate/internal/obs"
	"github.com/mazra-app/backend-gate/internal/redirect"
)

// Handler exposes the session, redirect, and socket-token endpoints that
// sit behind the gate's checkers.
type Handler struct {
	Verifier  *Verifier
	Issuer    *Issuer
	CSRF      csrf.Guard
	Redirects redirect.Sanitizer
	Logger    zerolog.Logger

	AccessCookieName string
	CookieDomain     string
	CookieSecure     bool
	CookieSameSite   http.SameSite
}

// The gate's responses to clients are deliberately coarse; the precise
// failure only reaches logs and metrics.
var (
	errInternal     = common.NewAppError("INTERNAL", "internal server error", http.StatusInternalServerError, nil)
	errUnauthorized = common.NewAppError("UNAUTHORIZED", "missing or invalid token", http.StatusUnauthorized, nil)
	errBadPayload   = common.NewAppError("BAD_REQUEST", "invalid request payload", http.StatusBadRequest, nil)
)

type sessionRequest struct {
	Token string `json:"token"`
}

// EstablishSession handles POST /api/v1/auth/session. It verifies an
// identity-service credential, then sets the HttpOnly access cookie and a
// fresh CSRF cookie. This is the login boundary, so it is CSRF-exempt.
func (h *Handler) EstablishSession(w http.ResponseWriter, r *http.Request) {
	if h.Verifier == nil {
		common.JSONAppError(w, errInternal)
		return
	}
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONAppError(w, errBadPayload)
		return
	}
	claims, err := h.Verifier.Verify(req.Token)
	if err != nil {
		if errors.Is(err, ErrConfigMissing) {
			h.Logger.Error().Err(err).Msg("auth verifier misconfigured")
			common.JSONAppError(w, errInternal)
			return
		}
		h.Logger.Warn().Str("reason", verifyFailureKind(err)).Msg("session credential rejected")
		obs.AuthRejectedTotal.WithLabelValues(verifyFailureKind(err)).Inc()
		common.JSONAppError(w, errUnauthorized)
		return
	}

	// Generate the CSRF token before writing any cookie. A generation
	// failure must not leave a session cookie without its CSRF pair.
	csrfToken, err := h.CSRF.Token()
	if err != nil {
		h.Logger.Error().Err(err).Msg("issue csrf token")
		common.JSONAppError(w, errInternal)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    strings.TrimSpace(req.Token),
		Path:     "/",
		Domain:   h.CookieDomain,
		Secure:   h.CookieSecure,
		HttpOnly: true,
		SameSite: h.CookieSameSite,
	})
	h.CSRF.Set(w, csrfToken)

	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"claims":     claims,
			"csrf_token": csrfToken,
		},
	})
}

// ClearSession handles DELETE /api/v1/auth/session: both cookies are
// expired and the response carries no body.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.AccessCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		Secure:   h.CookieSecure,
		HttpOnly: true,
		SameSite: h.CookieSameSite,
		MaxAge:   -1,
	})
	h.CSRF.Clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// Continue handles GET /api/v1/auth/continue. The return_to candidate is
// sanitized against the allow-list; anything suspect degrades silently to
// the default path rather than erroring. The route sits behind the
// optional Authenticate middleware, so rejections from a signed-in user
// carry their subject in the log.
func (h *Handler) Continue(w http.ResponseWriter, r *http.Request) {
	candidate := r.URL.Query().Get("return_to")
	target := h.Redirects.Sanitize(candidate)
	if candidate != "" && target != candidate {
		evt := h.Logger.Warn().Str("candidate", candidate)
		if claims, ok := common.ClaimsFrom(r.Context()); ok {
			evt = evt.Str("subject", claims.Subject)
		}
		evt.Msg("return_to rejected")
		obs.RedirectRejectedTotal.Inc()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Me handles GET /api/v1/auth/me behind RequireAuth.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		common.JSONAppError(w, errUnauthorized)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": claims})
}

// SocketToken handles POST /api/v1/ws/token behind RequireAuth and the
// socket rate limit. It mints a short-lived credential for the realtime
// bridge from the verified claims.
func (h *Handler) SocketToken(w http.ResponseWriter, r *http.Request) {
	if h.Issuer == nil {
		common.JSONAppError(w, errInternal)
		return
	}
	claims, ok := common.ClaimsFrom(r.Context())
	if !ok {
		common.JSONAppError(w, errUnauthorized)
		return
	}
	token, expiry, err := h.Issuer.SocketToken(claims)
	if err != nil {
		h.Logger.Error().Err(err).Msg("mint socket token")
		common.JSONAppError(w, errInternal)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"token":      token,
			"expires_at": expiry,
		},
	})
}
