package csrf

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mazra-app/backend-gate/internal/common"
	"github.com/mazra-app/backend-gate/internal/obs"
)

// Middleware enforces the double-submit check on state-changing requests.
// Failures respond 403; setting or clearing cookies stays with the
// session handlers.
func (g Guard) Middleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !g.ShouldProtect(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := strings.TrimSpace(r.Header.Get(g.headerName()))
			var cookieToken string
			if cookie, err := r.Cookie(g.cookieName()); err == nil {
				cookieToken = strings.TrimSpace(cookie.Value)
			}

			if !g.Validate(cookieToken, headerToken) {
				logger.Warn().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Bool("cookie_present", cookieToken != "").
					Bool("header_present", headerToken != "").
					Msg("csrf token rejected")
				obs.CSRFRejectedTotal.Inc()
				common.JSONError(w, http.StatusForbidden, "CSRF_MISMATCH", "missing or invalid csrf token", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// IssueHandler handles GET /api/v1/csrf: it cycles the cookie and echoes
// the token for the client to replay in the configured header.
func (g Guard) IssueHandler(logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := g.Issue(w)
		if err != nil {
			logger.Error().Err(err).Msg("issue csrf token")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{
				"token":  token,
				"header": g.headerName(),
			},
		})
	}
}
