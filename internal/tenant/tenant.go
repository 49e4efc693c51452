// Package tenant carries the tenant identity of a verified request. The
// identifier always comes from the credential's tenant claim; clients
// cannot pick a tenant with a header.
package tenant

import (
	"context"
	"net/http"
	"strings"

	"github.com/mazra-app/backend-gate/internal/common"
)

type contextKey string

const tenantContextKey contextKey = "tenant.id"

// WithTenant stores the tenant identifier inside the context.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey, tenantID)
}

// FromContext extracts the tenant identifier from the context if available.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	tenantID, ok := ctx.Value(tenantContextKey).(string)
	if !ok {
		return "", false
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", false
	}
	return tenantID, true
}

// FromClaims copies the tenant claim of an authenticated request into the
// tenant context slot. Requests without claims pass through unchanged.
func FromClaims(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := common.ClaimsFrom(r.Context()); ok && claims.TenantID != "" {
			r = r.WithContext(WithTenant(r.Context(), claims.TenantID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTenant rejects requests whose context carries no tenant. It sits
// behind the auth middleware, so a missing tenant here means a credential
// was verified without one.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "tenant not resolved", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PrefixKey namespaces a cache or rate-limit key per tenant.
func PrefixKey(tenantID, key string) string {
	if tenantID == "" {
		return key
	}
	return tenantID + ":" + key
}
