package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mazra-app/backend-gate/internal/common"
)

func TestWithTenantRoundTrip(t *testing.T) {
	ctx := WithTenant(context.Background(), "farm-7")
	id, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "farm-7", id)
}

func TestFromContextRejectsBlank(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
	_, ok = FromContext(WithTenant(context.Background(), "   "))
	require.False(t, ok)
}

func TestFromClaimsCopiesTenant(t *testing.T) {
	var captured string
	handler := FromClaims(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil)
	req = req.WithContext(common.WithClaims(req.Context(), common.Claims{Subject: "user-42", TenantID: "farm-7"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "farm-7", captured)
}

func TestFromClaimsIgnoresHeaderSpoofing(t *testing.T) {
	handler := FromClaims(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := FromContext(r.Context())
		require.False(t, ok)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil)
	req.Header.Set("X-Tenant-ID", "someone-elses-farm")
	handler.ServeHTTP(httptest.NewRecorder(), req)
}

func TestRequireTenant(t *testing.T) {
	handler := RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil)
	req = req.WithContext(WithTenant(req.Context(), "farm-7"))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestPrefixKey(t *testing.T) {
	require.Equal(t, "farm-7:socket", PrefixKey("farm-7", "socket"))
	require.Equal(t, "socket", PrefixKey("", "socket"))
}
