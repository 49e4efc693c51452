package csrf

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func testGuard() Guard {
	return Guard{
		CookieName:     "mz_csrf",
		HeaderName:     "X-CSRF-Token",
		ExemptPrefixes: []string{"/api/v1/auth/session", "/health"},
	}
}

func TestShouldProtectMethods(t *testing.T) {
	g := testGuard()
	protected := []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	for _, method := range protected {
		if !g.ShouldProtect(method, "/api/v1/fields") {
			t.Fatalf("expected %s to be protected", method)
		}
	}
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		if g.ShouldProtect(method, "/api/v1/fields") {
			t.Fatalf("expected safe method %s to pass", method)
		}
	}
}

func TestShouldProtectExemptPrefixes(t *testing.T) {
	g := testGuard()
	if g.ShouldProtect(http.MethodPost, "/api/v1/auth/session") {
		t.Fatal("login endpoint must be exempt")
	}
	if g.ShouldProtect(http.MethodPost, "/health/live") {
		t.Fatal("health prefix must be exempt")
	}
	if !g.ShouldProtect(http.MethodPost, "/api/v1/ws/token") {
		t.Fatal("non-exempt path must stay protected")
	}
}

func TestValidate(t *testing.T) {
	g := testGuard()
	token, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !g.Validate(token, token) {
		t.Fatal("equal tokens must validate")
	}
	if g.Validate(token, "") || g.Validate("", token) || g.Validate("", "") {
		t.Fatal("absent tokens must be rejected")
	}
	if g.Validate(token, token[:len(token)-1]) {
		t.Fatal("length mismatch must be rejected")
	}
	other := strings.Repeat("x", len(token))
	if g.Validate(token, other) {
		t.Fatal("differing content must be rejected")
	}
}

func TestGenerateTokenEntropy(t *testing.T) {
	first, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := GenerateToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == second {
		t.Fatal("two generated tokens must differ")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(first)
	if err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if len(decoded) != TokenBytes {
		t.Fatalf("expected %d bytes of entropy, got %d", TokenBytes, len(decoded))
	}
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	g := testGuard()
	handler := g.Middleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token, _ := GenerateToken()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fields", nil)
	req.AddCookie(&http.Cookie{Name: "mz_csrf", Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without header, got %d", rr.Code)
	}
}

func TestMiddlewareAcceptsMatchingPair(t *testing.T) {
	g := testGuard()
	handler := g.Middleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token, _ := GenerateToken()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fields", nil)
	req.AddCookie(&http.Cookie{Name: "mz_csrf", Value: token})
	req.Header.Set("X-CSRF-Token", token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with matching pair, got %d", rr.Code)
	}
}

func TestIssueHandlerSetsCookieAndEcho(t *testing.T) {
	g := testGuard()
	rr := httptest.NewRecorder()
	g.IssueHandler(zerolog.Nop())(rr, httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "mz_csrf" || cookies[0].Value == "" {
		t.Fatalf("expected csrf cookie to be set, got %v", cookies)
	}
	if cookies[0].HttpOnly {
		t.Fatal("csrf cookie must stay readable by the client script")
	}
	if !strings.Contains(rr.Body.String(), cookies[0].Value) {
		t.Fatal("response body must echo the cookie token")
	}
}

func TestTokenHonoursGenerateOverride(t *testing.T) {
	g := Guard{Generate: func() (string, error) { return "pinned-token", nil }}
	token, err := g.Token()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "pinned-token" {
		t.Fatalf("expected override token, got %q", token)
	}

	rr := httptest.NewRecorder()
	g.Set(rr, token)
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != "pinned-token" {
		t.Fatalf("expected pinned cookie, got %v", cookies)
	}
}
