package config

import (
	"net/http"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"JWT_SECRET":   "test-secret",
		"JWT_ISSUER":   "mazra-id",
		"JWT_AUDIENCE": "mazra-app",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CSRFHeaderName != "X-CSRF-Token" {
		t.Fatalf("unexpected csrf header default: %q", cfg.CSRFHeaderName)
	}
	if cfg.CSRFTokenTTL != 24*time.Hour {
		t.Fatalf("unexpected csrf ttl default: %s", cfg.CSRFTokenTTL)
	}
	if cfg.CookieSameSite != http.SameSiteLaxMode {
		t.Fatalf("expected lax samesite default")
	}
	if len(cfg.ReturnToAllowList) == 0 || cfg.ReturnToDefaultPath != "/dashboard" {
		t.Fatalf("unexpected redirect defaults: %v %q", cfg.ReturnToAllowList, cfg.ReturnToDefaultPath)
	}
	if cfg.ReportRateMax != 10 || cfg.ReportRateWindow != time.Minute {
		t.Fatalf("unexpected report limits: %d %s", cfg.ReportRateMax, cfg.ReportRateWindow)
	}
}

func TestLoadRequiresVerificationMaterial(t *testing.T) {
	for _, missing := range []string{"JWT_SECRET", "JWT_ISSUER", "JWT_AUDIENCE"} {
		envs := baseEnv()
		envs[missing] = ""
		if _, err := LoadForTests(envs); err == nil {
			t.Fatalf("expected error when %s is absent", missing)
		}
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	envs := baseEnv()
	envs["CSRF_EXEMPT_PATHS"] = "/login, /logout ,"
	envs["RETURN_TO_ALLOWLIST"] = "/dashboard,/fields"
	envs["COOKIE_SAMESITE"] = "strict"
	envs["REPORT_RATE_MAX"] = "3"
	cfg, err := LoadForTests(envs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.CSRFExemptPaths) != 2 || cfg.CSRFExemptPaths[0] != "/login" {
		t.Fatalf("unexpected exempt paths: %v", cfg.CSRFExemptPaths)
	}
	if cfg.CookieSameSite != http.SameSiteStrictMode {
		t.Fatalf("expected strict samesite")
	}
	if cfg.ReportRateMax != 3 {
		t.Fatalf("expected report max override, got %d", cfg.ReportRateMax)
	}
}
