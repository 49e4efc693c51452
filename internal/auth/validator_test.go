package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func buildValidatorToken(t *testing.T, issuer string, issuedAt, notBefore, expiresAt time.Time) jwt.Token {
	t.Helper()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Audience([]string{testAudience}).
		Subject("user-42").
		IssuedAt(issuedAt).
		NotBefore(notBefore).
		Expiration(expiresAt).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	return token
}

func TestTokenValidatorValidateSuccess(t *testing.T) {
	now := time.Now()
	token := buildValidatorToken(t, testIssuer, now, now, now.Add(time.Minute))

	validator := TokenValidator{Issuer: testIssuer, Audience: testAudience, ClockSkew: time.Second, Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.HS256, now); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTokenValidatorIssuerMismatch(t *testing.T) {
	now := time.Now()
	token := buildValidatorToken(t, "https://rogue.example", now, now, now.Add(time.Minute))

	validator := TokenValidator{Issuer: testIssuer, Audience: testAudience, Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.HS256, now); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestTokenValidatorExpiry(t *testing.T) {
	now := time.Now()
	token := buildValidatorToken(t, testIssuer, now.Add(-2*time.Hour), now.Add(-2*time.Hour), now.Add(-time.Minute))

	validator := TokenValidator{Issuer: testIssuer, Audience: testAudience, Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.HS256, now); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestTokenValidatorNotBefore(t *testing.T) {
	now := time.Now()
	token := buildValidatorToken(t, testIssuer, now, now.Add(5*time.Minute), now.Add(10*time.Minute))

	validator := TokenValidator{Issuer: testIssuer, Audience: testAudience, Algorithm: jwa.HS256, ClockSkew: time.Second}
	if err := validator.Validate(token, jwa.HS256, now); err == nil {
		t.Fatal("expected not-before validation error")
	}
}

func TestTokenValidatorAlgorithmMismatch(t *testing.T) {
	now := time.Now()
	token := buildValidatorToken(t, testIssuer, now, now, now.Add(time.Minute))

	validator := TokenValidator{Issuer: testIssuer, Audience: testAudience, Algorithm: jwa.HS256}
	if err := validator.Validate(token, jwa.RS256, now); err == nil {
		t.Fatal("expected algorithm mismatch error")
	}
}
