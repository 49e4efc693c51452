package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mazra-app/backend-gate/internal/common"
)

const defaultSocketTokenTTL = 60 * time.Second

// Issuer mints short-lived credentials for the realtime socket bridge.
// These are the only tokens the gate ever signs; durable credentials come
// from the platform identity service.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// IssuerConfig configures the socket token issuer.
type IssuerConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// NewIssuer constructs an Issuer with sane defaults.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: secret", ErrConfigMissing)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("%w: issuer", ErrConfigMissing)
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("%w: audience", ErrConfigMissing)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultSocketTokenTTL
	}
	return &Issuer{
		secret:   []byte(strings.TrimSpace(cfg.Secret)),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (i *Issuer) WithNow(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// SocketToken signs a short-lived token carrying the verified identity.
func (i *Issuer) SocketToken(claims common.Claims) (string, time.Time, error) {
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.TenantID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject and tenant", ErrMissingClaims)
	}
	now := i.now()
	expiry := now.Add(i.ttl)
	builder := jwt.NewBuilder().
		Issuer(i.issuer).
		Audience([]string{i.audience}).
		Subject(claims.Subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(expiry).
		Claim(tenantClaim, claims.TenantID)
	if len(claims.Roles) > 0 {
		builder = builder.Claim(rolesClaim, claims.Roles)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build socket token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, i.secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign socket token: %w", err)
	}
	return string(signed), expiry, nil
}
