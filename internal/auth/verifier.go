package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/mazra-app/backend-gate/internal/common"
)

// Verification failure kinds. Callers log the kind but collapse everything
// except ErrConfigMissing to a generic unauthenticated response.
var (
	// ErrConfigMissing means required verification material (secret, issuer,
	// or audience) was absent. The verifier fails closed rather than
	// skipping the corresponding check.
	ErrConfigMissing = errors.New("auth: verifier configuration missing")
	// ErrMalformed means the credential is not a parseable compact token.
	ErrMalformed = errors.New("auth: token malformed")
	// ErrSignature means the signature did not verify or used an
	// unacceptable algorithm.
	ErrSignature = errors.New("auth: token signature invalid")
	// ErrOutsideWindow means the token is expired or not yet valid.
	ErrOutsideWindow = errors.New("auth: token outside validity window")
	// ErrClaimMismatch means issuer or audience did not match expectations.
	ErrClaimMismatch = errors.New("auth: issuer or audience mismatch")
	// ErrMissingClaims means subject or tenant claims were empty.
	ErrMissingClaims = errors.New("auth: required claims missing")
)

// Private claim names carried by platform credentials.
const (
	tenantClaim      = "tenant"
	rolesClaim       = "roles"
	permissionsClaim = "permissions"
)

// Verifier checks credentials issued by the platform identity service.
// It only verifies and decodes; long-lived credentials are never minted
// here. Verification is pure: no I/O, nothing logged.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// VerifierConfig configures a Verifier. Secret, Issuer, and Audience are
// all mandatory.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// NewVerifier constructs a Verifier, failing closed when any required
// configuration value is absent.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("%w: secret", ErrConfigMissing)
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("%w: issuer", ErrConfigMissing)
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("%w: audience", ErrConfigMissing)
	}
	skew := cfg.ClockSkew
	if skew < 0 {
		skew = 0
	}
	return &Verifier{
		secret: []byte(strings.TrimSpace(cfg.Secret)),
		validator: TokenValidator{
			Issuer:    strings.TrimSpace(cfg.Issuer),
			Audience:  strings.TrimSpace(cfg.Audience),
			ClockSkew: skew,
			Algorithm: jwa.HS256,
		},
		now: time.Now,
	}, nil
}

// WithNow allows tests to override the time provider.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Verify checks signature, issuer, audience, and validity window, then
// requires non-empty subject and tenant claims. Roles and permissions
// default to empty slices when absent.
func (v *Verifier) Verify(raw string) (common.Claims, error) {
	if v == nil || len(v.secret) == 0 {
		return common.Claims{}, ErrConfigMissing
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return common.Claims{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return common.Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if algorithm != v.validator.Algorithm {
		return common.Claims{}, fmt.Errorf("%w: unexpected algorithm %s", ErrSignature, algorithm)
	}

	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret))
	if err != nil {
		return common.Claims{}, fmt.Errorf("%w: %v", ErrSignature, err)
	}

	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return common.Claims{}, classifyValidationError(err)
	}

	claims := common.Claims{
		Subject:     strings.TrimSpace(parsed.Subject()),
		TenantID:    strings.TrimSpace(stringClaim(parsed, tenantClaim)),
		Roles:       stringSliceClaim(parsed, rolesClaim),
		Permissions: stringSliceClaim(parsed, permissionsClaim),
	}
	if claims.Subject == "" {
		return common.Claims{}, fmt.Errorf("%w: subject", ErrMissingClaims)
	}
	if claims.TenantID == "" {
		return common.Claims{}, fmt.Errorf("%w: tenant", ErrMissingClaims)
	}
	return claims, nil
}

func classifyValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()), errors.Is(err, jwt.ErrTokenNotYetValid()):
		return fmt.Errorf("%w: %v", ErrOutsideWindow, err)
	case errors.Is(err, jwt.ErrInvalidIssuer()), errors.Is(err, jwt.ErrInvalidAudience()):
		return fmt.Errorf("%w: %v", ErrClaimMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrClaimMismatch, err)
	}
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
			continue
		}
		if algorithm != alg {
			return "", errors.New("auth: token mixes signature algorithms")
		}
	}
	return algorithm, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func stringSliceClaim(tok jwt.Token, name string) []string {
	v, ok := tok.Get(name)
	if !ok {
		return []string{}
	}
	switch values := v.(type) {
	case []string:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return []string{}
	}
}
