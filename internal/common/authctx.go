package common

import "context"

// Claims is the verified identity attached to a request after token
// verification. Roles and Permissions are never nil once verified.
type Claims struct {
	Subject     string   `json:"sub"`
	TenantID    string   `json:"tenant"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type ctxKey string

const claimsKey ctxKey = "auth/claims"

// WithClaims stores the verified claims on the provided context.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom extracts the verified claims from the context if present.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	v := ctx.Value(claimsKey)
	if v == nil {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// SubjectFrom returns the authenticated subject identifier, if any.
func SubjectFrom(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFrom(ctx)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
