package common

import (
	"net/http"
	"strings"
)

// UnknownClient is the shared bucket for requests whose origin cannot be
// attributed to an address.
const UnknownClient = "unknown"

// ClientIP resolves the client identity used for throttling: the first
// X-Forwarded-For entry, else X-Real-IP, else the shared "unknown" bucket.
// The first forwarded entry is spoofable unless a trusted proxy at the
// deployment boundary strips or overwrites the header; that is a
// deployment precondition, not something this code can enforce.
func ClientIP(r *http.Request) string {
	if r == nil {
		return UnknownClient
	}
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first := forwarded
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			first = forwarded[:idx]
		}
		if candidate := strings.TrimSpace(first); candidate != "" {
			return candidate
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}
