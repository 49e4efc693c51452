// Package redirect validates client-supplied return-to paths so a login
// flow can never forward an authenticated user off-origin.
package redirect

import (
	"net/url"
	"strings"
)

// Parsing the candidate against a fixed dummy origin detects encoded-host
// tricks: an apparent relative path that resolves to another authority
// changes the host and is rejected.
const dummyOrigin = "https://gate.invalid"

// Sanitizer validates candidates against a fixed allow-list of known
// application routes.
type Sanitizer struct {
	AllowList []string
	Default   string
}

// IsValid reports whether the candidate is a safe same-origin path whose
// path component matches an allow-list entry exactly or as a
// slash-separated descendant.
func (s Sanitizer) IsValid(candidate string) bool {
	if candidate == "" {
		return false
	}
	if !strings.HasPrefix(candidate, "/") {
		return false
	}
	if strings.Contains(candidate, "//") || strings.Contains(candidate, "\\") {
		return false
	}
	decoded, err := url.PathUnescape(candidate)
	if err != nil {
		return false
	}
	if strings.Contains(decoded, "//") || strings.Contains(decoded, "\\") {
		return false
	}

	stripped := candidate
	if idx := strings.IndexAny(stripped, "?#"); idx >= 0 {
		stripped = stripped[:idx]
	}

	ref, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	base, err := url.Parse(dummyOrigin)
	if err != nil {
		return false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != base.Scheme || resolved.Host != base.Host {
		return false
	}
	// Reject whenever the resolved path disagrees with the manually
	// stripped input. Redundant with the checks above, kept deliberately.
	if resolved.Path != stripped {
		return false
	}

	for _, entry := range s.AllowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if resolved.Path == entry || strings.HasPrefix(resolved.Path, entry+"/") {
			return true
		}
	}
	return false
}

// Sanitize returns the candidate when valid and the default path
// otherwise. It never errors; a rejected redirect degrades silently.
func (s Sanitizer) Sanitize(candidate string) string {
	if s.IsValid(candidate) {
		return candidate
	}
	if strings.TrimSpace(s.Default) != "" {
		return s.Default
	}
	return "/"
}
