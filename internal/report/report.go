// Package report ingests Content-Security-Policy violation reports posted
// by browsers. Reports are filtered, logged, counted, and optionally
// forwarded; the endpoint always answers 204 so probing it reveals
// nothing about which reports were kept.
package report

import (
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// Violation is the browser-supplied report body, either bare or wrapped
// in a "csp-report" envelope (the report-uri format).
type Violation struct {
	DocumentURI        string `json:"document-uri" validate:"required"`
	Referrer           string `json:"referrer"`
	ViolatedDirective  string `json:"violated-directive" validate:"required"`
	EffectiveDirective string `json:"effective-directive"`
	OriginalPolicy     string `json:"original-policy"`
	Disposition        string `json:"disposition"`
	BlockedURI         string `json:"blocked-uri"`
	StatusCode         int    `json:"status-code"`
	SourceFile         string `json:"source-file"`
	LineNumber         int    `json:"line-number"`
	ColumnNumber       int    `json:"column-number"`
}

type envelope struct {
	Report *Violation `json:"csp-report"`
}

// NewValidator returns the struct validator used for report documents.
func NewValidator() *validator.Validate {
	return validator.New()
}

// Browser extensions inject styles and scripts into every page and
// generate a constant stream of violations that say nothing about the
// site's own policy.
var noiseSchemes = []string{
	"chrome-extension",
	"moz-extension",
	"safari-extension",
	"safari-web-extension",
	"ms-browser-extension",
	"about",
	"data",
	"blob",
}

// IsNoise reports whether the violation originates from a source the
// platform does not control and should be silently dropped.
func IsNoise(v Violation) bool {
	blocked := strings.ToLower(strings.TrimSpace(v.BlockedURI))
	for _, scheme := range noiseSchemes {
		if blocked == scheme || strings.HasPrefix(blocked, scheme+":") {
			return true
		}
	}
	source := strings.ToLower(strings.TrimSpace(v.SourceFile))
	for _, scheme := range noiseSchemes {
		if strings.HasPrefix(source, scheme+":") {
			return true
		}
	}
	return false
}
