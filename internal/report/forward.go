package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrForwarderOpen is returned while the breaker refuses forwards.
var ErrForwarderOpen = errors.New("report: forwarder circuit open")

// Forwarder relays accepted violations to an upstream collector. Delivery
// is best effort and never retried; a failed forward only reaches the log.
// An optional breaker skips the collector entirely while it is failing.
type Forwarder struct {
	URL     string
	Client  *http.Client
	Breaker *Breaker
}

// Enabled reports whether forwarding is configured.
func (f *Forwarder) Enabled() bool {
	return f != nil && f.URL != "" && f.Client != nil
}

// Forward posts the violation to the collector, tagged with the gate's
// correlation identifier.
func (f *Forwarder) Forward(ctx context.Context, id string, v Violation) error {
	if !f.Enabled() {
		return nil
	}
	if !f.Breaker.Allow(ctx) {
		return ErrForwarderOpen
	}
	payload, err := json.Marshal(map[string]any{
		"report_id":  id,
		"csp-report": v,
	})
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		f.Breaker.Report(ctx, false)
		return fmt.Errorf("forward report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusBadRequest {
		f.Breaker.Report(ctx, false)
		return fmt.Errorf("forward report: collector responded %d", resp.StatusCode)
	}
	f.Breaker.Report(ctx, true)
	return nil
}

// NewHTTPClient builds the forwarding client with a hard timeout and an
// otel-instrumented transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}
