package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gateOnce sync.Once

	// AuthRejectedTotal counts rejected credentials by failure kind.
	AuthRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "auth_rejected_total",
		Help:      "Count of rejected credentials by failure kind.",
	}, []string{"reason"})
	// CSRFRejectedTotal counts requests failing the double-submit check.
	CSRFRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "csrf_rejected_total",
		Help:      "Count of requests failing the double-submit token check.",
	})
	// RateLimitedTotal counts throttled requests per endpoint group.
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "rate_limited_total",
		Help:      "Count of requests rejected by the rate limiter.",
	}, []string{"endpoint"})
	// RedirectRejectedTotal counts return-to candidates that failed the
	// allow-list and degraded to the default path.
	RedirectRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "redirect_rejected_total",
		Help:      "Count of return-to candidates replaced with the default path.",
	})
	// ReportsTotal counts CSP violation report outcomes.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gate",
		Name:      "csp_reports_total",
		Help:      "Count of CSP violation reports by outcome.",
	}, []string{"outcome"})
)

// MustRegisterGateMetrics registers the gate decision collectors exactly
// once. Collectors work unregistered, so tests can increment them without
// calling this.
func MustRegisterGateMetrics(reg prometheus.Registerer) {
	gateOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		for _, collector := range []prometheus.Collector{
			AuthRejectedTotal,
			CSRFRejectedTotal,
			RateLimitedTotal,
			RedirectRejectedTotal,
			ReportsTotal,
		} {
			if err := reg.Register(collector); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
					continue
				}
				panic(fmt.Errorf("register gate metric: %w", err))
			}
		}
	})
}
