package report

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState represents the forwarder breaker state.
type BreakerState int

const (
	// BreakerClosed accepts all forwards and tracks failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen drops forwards until the cool-off period expires.
	BreakerOpen
	// BreakerHalfOpen allows a single probe to check collector recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a failure-ratio circuit breaker for the upstream collector.
// CSP reports are disposable, so a struggling collector is simply skipped
// instead of retried.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	minRequests  int
	failureRatio float64
	openedAt     time.Time
	openFor      time.Duration
	logger       zerolog.Logger
}

// NewBreaker constructs a breaker that opens once the failure ratio
// exceeds the threshold over at least minRequests observations.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration, logger zerolog.Logger) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	return &Breaker{
		state:        BreakerClosed,
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		logger:       logger,
	}
}

// Allow reports whether a forward may proceed. An open breaker permits one
// probe after the cool-off and moves to half-open.
func (b *Breaker) Allow(ctx context.Context) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) >= b.openFor {
			b.changeStateLocked(ctx, BreakerHalfOpen)
			return true
		}
		return false
	}
	return true
}

// Report records a forward outcome and transitions the state machine when
// thresholds are exceeded.
func (b *Breaker) Report(ctx context.Context, success bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		return
	case BreakerHalfOpen:
		if success {
			b.changeStateLocked(ctx, BreakerClosed)
		} else {
			b.changeStateLocked(ctx, BreakerOpen)
		}
		return
	}

	if success {
		b.successes++
	} else {
		b.failures++
	}
	total := b.failures + b.successes
	if total < b.minRequests {
		return
	}
	if float64(b.failures)/float64(total) >= b.failureRatio {
		b.changeStateLocked(ctx, BreakerOpen)
	} else if total > b.minRequests*2 {
		// keep the window rolling instead of growing unbounded
		b.successes = int(math.Ceil(float64(b.successes) * 0.5))
		b.failures = int(math.Ceil(float64(b.failures) * 0.5))
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	if b == nil {
		return BreakerClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) changeStateLocked(_ context.Context, next BreakerState) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == BreakerOpen {
		b.openedAt = time.Now()
	} else {
		b.openedAt = time.Time{}
	}
	b.failures = 0
	b.successes = 0
	b.logger.Info().
		Str("from_state", prev.String()).
		Str("to_state", next.String()).
		Msg("report forwarder breaker transition")
}
