package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensOnFailureRatio(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(2, 0.5, time.Minute, zerolog.Nop())

	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)
	require.True(t, b.Allow(ctx))
	b.Report(ctx, false)

	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow(ctx))
}

func TestBreakerHalfOpenProbeRecovers(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(1, 0.5, 10*time.Millisecond, zerolog.Nop())

	b.Report(ctx, false)
	require.Equal(t, BreakerOpen, b.State())

	require.Eventually(t, func() bool { return b.Allow(ctx) }, time.Second, time.Millisecond)
	require.Equal(t, BreakerHalfOpen, b.State())

	b.Report(ctx, true)
	require.Equal(t, BreakerClosed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(1, 0.5, 10*time.Millisecond, zerolog.Nop())

	b.Report(ctx, false)
	require.Eventually(t, func() bool { return b.Allow(ctx) }, time.Second, time.Millisecond)

	b.Report(ctx, false)
	require.Equal(t, BreakerOpen, b.State())
	require.False(t, b.Allow(ctx))
}

func TestNilBreakerAlwaysAllows(t *testing.T) {
	var b *Breaker
	require.True(t, b.Allow(context.Background()))
	b.Report(context.Background(), false)
}

func TestForwarderSkipsCollectorWhileOpen(t *testing.T) {
	var hits atomic.Int64
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	f := &Forwarder{
		URL:     upstream.URL,
		Client:  NewHTTPClient(time.Second),
		Breaker: NewBreaker(2, 0.5, time.Minute, zerolog.Nop()),
	}
	violation := Violation{DocumentURI: "https://app.mazra.example", ViolatedDirective: "script-src"}

	ctx := context.Background()
	require.Error(t, f.Forward(ctx, "r1", violation))
	require.Error(t, f.Forward(ctx, "r2", violation))
	require.Equal(t, int64(2), hits.Load())

	err := f.Forward(ctx, "r3", violation)
	require.ErrorIs(t, err, ErrForwarderOpen)
	require.Equal(t, int64(2), hits.Load())
}
