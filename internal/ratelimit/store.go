package ratelimit

import (
	"context"
	"errors"
	"time"

	limiter "github.com/ulule/limiter/v3"
)

// StoreLimiter adapts a ulule/limiter store (typically the Redis driver)
// to the Limiter interface, giving horizontally scaled deployments a
// shared counter.
type StoreLimiter struct {
	Store limiter.Store
}

// Allow registers a request against the shared store.
func (s StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if s.Store == nil {
		return false, 0, time.Time{}, errors.New("ratelimit: store not configured")
	}
	if max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	result, err := s.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return false, 0, time.Time{}, err
	}
	reset := time.Unix(result.Reset, 0)
	remaining := int(result.Remaining)
	if remaining < 0 {
		remaining = 0
	}
	return !result.Reached, remaining, reset, nil
}
