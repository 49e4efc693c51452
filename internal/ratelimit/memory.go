package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter. Counts are per process:
// horizontally scaled deployments see approximate totals, which is the
// documented trade-off of not sharing a store.
type Memory struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewMemory constructs an empty in-memory limiter store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// WithNow allows tests to override the time provider.
func (m *Memory) WithNow(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// Allow registers a request for the key and reports whether it is within
// the fixed window. The first request in a window creates the record with
// count 1; a record at the maximum is not incremented further; a record
// whose window has passed is replaced, never incremented.
func (m *Memory) Allow(_ context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := m.now()
	if max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || now.After(rec.resetAt) {
		rec = &record{count: 1, resetAt: now.Add(window)}
		m.records[key] = rec
		return true, max - 1, rec.resetAt, nil
	}

	if rec.count >= max {
		return false, 0, rec.resetAt, nil
	}
	rec.count++
	return true, max - rec.count, rec.resetAt, nil
}

// Len reports the number of live records, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// SweepExpired deletes records whose window has passed, bounding memory
// growth under many transient keys such as spoofed addresses.
func (m *Memory) SweepExpired() int {
	now := m.now()

	m.mu.Lock()
	expired := make([]string, 0)
	for key, rec := range m.records {
		if now.After(rec.resetAt) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		delete(m.records, key)
	}
	m.mu.Unlock()

	return len(expired)
}

// Sweep runs SweepExpired on the given cadence until the context is
// cancelled. Intended as a background goroutine with the interval set to
// the window length.
func (m *Memory) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepExpired()
		}
	}
}
