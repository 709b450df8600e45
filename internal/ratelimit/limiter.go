package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window implements a fixed rolling-window rate limiter: at most limit
// calls per window, counted from the first call of the window. Simpler
// accounting than a leaky bucket; bursts at window boundaries are
// acceptable for the APIs we call.
type Window struct {
	limit  int
	window time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewWindow creates a limiter allowing limit calls per window.
func NewWindow(limit int, window time.Duration) *Window {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Window{limit: limit, window: window}
}

// PerMinute creates a limiter allowing callsPerMinute calls per rolling
// 60-second window.
func PerMinute(callsPerMinute int) *Window {
	return NewWindow(callsPerMinute, time.Minute)
}

// Allow reports whether a call may proceed now, counting it if so.
func (w *Window) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.roll(time.Now())
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// Acquire blocks until a slot is available or ctx is cancelled. A caller
// waiting here holds no other lock, so one saturated provider never stalls
// the rest.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		w.roll(now)
		if w.count < w.limit {
			w.count++
			w.mu.Unlock()
			return nil
		}
		wait := w.windowStart.Add(w.window).Sub(now)
		w.mu.Unlock()

		if wait <= 0 {
			wait = time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining returns how many calls are left in the current window.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.roll(time.Now())
	return w.limit - w.count
}

// roll resets the counter when the window has elapsed. Must be called
// with the mutex held.
func (w *Window) roll(now time.Time) {
	if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.window {
		w.windowStart = now
		w.count = 0
	}
}

// Registry holds one Window per provider so each API gets its own quota.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*Window
	fallback int // calls per minute for providers without an explicit limit
}

// NewRegistry creates a registry. Providers without an explicit limit get
// fallbackPerMinute calls per rolling minute.
func NewRegistry(fallbackPerMinute int) *Registry {
	if fallbackPerMinute < 1 {
		fallbackPerMinute = 30
	}
	return &Registry{
		limiters: make(map[string]*Window),
		fallback: fallbackPerMinute,
	}
}

// SetLimit configures the per-minute limit for a provider. Replaces any
// existing window, resetting its count.
func (r *Registry) SetLimit(provider string, callsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[provider] = PerMinute(callsPerMinute)
}

// Limiter returns the window for a provider, creating one at the fallback
// rate on first use.
func (r *Registry) Limiter(provider string) *Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.limiters[provider]
	if !ok {
		w = PerMinute(r.fallback)
		r.limiters[provider] = w
	}
	return w
}

// Acquire blocks until the named provider has quota or ctx is cancelled.
func (r *Registry) Acquire(ctx context.Context, provider string) error {
	return r.Limiter(provider).Acquire(ctx)
}
