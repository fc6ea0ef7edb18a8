// Package ratelimit implements the fixed-window call budget applied to each
// external-data category (news, stock, search).
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Error reports a categorical rate-limit violation. It is never retried by
// the server; callers surface it as a 429.
type Error struct {
	Category string
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit for %s exceeded, try again later", e.Category)
}

type state struct {
	windowStart time.Time
	count       int
}

// Limiter is a fixed-window counter per category. A single instance is shared
// by all request handlers and manually triggered jobs, so the counters are
// guarded by a mutex: concurrent checks in the same window must not each pass
// a check that should have failed.
type Limiter struct {
	mu       sync.Mutex
	window   time.Duration
	maxCalls int
	states   map[string]*state
	now      func() time.Time
}

// New builds a limiter tracking the given categories. Checks against unknown
// categories always pass.
func New(window time.Duration, maxCalls int, categories ...string) *Limiter {
	states := make(map[string]*state, len(categories))
	for _, c := range categories {
		states[c] = &state{}
	}
	return &Limiter{window: window, maxCalls: maxCalls, states: states, now: time.Now}
}

// Check consumes one call from the category's window budget. If the window
// has elapsed the counter resets first; if the budget is spent it returns
// *Error without consuming.
func (l *Limiter) Check(category string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.states[category]
	if !ok {
		return nil
	}
	now := l.now()
	if now.Sub(st.windowStart) > l.window {
		st.windowStart = now
		st.count = 0
	}
	if st.count >= l.maxCalls {
		return &Error{Category: category}
	}
	st.count++
	return nil
}
