package main

import (
	"sync"
	"time"
)

// Rate limits sends to a fixed number per sliding minute.
type Rate struct {
	mu  sync.Mutex
	cap int
	win []time.Time
}

// NewRate returns a limiter allowing nPerMin sends per minute.
// A cap of zero or less disables the limit.
func NewRate(nPerMin int) *Rate {
	return &Rate{cap: nPerMin}
}

// Allow reports whether another send fits inside the window and
// records it when it does.
func (r *Rate) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cut := now.Add(-time.Minute)
	kept := r.win[:0]
	for _, t := range r.win {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	r.win = kept

	if r.cap > 0 && len(r.win) >= r.cap {
		return false
	}
	r.win = append(r.win, now)
	return true
}
