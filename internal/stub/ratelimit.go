package stub

import (
	"sync"
	"time"
)

// rateLimiter is a sliding-window counter keyed by caller (IP or phone).
// Stale windows are pruned on access, so no background goroutine is
// needed for the stub's lifetime.
type rateLimiter struct {
	mu      sync.Mutex
	seen    map[string][]time.Time
	window  time.Duration
	maxReqs int
}

func newRateLimiter(window time.Duration, maxReqs int) *rateLimiter {
	return &rateLimiter{
		seen:    make(map[string][]time.Time),
		window:  window,
		maxReqs: maxReqs,
	}
}

// allow records an attempt for key and reports whether it fits in the
// window
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window)
	kept := rl.seen[key][:0]
	for _, t := range rl.seen[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.maxReqs {
		rl.seen[key] = kept
		return false
	}

	rl.seen[key] = append(kept, time.Now())
	return true
}
