package ws

import (
	"sync"
	"time"
)

// slidingWindow is the per-connection flood gate: at most limit events per
// interval, counted over a sliding window.
type slidingWindow struct {
	mu       sync.Mutex
	limit    int
	interval time.Duration
	hits     []time.Time
}

func newSlidingWindow(limit int, interval time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:    limit,
		interval: interval,
		hits:     make([]time.Time, 0, limit),
	}
}

// Allow records an event and reports whether it is within the limit.
func (w *slidingWindow) Allow(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cutoff := now.Add(-w.interval)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept
	if len(w.hits) >= w.limit {
		return false
	}
	w.hits = append(w.hits, now)
	return true
}
