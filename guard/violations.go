package guard

import (
	"sync"
	"time"
)

// violationRecord tracks denials for one principal within a sliding
// window.
type violationRecord struct {
	count            int
	firstViolationMs int64
}

// violationTracker counts denials per principal and escalates to a ban
// once a threshold is crossed within the configured window.
type violationTracker struct {
	mu      sync.Mutex
	records map[string]*violationRecord

	window      time.Duration
	banDuration time.Duration
	threshold   int
}

func newViolationTracker(window, banDuration time.Duration, threshold int) *violationTracker {
	return &violationTracker{
		records:     make(map[string]*violationRecord),
		window:      window,
		banDuration: banDuration,
		threshold:   threshold,
	}
}

// track records a denial for principal. It returns a non-zero ban
// duration the instant the threshold is crossed, so the caller can
// install a ban in the same step.
func (vt *violationTracker) track(principal string, now time.Time) (banFor time.Duration, justBanned bool) {
	nowMs := now.UnixMilli()

	vt.mu.Lock()
	defer vt.mu.Unlock()

	rec, ok := vt.records[principal]
	if !ok || nowMs-rec.firstViolationMs > vt.window.Milliseconds() {
		rec = &violationRecord{count: 1, firstViolationMs: nowMs}
		vt.records[principal] = rec
		return 0, false
	}

	rec.count++
	if rec.count >= vt.threshold {
		delete(vt.records, principal)
		return vt.banDuration, true
	}
	return 0, false
}

// sweep purges violation records older than 2*window whose window has
// lapsed without a fresh violation.
func (vt *violationTracker) sweep(now time.Time) int {
	cutoff := now.UnixMilli() - 2*vt.window.Milliseconds()

	vt.mu.Lock()
	defer vt.mu.Unlock()

	purged := 0
	for principal, rec := range vt.records {
		if rec.firstViolationMs < cutoff {
			delete(vt.records, principal)
			purged++
		}
	}
	return purged
}
