package lbt

import "sync"

// defaultStabilityThreshold is how many consecutive free verdicts mark
// the channel stable enough to fire an opportunistic transmit trigger.
const defaultStabilityThreshold = 3

// stabilityTracker counts consecutive free sensing verdicts. Any busy
// verdict resets it; reaching the threshold fires once and resets.
type stabilityTracker struct {
	mu        sync.Mutex
	free      int
	threshold int
}

func newStabilityTracker(threshold int) *stabilityTracker {
	if threshold <= 0 {
		threshold = defaultStabilityThreshold
	}
	return &stabilityTracker{threshold: threshold}
}

// observe records one sensing verdict and reports whether the trigger
// threshold was reached on this observation.
func (t *stabilityTracker) observe(free bool) (fired bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !free {
		t.free = 0
		return false
	}
	t.free++
	if t.free >= t.threshold {
		t.free = 0
		return true
	}
	return false
}

// consecutiveFree returns the current run of free verdicts.
func (t *stabilityTracker) consecutiveFree() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.free
}

// reset clears the run without firing.
func (t *stabilityTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.free = 0
}
