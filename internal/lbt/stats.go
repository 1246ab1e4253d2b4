package lbt

import "sync/atomic"

// Stats tracks engine counters. All fields are updated with atomic
// increments so the producer feed path and the latency-critical
// decision path never contend on a lock for observability.
type Stats struct {
	checks    atomic.Uint64
	busy      atomic.Uint64
	received  atomic.Uint64
	dropped   atomic.Uint64
	overflows atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the engine counters.
type StatsSnapshot struct {
	Checks    uint64 `json:"checks"`
	BusyCount uint64 `json:"busy_count"`
	Received  uint64 `json:"received"`
	Dropped   uint64 `json:"dropped"`
	Overflows uint64 `json:"overflow_count"`
}

// AddCheck records one sensing check, and a busy verdict when the
// channel was measured occupied.
func (s *Stats) AddCheck(busy bool) {
	s.checks.Add(1)
	if busy {
		s.busy.Add(1)
	}
}

// AddReceived records n samples offered by the front end.
func (s *Stats) AddReceived(n int) {
	s.received.Add(uint64(n))
}

// AddDropped records n samples dropped because the buffer lock was
// contended.
func (s *Stats) AddDropped(n int) {
	s.dropped.Add(uint64(n))
}

// AddOverflow records one feed call that evicted old samples.
func (s *Stats) AddOverflow() {
	s.overflows.Add(1)
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Checks:    s.checks.Load(),
		BusyCount: s.busy.Load(),
		Received:  s.received.Load(),
		Dropped:   s.dropped.Load(),
		Overflows: s.overflows.Load(),
	}
}

// Reset zeroes all counters.
func (s *Stats) Reset() {
	s.checks.Store(0)
	s.busy.Store(0)
	s.received.Store(0)
	s.dropped.Store(0)
	s.overflows.Store(0)
}
