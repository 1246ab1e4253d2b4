package lbt

import "testing"

func TestStatsCounters(t *testing.T) {
	var s Stats

	s.AddCheck(false)
	s.AddCheck(true)
	s.AddCheck(true)
	s.AddReceived(1024)
	s.AddDropped(256)
	s.AddOverflow()

	got := s.Snapshot()
	want := StatsSnapshot{Checks: 3, BusyCount: 2, Received: 1024, Dropped: 256, Overflows: 1}
	if got != want {
		t.Fatalf("snapshot = %+v, want %+v", got, want)
	}
}

func TestStatsReset(t *testing.T) {
	var s Stats
	s.AddCheck(true)
	s.AddReceived(10)
	s.Reset()
	if got := s.Snapshot(); got != (StatsSnapshot{}) {
		t.Fatalf("snapshot after reset = %+v, want zeroes", got)
	}
}
