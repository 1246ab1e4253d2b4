package lbt

import "testing"

func TestStabilityFiresAtThreshold(t *testing.T) {
	tr := newStabilityTracker(3)

	if tr.observe(true) || tr.observe(true) {
		t.Fatal("fired before the threshold")
	}
	if !tr.observe(true) {
		t.Fatal("expected fire on the third free verdict")
	}
	if got := tr.consecutiveFree(); got != 0 {
		t.Fatalf("streak = %d after firing, want 0", got)
	}
}

func TestStabilityBusyResets(t *testing.T) {
	tr := newStabilityTracker(3)

	tr.observe(true)
	tr.observe(true)
	if tr.observe(false) {
		t.Fatal("busy verdict must not fire")
	}
	if got := tr.consecutiveFree(); got != 0 {
		t.Fatalf("streak = %d after busy, want 0", got)
	}
	tr.observe(true)
	tr.observe(true)
	if tr.observe(true) != true {
		t.Fatal("streak must rebuild from zero")
	}
}

func TestStabilityReset(t *testing.T) {
	tr := newStabilityTracker(3)
	tr.observe(true)
	tr.observe(true)
	tr.reset()
	if got := tr.consecutiveFree(); got != 0 {
		t.Fatalf("streak = %d after reset, want 0", got)
	}
}

func TestStabilityDefaultThreshold(t *testing.T) {
	tr := newStabilityTracker(0)
	tr.observe(true)
	tr.observe(true)
	if !tr.observe(true) {
		t.Fatal("non-positive threshold should fall back to the default of 3")
	}
}
