package iq

import (
	"math"
	"testing"
	"time"
)

type complexCollector struct {
	batches [][]complex128
}

func (c *complexCollector) FeedSamples(batch []complex128) {
	c.batches = append(c.batches, batch)
}

func meanPowerDb(batch []complex128) float64 {
	var sum float64
	for _, s := range batch {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return 10 * math.Log10(sum/float64(len(batch)))
}

func TestSyntheticNoiseLevel(t *testing.T) {
	s := NewSyntheticSource(nil)
	s.BurstPeriod = 0 // idle channel only
	s.BatchSize = 50000

	got := meanPowerDb(s.NextBatch(time.Now()))
	if math.Abs(got-s.NoiseFloorDbFS) > 0.5 {
		t.Errorf("idle power = %.2f dBFS, want %.2f +/- 0.5", got, s.NoiseFloorDbFS)
	}
}

func TestSyntheticBurstLevel(t *testing.T) {
	s := NewSyntheticSource(nil)
	s.BatchSize = 50000
	s.BurstPeriod = time.Second
	s.BurstFraction = 0.1

	// inside the burst window
	inBurst := s.startAt.Add(50 * time.Millisecond)
	got := meanPowerDb(s.NextBatch(inBurst))
	if math.Abs(got-s.BurstDbFS) > 0.5 {
		t.Errorf("burst power = %.2f dBFS, want %.2f +/- 0.5", got, s.BurstDbFS)
	}

	// outside the burst window
	idle := s.startAt.Add(500 * time.Millisecond)
	got = meanPowerDb(s.NextBatch(idle))
	if math.Abs(got-s.NoiseFloorDbFS) > 0.5 {
		t.Errorf("idle power = %.2f dBFS, want %.2f +/- 0.5", got, s.NoiseFloorDbFS)
	}
}

func TestSyntheticBurstSchedule(t *testing.T) {
	s := NewSyntheticSource(nil)
	s.BurstPeriod = time.Second
	s.BurstFraction = 0.1

	cases := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{99 * time.Millisecond, true},
		{100 * time.Millisecond, false},
		{999 * time.Millisecond, false},
		{time.Second, true}, // next cycle
		{1050 * time.Millisecond, true},
	}
	for _, c := range cases {
		if got := s.burstActive(s.startAt.Add(c.offset)); got != c.want {
			t.Errorf("burstActive(+%v) = %v, want %v", c.offset, got, c.want)
		}
	}
}

func TestSyntheticBatchSize(t *testing.T) {
	s := NewSyntheticSource(&complexCollector{})
	s.BatchSize = 256
	if got := len(s.NextBatch(time.Now())); got != 256 {
		t.Errorf("batch size = %d, want 256", got)
	}
}
