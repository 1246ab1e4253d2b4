package iq

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// ComplexSink receives synthetic complex batches. The engine's
// FeedSamples satisfies it.
type ComplexSink interface {
	FeedSamples(batch []complex128)
}

// SyntheticSource generates baseband noise with an optional periodic
// interferer, for running the engine without radio hardware.
type SyntheticSource struct {
	sink ComplexSink

	// Configuration
	NoiseFloorDbFS float64       // mean power of the idle channel
	BurstDbFS      float64       // mean power while the interferer is on
	BurstPeriod    time.Duration // interferer on/off cycle, 0 disables bursts
	BurstFraction  float64       // fraction of the period the interferer is on
	BatchSize      int           // samples per feed
	FeedInterval   time.Duration // wall-clock spacing between feeds

	rng     *rand.Rand
	startAt time.Time
}

// NewSyntheticSource creates a generator producing an idle channel at
// -90 dBFS with a 100 ms interferer burst every second.
func NewSyntheticSource(sink ComplexSink) *SyntheticSource {
	return &SyntheticSource{
		sink:           sink,
		NoiseFloorDbFS: -90,
		BurstDbFS:      -60,
		BurstPeriod:    time.Second,
		BurstFraction:  0.1,
		BatchSize:      1024,
		FeedInterval:   time.Millisecond,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		startAt:        time.Now(),
	}
}

// NextBatch generates one batch for the given instant.
func (s *SyntheticSource) NextBatch(now time.Time) []complex128 {
	power := math.Pow(10, s.NoiseFloorDbFS/10)
	if s.burstActive(now) {
		power = math.Pow(10, s.BurstDbFS/10)
	}

	// Gaussian I and Q at half the target power each, so the mean
	// squared magnitude lands on the configured level.
	sigma := math.Sqrt(power / 2)
	batch := make([]complex128, s.BatchSize)
	for i := range batch {
		batch[i] = complex(s.rng.NormFloat64()*sigma, s.rng.NormFloat64()*sigma)
	}
	return batch
}

func (s *SyntheticSource) burstActive(now time.Time) bool {
	if s.BurstPeriod <= 0 || s.BurstFraction <= 0 {
		return false
	}
	offset := now.Sub(s.startAt) % s.BurstPeriod
	if offset < 0 {
		offset += s.BurstPeriod
	}
	return float64(offset) < s.BurstFraction*float64(s.BurstPeriod)
}

// Run feeds the sink until ctx is cancelled.
func (s *SyntheticSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.FeedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sink.FeedSamples(s.NextBatch(now))
		}
	}
}
