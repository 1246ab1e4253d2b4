// Package iq brings baseband I/Q samples into the channel-access
// engine, either from a UDP front end or from a synthetic source for
// testing and demos.
package iq

import (
	"sync/atomic"

	"github.com/banshee-data/spectrum.report/internal/monitoring"
)

// PacketStatsInterface provides packet statistics management for the
// sample listener.
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddSamples(count int)
	AddMalformed()
	LogStats()
}

// PacketStats is the default atomic-counter implementation.
type PacketStats struct {
	packets   atomic.Uint64
	bytes     atomic.Uint64
	samples   atomic.Uint64
	malformed atomic.Uint64
}

func (s *PacketStats) AddPacket(n int) {
	s.packets.Add(1)
	s.bytes.Add(uint64(n))
}

func (s *PacketStats) AddSamples(count int) {
	s.samples.Add(uint64(count))
}

func (s *PacketStats) AddMalformed() {
	s.malformed.Add(1)
}

// LogStats writes a one-line summary of the counters.
func (s *PacketStats) LogStats() {
	monitoring.Logf("iq: %d packets (%d bytes), %d samples, %d malformed",
		s.packets.Load(), s.bytes.Load(), s.samples.Load(), s.malformed.Load())
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (noopStats) AddPacket(bytes int)  {}
func (noopStats) AddSamples(count int) {}
func (noopStats) AddMalformed()        {}
func (noopStats) LogStats()            {}
