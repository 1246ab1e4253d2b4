// Package lbt implements the listen-before-talk channel-access core
// for a base-station scheduler operating in unlicensed spectrum.
//
// The Engine consumes I/Q sample batches pushed by a radio front end,
// maintains a cached received-power estimate, and answers one question
// per scheduling slot: may the scheduler commit a transmission right
// now? Two regulator-defined algorithms back the answer: frame-based
// periodic gating (FBE) and load-based clear-channel assessment with
// random backoff (LBE).
package lbt

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/spectrum.report/internal/timeutil"
)

// RXControl lets the engine yield receive-path resources around a
// transmit window. Both calls default to no-ops when the front end
// manages its own stream.
type RXControl interface {
	StopRX()
	RestartRX()
}

type noopRX struct{}

func (noopRX) StopRX()    {}
func (noopRX) RestartRX() {}

// Options configures a new Engine. The zero value is usable: default
// buffer capacity, real clock, no-op RX control, no sinks.
type Options struct {
	// BufferCapacity bounds the sample FIFO; 0 means DefaultBufferCapacity.
	BufferCapacity int

	// Clock supplies time and sleeps; nil means the real clock.
	Clock timeutil.Clock

	// RX is notified when the receive path should yield or resume.
	RX RXControl

	// OnTransmitTrigger fires when the channel has been sensed free for
	// the stability threshold in a row, supporting opportunistic
	// transmission outside the per-slot cadence.
	OnTransmitTrigger func()

	// StabilityThreshold overrides the consecutive-free trigger count;
	// 0 means the default of 3.
	StabilityThreshold int

	// Sinks receive every sensing event when event logging is enabled.
	Sinks []EventSink

	// Rand seeds the backoff generator; nil means a time-seeded source.
	Rand *rand.Rand
}

// Engine is the channel-access decision core. It owns the sample
// buffer, energy cache and calibration state; producers feed samples,
// the scheduler asks for decisions, and neither ever blocks on the
// other.
type Engine struct {
	clock     timeutil.Clock
	buf       *sampleBuffer
	cal       atomic.Pointer[CalibrationState]
	est       *estimator
	cfg       atomic.Pointer[AccessConfig]
	fbe       atomic.Pointer[fbeState]
	threshold atomic.Uint64 // float64 bits
	stats     Stats
	stability *stabilityTracker
	rx        RXControl
	onTrigger func()
	sinks     []EventSink

	rngMu sync.Mutex
	rng   *rand.Rand

	// energy is the sensing-path reader; tests substitute fixed
	// profiles here without standing up a sample stream.
	energy func(fresh bool) float64
}

// New constructs an Engine. The engine starts unconfigured and behaves
// as a pass-through until UpdateConfig installs a valid configuration.
func New(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	rx := opts.RX
	if rx == nil {
		rx = noopRX{}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(clock.Now().UnixNano()))
	}

	e := &Engine{
		clock:     clock,
		buf:       newSampleBuffer(opts.BufferCapacity),
		stability: newStabilityTracker(opts.StabilityThreshold),
		rx:        rx,
		onTrigger: opts.OnTransmitTrigger,
		sinks:     opts.Sinks,
		rng:       rng,
	}
	e.cal.Store(&CalibrationState{NoiseFloorDbm: DefaultNoiseFloorDbm})
	e.est = newEstimator(e.buf, clock, &e.cal)
	e.threshold.Store(math.Float64bits(DefaultEdThresholdDbm))
	e.energy = e.est.Read
	return e
}

// FeedSamples absorbs one batch of complex baseband samples from the
// front end. It never blocks: a contended buffer drops the whole batch.
func (e *Engine) FeedSamples(batch []complex128) {
	if len(batch) == 0 {
		return
	}
	e.stats.AddReceived(len(batch))
	accepted, evicted := e.buf.feed(batch)
	if !accepted {
		e.stats.AddDropped(len(batch))
		return
	}
	if evicted {
		e.stats.AddOverflow()
	}
}

// FeedSamplesInt16 absorbs interleaved 16-bit I/Q pairs, normalising
// each to [-1, 1) before applying the usual buffer rules. A trailing
// unpaired value is ignored.
func (e *Engine) FeedSamplesInt16(iq []int16) {
	n := len(iq) / 2
	if n == 0 {
		return
	}
	batch := make([]complex128, n)
	for i := 0; i < n; i++ {
		batch[i] = complex(float64(iq[2*i])/32768.0, float64(iq[2*i+1])/32768.0)
	}
	e.FeedSamples(batch)
}

// ReadEnergy returns the current received power in dBm. fresh=true
// bypasses the cache validity window.
func (e *Engine) ReadEnergy(fresh bool) float64 {
	return e.energy(fresh)
}

// ProbeEnergy takes count forced-fresh readings spaced probeSpacing
// apart and returns them in order. count <= 0 takes probeReads
// readings. Manual receive-path check; not part of the sensing loop.
func (e *Engine) ProbeEnergy(count int) []float64 {
	if count <= 0 {
		count = probeReads
	}
	readings := make([]float64, count)
	for i := range readings {
		readings[i] = e.energy(true)
		if i < count-1 {
			e.clock.Sleep(probeSpacing)
		}
	}
	return readings
}

// Decide is the per-slot channel-access verdict. A disabled or
// unconfigured engine passes everything through; a PRACH occasion is
// granted unconditionally without sensing (regulatory exemption);
// otherwise the active algorithm decides, and the stability tracker is
// updated with the verdict.
func (e *Engine) Decide(isPrachSlot bool) bool {
	cfg := e.cfg.Load()
	if cfg == nil || !cfg.Enabled || cfg.Mode == ModeDisabled {
		return true
	}
	if isPrachSlot {
		return true
	}

	var granted, sensedFree bool
	switch cfg.Mode {
	case ModeFBE:
		granted = e.fbeDecide(cfg)
		sensedFree = granted
	default:
		granted, sensedFree = e.senseAndAcquire(cfg)
	}

	if e.stability.observe(sensedFree) && e.onTrigger != nil {
		e.onTrigger()
	}
	return granted
}

// OnTransmitComplete restores the receive path after a granted
// transmission. The scheduler must call it exactly once per grant.
func (e *Engine) OnTransmitComplete() {
	e.clock.Sleep(txCompleteGuard)
	e.rx.RestartRX()
}

// UpdateConfig validates and atomically installs a new configuration
// snapshot. On error the previous configuration (or the unconfigured
// pass-through state) is left in place.
func (e *Engine) UpdateConfig(cfg AccessConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg.Store(&cfg)
	if cfg.EdThresholdDbm != 0 {
		e.threshold.Store(math.Float64bits(cfg.EdThresholdDbm))
	}
	if cfg.Mode == ModeFBE {
		e.fbe.Store(deriveFBE(&cfg, e.clock.Now()))
	}
	return nil
}

// Config returns the active configuration snapshot. ok is false while
// the engine is unconfigured.
func (e *Engine) Config() (cfg AccessConfig, ok bool) {
	p := e.cfg.Load()
	if p == nil {
		return AccessConfig{}, false
	}
	return *p, true
}

// SetThreshold pins the energy-detection threshold in dBm.
func (e *Engine) SetThreshold(dbm float64) {
	e.threshold.Store(math.Float64bits(dbm))
}

// Threshold returns the active energy-detection threshold in dBm.
func (e *Engine) Threshold() float64 {
	return math.Float64frombits(e.threshold.Load())
}

// NoiseFloor returns the current noise floor in dBm.
func (e *Engine) NoiseFloor() float64 {
	return e.cal.Load().NoiseFloorDbm
}

// Calibration returns the current calibration state.
func (e *Engine) Calibration() CalibrationState {
	return *e.cal.Load()
}

// ConsecutiveFree returns the current run of free sensing verdicts.
func (e *Engine) ConsecutiveFree() int {
	return e.stability.consecutiveFree()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() StatsSnapshot {
	return e.stats.Snapshot()
}

// ResetStats zeroes all counters.
func (e *Engine) ResetStats() {
	e.stats.Reset()
}

// ResetBuffer discards all buffered samples and invalidates the energy
// cache, as on device re-attach.
func (e *Engine) ResetBuffer() {
	e.buf.clear()
	e.est.invalidate()
	e.stability.reset()
}

// BufferLen returns the number of buffered samples.
func (e *Engine) BufferLen() int {
	return e.buf.len()
}

// recordCheck updates the shared counters and, when event logging is
// enabled, forwards the verdict to all sinks.
func (e *Engine) recordCheck(energyDbm, thresholdDbm float64, free bool, mode Mode) {
	e.stats.AddCheck(!free)
	cfg := e.cfg.Load()
	if cfg == nil || !cfg.LogLBT || len(e.sinks) == 0 {
		return
	}
	ev := SensingEvent{
		Time:         e.clock.Now(),
		EnergyDbm:    energyDbm,
		ThresholdDbm: thresholdDbm,
		Free:         free,
		Mode:         mode,
	}
	for _, s := range e.sinks {
		s.RecordSensing(ev)
	}
}

func (e *Engine) randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}
