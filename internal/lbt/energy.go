package lbt

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/banshee-data/spectrum.report/internal/timeutil"
	"github.com/banshee-data/spectrum.report/internal/units"
)

const (
	// cacheValidity bounds how long a computed energy value keeps
	// serving routine sensing checks before a recompute.
	cacheValidity = 500 * time.Microsecond

	// minSamples is the smallest population worth estimating from; a
	// thinner buffer yields the noise floor instead.
	minSamples = 100

	// fastWindow sizes the estimate used by every routine decision,
	// accurateWindow the one reserved for calibration.
	fastWindow     = 500
	accurateWindow = 2000

	// probeReads and probeSpacing shape a default energy probe run.
	probeReads   = 10
	probeSpacing = 100 * time.Millisecond
)

// CalibrationState converts raw sample power into absolute dBm. The
// offset is additive, the floor is the fallback whenever the buffer is
// too empty or the estimate degenerates. Replaced wholesale by a
// successful calibration run, never partially.
type CalibrationState struct {
	NoiseFloorDbm float64 `json:"noise_floor_dbm"`
	Calibrated    bool    `json:"calibrated"`
	OffsetDb      float64 `json:"calibration_offset_db"`
}

// estimator computes received power from the sample buffer, caching the
// last value so back-to-back sensing checks cost an atomic load.
type estimator struct {
	buf   *sampleBuffer
	clock timeutil.Clock
	cal   *atomic.Pointer[CalibrationState]

	cachedBits atomic.Uint64 // float64 bits of the last estimate
	cachedAtUs atomic.Int64  // unix micros of the last estimate, 0 = invalid
}

func newEstimator(buf *sampleBuffer, clock timeutil.Clock, cal *atomic.Pointer[CalibrationState]) *estimator {
	e := &estimator{buf: buf, clock: clock, cal: cal}
	e.cachedBits.Store(math.Float64bits(cal.Load().NoiseFloorDbm))
	return e
}

// Read returns the current received power in dBm. With fresh=false a
// cache entry younger than the validity window is returned without
// recomputation; otherwise the fast estimate is computed under the
// advisory buffer lock, falling back to the stale cached value on
// contention. The result always updates the cache.
func (e *estimator) Read(fresh bool) float64 {
	now := e.clock.Now()
	if !fresh {
		if at := e.cachedAtUs.Load(); at != 0 && now.UnixMicro()-at < cacheValidity.Microseconds() {
			return e.cached()
		}
	}

	tail, ok := e.buf.tryTail(fastWindow, nil)
	if !ok {
		// Producer holds the lock; a stale value beats blocking the
		// decision path.
		return e.cached()
	}
	dbm := e.estimate(tail)
	e.cachedBits.Store(math.Float64bits(dbm))
	e.cachedAtUs.Store(now.UnixMicro())
	return dbm
}

// readAccurate is the calibration-only path: a wider window, a blocking
// buffer lock, and no cache update so routine sensing semantics are
// undisturbed.
func (e *estimator) readAccurate() float64 {
	return e.estimate(e.buf.tail(accurateWindow, nil))
}

// rawDbFS returns the mean power of the fast window in dB relative to
// full scale, without the calibration offset. Used when deriving the
// offset against an external reference. ok is false when the lock is
// contended or the buffer is too thin.
func (e *estimator) rawDbFS() (dbfs float64, ok bool) {
	tail, ok := e.buf.tryTail(fastWindow, nil)
	if !ok || len(tail) < minSamples {
		return 0, false
	}
	return units.PowerToDb(meanPower(tail)), true
}

func (e *estimator) estimate(tail []complex128) float64 {
	cal := e.cal.Load()
	if len(tail) < minSamples {
		return cal.NoiseFloorDbm
	}
	dbm := units.PowerToDb(meanPower(tail)) + cal.OffsetDb
	if math.IsNaN(dbm) || math.IsInf(dbm, 0) {
		return cal.NoiseFloorDbm
	}
	return dbm
}

// invalidate forces the next Read to recompute regardless of age.
func (e *estimator) invalidate() {
	e.cachedAtUs.Store(0)
}

func (e *estimator) cached() float64 {
	return math.Float64frombits(e.cachedBits.Load())
}

// meanPower is the average squared magnitude of the samples.
func meanPower(samples []complex128) float64 {
	var sum float64
	for _, s := range samples {
		sum += real(s)*real(s) + imag(s)*imag(s)
	}
	return sum / float64(len(samples))
}
