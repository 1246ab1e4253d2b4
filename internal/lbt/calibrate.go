package lbt

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/spectrum.report/internal/monitoring"
	"github.com/banshee-data/spectrum.report/internal/units"
)

const (
	// calibrationSettle lets the receive chain settle before the first
	// measurement.
	calibrationSettle = 200 * time.Millisecond

	// calibrationSpacing separates successive calibration reads.
	calibrationSpacing = 10 * time.Millisecond

	// DefaultCalibrationReads is used when the caller passes a
	// non-positive sample count.
	DefaultCalibrationReads = 100

	// offsetCalibrationReads bounds the best-effort offset derivation.
	offsetCalibrationReads = 50
)

// Calibrate measures the noise floor from sampleCount forced-fresh
// accurate energy reads. Run it with no signal present, during
// initialization or reconfiguration, never inside the decision path.
//
// A reading counts only if it is finite and within the plausible
// receiver range. When more than half the readings are valid, their
// mean becomes the new noise floor and, unless the configuration pins
// an explicit threshold, the energy-detection threshold is re-derived
// as floor + 8 dB. On failure the prior calibration state is left
// untouched and the engine keeps operating on it.
func (e *Engine) Calibrate(sampleCount int) error {
	if sampleCount <= 0 {
		sampleCount = DefaultCalibrationReads
	}

	monitoring.Logf("lbt: calibrating noise floor (%d measurements)", sampleCount)
	e.clock.Sleep(calibrationSettle)
	e.est.invalidate()

	valid := make([]float64, 0, sampleCount)
	for i := 0; i < sampleCount; i++ {
		e.est.invalidate()
		dbm := e.est.readAccurate()
		if units.IsPlausibleDbm(dbm) {
			valid = append(valid, dbm)
		}
		e.clock.Sleep(calibrationSpacing)
	}

	if len(valid) <= sampleCount/2 {
		return fmt.Errorf("calibration failed: only %d of %d readings valid", len(valid), sampleCount)
	}

	floor := stat.Mean(valid, nil)
	prev := e.cal.Load()
	e.cal.Store(&CalibrationState{
		NoiseFloorDbm: floor,
		Calibrated:    true,
		OffsetDb:      prev.OffsetDb,
	})

	if cfg := e.cfg.Load(); cfg == nil || cfg.EdThresholdDbm == 0 {
		e.SetThreshold(floor + ThresholdMarginDb)
	}

	monitoring.Logf("lbt: noise floor %.2f dBm from %d valid readings, ED threshold %.2f dBm",
		floor, len(valid), e.Threshold())
	return nil
}

// CalibrateOffset derives the dBFS-to-dBm calibration offset from an
// externally measured reference power. It is best-effort: failure
// leaves the offset (and any prior noise-floor calibration) unchanged.
func (e *Engine) CalibrateOffset(referenceDbm float64) error {
	e.clock.Sleep(calibrationSettle)

	var sum float64
	count := 0
	for i := 0; i < offsetCalibrationReads; i++ {
		if dbfs, ok := e.est.rawDbFS(); ok {
			sum += dbfs
			count++
		}
		e.clock.Sleep(calibrationSpacing)
	}
	if count == 0 {
		return fmt.Errorf("offset calibration failed: no usable readings")
	}

	measured := sum / float64(count)
	offset := referenceDbm - measured
	prev := e.cal.Load()
	e.cal.Store(&CalibrationState{
		NoiseFloorDbm: prev.NoiseFloorDbm,
		Calibrated:    prev.Calibrated,
		OffsetDb:      offset,
	})

	monitoring.Logf("lbt: calibration offset %.2f dB (measured %.2f dBFS for %.2f dBm reference)",
		offset, measured, referenceDbm)
	return nil
}
