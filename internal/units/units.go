// Package units provides shared power-unit constants and conversions.
package units

import "math"

// MinMeanPower is the floor applied to linear mean power before taking
// the logarithm, so an empty or silent buffer never produces -Inf.
const MinMeanPower = 1e-12

// Plausible receiver range for a single energy reading in dBm. Readings
// outside this window are treated as glitches during calibration.
const (
	MinPlausibleDbm = -120.0
	MaxPlausibleDbm = -50.0
)

// PowerToDb converts a linear mean power to decibels, clamping at
// MinMeanPower.
func PowerToDb(meanPower float64) float64 {
	return 10.0 * math.Log10(math.Max(meanPower, MinMeanPower))
}

// DbToPower converts decibels back to linear power.
func DbToPower(db float64) float64 {
	return math.Pow(10.0, db/10.0)
}

// IsPlausibleDbm reports whether a reading is finite and within the
// plausible receiver range.
func IsPlausibleDbm(dbm float64) bool {
	return !math.IsNaN(dbm) && !math.IsInf(dbm, 0) &&
		dbm > MinPlausibleDbm && dbm < MaxPlausibleDbm
}
