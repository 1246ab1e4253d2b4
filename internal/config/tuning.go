package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/spectrum.report/internal/lbt"
)

// DefaultConfigPath is the path to the canonical channel-access defaults
// file. This is the single source of truth for all default LBT values.
const DefaultConfigPath = "config/lbt.defaults.json"

// TuningConfig represents the root configuration for the channel-access
// engine. The schema matches the /api/lbt/config endpoint so the same
// JSON can be used for both startup configuration and runtime updates.
//
// All fields are pointers so a partial file (or a partial runtime
// update) only overrides the fields it names; the Get* methods provide
// fallback defaults for everything else.
type TuningConfig struct {
	// Channel-access params
	Enabled        *bool    `json:"enabled,omitempty"`
	Mode           *string  `json:"mode,omitempty"` // "FBE", "LBE" or "DISABLED"
	EdThresholdDbm *float64 `json:"ed_threshold_dbm,omitempty"`
	EdSensingTime  *string  `json:"ed_sensing_time,omitempty"` // duration string like "100us"

	// Frame-based equipment params
	FramePeriod      *string  `json:"frame_period,omitempty"` // duration string like "10ms"
	TxWindow         *string  `json:"tx_window,omitempty"`    // duration string like "2ms"
	DutyCyclePercent *float64 `json:"duty_cycle_percent,omitempty"`

	// Load-based equipment params
	MCOT        *string `json:"mcot,omitempty"`         // duration string like "10ms"
	DeferPeriod *string `json:"defer_period,omitempty"` // duration string like "34us"
	BackoffSlot *string `json:"backoff_slot,omitempty"` // duration string like "9us"
	CWMin       *int    `json:"cw_min,omitempty"`
	CWMax       *int    `json:"cw_max,omitempty"`

	// Engine params
	BufferCapacity     *int  `json:"buffer_capacity,omitempty"`
	StabilityThreshold *int  `json:"stability_threshold,omitempty"`
	LogLBT             *bool `json:"log_lbt,omitempty"`

	// Calibration params
	CalibrateOnStart *bool `json:"calibrate_on_start,omitempty"`
	CalibrationReads *int  `json:"calibration_reads,omitempty"`

	// Front-end and service params (ignored by runtime updates)
	SampleListenAddr *string `json:"sample_listen_addr,omitempty"`
	HTTPListenAddr   *string `json:"http_listen_addr,omitempty"`
	DatabasePath     *string `json:"database_path,omitempty"`
	SensingLogPath   *string `json:"sensing_log_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical channel-access defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Mode != nil {
		if _, err := lbt.ParseMode(*c.Mode); err != nil {
			return err
		}
	}

	// All duration strings must parse if set
	durations := map[string]*string{
		"ed_sensing_time": c.EdSensingTime,
		"frame_period":    c.FramePeriod,
		"tx_window":       c.TxWindow,
		"mcot":            c.MCOT,
		"defer_period":    c.DeferPeriod,
		"backoff_slot":    c.BackoffSlot,
	}
	for name, v := range durations {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
			}
		}
	}

	if c.DutyCyclePercent != nil {
		if *c.DutyCyclePercent < 0 || *c.DutyCyclePercent > 100 {
			return fmt.Errorf("duty_cycle_percent must be between 0 and 100, got %f", *c.DutyCyclePercent)
		}
	}
	if c.BufferCapacity != nil && *c.BufferCapacity < 0 {
		return fmt.Errorf("buffer_capacity must be non-negative, got %d", *c.BufferCapacity)
	}
	if c.CalibrationReads != nil && *c.CalibrationReads < 0 {
		return fmt.Errorf("calibration_reads must be non-negative, got %d", *c.CalibrationReads)
	}

	return nil
}

// parseDurationOr parses a duration pointer field, falling back to def
// when the field is unset, empty or unparseable.
func parseDurationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetEnabled returns the enabled value or the default.
func (c *TuningConfig) GetEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// GetMode returns the parsed access mode or the default.
func (c *TuningConfig) GetMode() lbt.Mode {
	if c.Mode == nil {
		return lbt.ModeLBE
	}
	m, err := lbt.ParseMode(*c.Mode)
	if err != nil {
		return lbt.ModeLBE
	}
	return m
}

// GetEdThresholdDbm returns the pinned ED threshold, or 0 when the
// threshold should be derived from a noise-floor calibration instead.
func (c *TuningConfig) GetEdThresholdDbm() float64 {
	if c.EdThresholdDbm == nil {
		return lbt.DefaultEdThresholdDbm
	}
	return *c.EdThresholdDbm
}

// GetEdSensingTime parses and returns the sensing time. The default
// depends on the mode: FBE uses the short observation slot.
func (c *TuningConfig) GetEdSensingTime() time.Duration {
	def := lbt.DefaultEdSensingTime
	if c.GetMode() == lbt.ModeFBE {
		def = lbt.DefaultFBESensingTime
	}
	return parseDurationOr(c.EdSensingTime, def)
}

// GetFramePeriod parses and returns the FBE frame period.
func (c *TuningConfig) GetFramePeriod() time.Duration {
	return parseDurationOr(c.FramePeriod, lbt.DefaultFramePeriod)
}

// GetTxWindow parses and returns the FBE transmit window.
func (c *TuningConfig) GetTxWindow() time.Duration {
	return parseDurationOr(c.TxWindow, lbt.DefaultTxWindow)
}

// GetDutyCyclePercent returns the duty_cycle_percent value or the default.
func (c *TuningConfig) GetDutyCyclePercent() float64 {
	if c.DutyCyclePercent == nil {
		return 20
	}
	return *c.DutyCyclePercent
}

// GetMCOT parses and returns the maximum channel occupancy time.
func (c *TuningConfig) GetMCOT() time.Duration {
	return parseDurationOr(c.MCOT, lbt.DefaultMCOT)
}

// GetDeferPeriod parses and returns the extended-CCA defer period.
func (c *TuningConfig) GetDeferPeriod() time.Duration {
	return parseDurationOr(c.DeferPeriod, lbt.DefaultDeferPeriod)
}

// GetBackoffSlot parses and returns the backoff slot duration.
func (c *TuningConfig) GetBackoffSlot() time.Duration {
	return parseDurationOr(c.BackoffSlot, lbt.DefaultBackoffSlot)
}

// GetCWMin returns the cw_min value or the default.
func (c *TuningConfig) GetCWMin() int {
	if c.CWMin == nil {
		return lbt.DefaultCWMin
	}
	return *c.CWMin
}

// GetCWMax returns the cw_max value or the default.
func (c *TuningConfig) GetCWMax() int {
	if c.CWMax == nil {
		return lbt.DefaultCWMax
	}
	return *c.CWMax
}

// GetBufferCapacity returns the buffer_capacity value or the default.
func (c *TuningConfig) GetBufferCapacity() int {
	if c.BufferCapacity == nil || *c.BufferCapacity == 0 {
		return lbt.DefaultBufferCapacity
	}
	return *c.BufferCapacity
}

// GetStabilityThreshold returns the stability_threshold value or 0 to
// use the engine default.
func (c *TuningConfig) GetStabilityThreshold() int {
	if c.StabilityThreshold == nil {
		return 0
	}
	return *c.StabilityThreshold
}

// GetLogLBT returns the log_lbt value or the default.
func (c *TuningConfig) GetLogLBT() bool {
	if c.LogLBT == nil {
		return false
	}
	return *c.LogLBT
}

// GetCalibrateOnStart returns the calibrate_on_start value or the default.
func (c *TuningConfig) GetCalibrateOnStart() bool {
	if c.CalibrateOnStart == nil {
		return false
	}
	return *c.CalibrateOnStart
}

// GetCalibrationReads returns the calibration_reads value or 0 to use
// the engine default.
func (c *TuningConfig) GetCalibrationReads() int {
	if c.CalibrationReads == nil {
		return 0
	}
	return *c.CalibrationReads
}

// GetSampleListenAddr returns the sample_listen_addr value or the default.
func (c *TuningConfig) GetSampleListenAddr() string {
	if c.SampleListenAddr == nil || *c.SampleListenAddr == "" {
		return ":4991"
	}
	return *c.SampleListenAddr
}

// GetHTTPListenAddr returns the http_listen_addr value or the default.
func (c *TuningConfig) GetHTTPListenAddr() string {
	if c.HTTPListenAddr == nil || *c.HTTPListenAddr == "" {
		return ":8080"
	}
	return *c.HTTPListenAddr
}

// GetDatabasePath returns the database_path value or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "lbt_data.db"
	}
	return *c.DatabasePath
}

// GetSensingLogPath returns the sensing_log_path value, empty when the
// CSV sensing log is disabled.
func (c *TuningConfig) GetSensingLogPath() string {
	if c.SensingLogPath == nil {
		return ""
	}
	return *c.SensingLogPath
}

// ToAccessConfig converts the tuning configuration into an engine
// configuration snapshot.
func (c *TuningConfig) ToAccessConfig() lbt.AccessConfig {
	return lbt.AccessConfig{
		Enabled:          c.GetEnabled(),
		Mode:             c.GetMode(),
		EdThresholdDbm:   c.GetEdThresholdDbm(),
		EdSensingTime:    c.GetEdSensingTime(),
		FramePeriod:      c.GetFramePeriod(),
		TxWindow:         c.GetTxWindow(),
		DutyCyclePercent: c.GetDutyCyclePercent(),
		MCOT:             c.GetMCOT(),
		DeferPeriod:      c.GetDeferPeriod(),
		BackoffSlot:      c.GetBackoffSlot(),
		CWMin:            c.GetCWMin(),
		CWMax:            c.GetCWMax(),
		LogLBT:           c.GetLogLBT(),
	}
}

// FromAccessConfig populates a TuningConfig from an engine snapshot,
// for reporting the active configuration over the API.
func FromAccessConfig(ac lbt.AccessConfig) *TuningConfig {
	return &TuningConfig{
		Enabled:          ptrBool(ac.Enabled),
		Mode:             ptrString(ac.Mode.String()),
		EdThresholdDbm:   ptrFloat64(ac.EdThresholdDbm),
		EdSensingTime:    ptrString(ac.EdSensingTime.String()),
		FramePeriod:      ptrString(ac.FramePeriod.String()),
		TxWindow:         ptrString(ac.TxWindow.String()),
		DutyCyclePercent: ptrFloat64(ac.DutyCyclePercent),
		MCOT:             ptrString(ac.MCOT.String()),
		DeferPeriod:      ptrString(ac.DeferPeriod.String()),
		BackoffSlot:      ptrString(ac.BackoffSlot.String()),
		CWMin:            ptrInt(ac.CWMin),
		CWMax:            ptrInt(ac.CWMax),
		LogLBT:           ptrBool(ac.LogLBT),
	}
}
