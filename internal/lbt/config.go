package lbt

import (
	"fmt"
	"time"
)

// Mode selects the channel-access algorithm.
type Mode int

const (
	// ModeFBE is Frame-Based Equipment: a fixed transmit window inside a
	// fixed frame period, gated purely by elapsed time.
	ModeFBE Mode = iota
	// ModeLBE is Load-Based Equipment: energy sensing with bounded
	// retries and random exponential backoff.
	ModeLBE
	// ModeDisabled passes every access request through ungated.
	ModeDisabled
)

// String returns the mode name as used in logs and sensing records.
func (m Mode) String() string {
	switch m {
	case ModeFBE:
		return "FBE"
	case ModeLBE:
		return "LBE"
	case ModeDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "FBE", "fbe":
		return ModeFBE, nil
	case "LBE", "lbe":
		return ModeLBE, nil
	case "DISABLED", "disabled", "off":
		return ModeDisabled, nil
	default:
		return ModeDisabled, fmt.Errorf("unknown LBT mode %q", s)
	}
}

// AccessConfig is an immutable snapshot of the channel-access
// parameters. The engine replaces the whole snapshot atomically on
// update; algorithms read a single snapshot per decision so a
// reconfiguration is never partially visible.
type AccessConfig struct {
	Enabled bool
	Mode    Mode

	// Energy detection. A zero EdThresholdDbm means "not pinned": a
	// successful calibration run will derive the threshold from the
	// measured noise floor instead.
	EdThresholdDbm float64
	EdSensingTime  time.Duration

	// Frame-Based Equipment.
	FramePeriod      time.Duration
	TxWindow         time.Duration
	DutyCyclePercent float64

	// Load-Based Equipment.
	MCOT        time.Duration
	DeferPeriod time.Duration
	BackoffSlot time.Duration
	CWMin       int
	CWMax       int

	// LogLBT enables per-event sensing records (CSV and sinks).
	LogLBT bool
}

// Default timing values, matching ETSI EN 301 893 sensing slots and the
// receiver constants the engine was tuned against.
const (
	DefaultEdThresholdDbm = -82.0
	DefaultNoiseFloorDbm  = -90.0
	DefaultEdSensingTime  = 100 * time.Microsecond
	DefaultFBESensingTime = 25 * time.Microsecond
	DefaultFramePeriod    = 10 * time.Millisecond
	DefaultTxWindow       = 2 * time.Millisecond
	DefaultMCOT           = 10 * time.Millisecond
	DefaultDeferPeriod    = 34 * time.Microsecond
	DefaultBackoffSlot    = 9 * time.Microsecond
	DefaultCWMin          = 15
	DefaultCWMax          = 1023

	// ThresholdMarginDb is added to a calibrated noise floor to derive
	// the energy-detection threshold when the config does not pin one.
	ThresholdMarginDb = 8.0
)

// DefaultConfig returns an enabled LBE configuration with the standard
// timing constants.
func DefaultConfig() AccessConfig {
	return AccessConfig{
		Enabled:          true,
		Mode:             ModeLBE,
		EdThresholdDbm:   DefaultEdThresholdDbm,
		EdSensingTime:    DefaultEdSensingTime,
		FramePeriod:      DefaultFramePeriod,
		TxWindow:         DefaultTxWindow,
		DutyCyclePercent: 20,
		MCOT:             DefaultMCOT,
		DeferPeriod:      DefaultDeferPeriod,
		BackoffSlot:      DefaultBackoffSlot,
		CWMin:            DefaultCWMin,
		CWMax:            DefaultCWMax,
	}
}

// Validate checks that the configuration is internally consistent.
func (c *AccessConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("nil configuration")
	}
	switch c.Mode {
	case ModeFBE, ModeLBE, ModeDisabled:
	default:
		return fmt.Errorf("invalid mode %d", int(c.Mode))
	}
	if c.Mode == ModeLBE && c.Enabled {
		if c.EdSensingTime <= 0 {
			return fmt.Errorf("ed_sensing_time must be positive, got %v", c.EdSensingTime)
		}
		if c.MCOT <= 0 {
			return fmt.Errorf("mcot must be positive, got %v", c.MCOT)
		}
	}
	if c.Mode == ModeFBE && c.Enabled {
		if c.FramePeriod <= 0 {
			return fmt.Errorf("frame_period must be positive, got %v", c.FramePeriod)
		}
		if c.TxWindow <= 0 || c.TxWindow > c.FramePeriod {
			return fmt.Errorf("tx_window must be in (0, frame_period], got %v", c.TxWindow)
		}
	}
	if c.DutyCyclePercent < 0 || c.DutyCyclePercent > 100 {
		return fmt.Errorf("duty_cycle_percent must be between 0 and 100, got %v", c.DutyCyclePercent)
	}
	if c.CWMin < 0 || c.CWMax < c.CWMin {
		return fmt.Errorf("contention window bounds invalid: cw_min=%d cw_max=%d", c.CWMin, c.CWMax)
	}
	return nil
}

// fbeState is the frame gate derived from an FBE configuration. It is
// recomputed whenever the configuration switches to FBE mode.
type fbeState struct {
	tFrame  time.Duration
	tOn     time.Duration
	start   time.Time
	maxDuty float64
}

func deriveFBE(cfg *AccessConfig, start time.Time) *fbeState {
	return &fbeState{
		tFrame:  cfg.FramePeriod,
		tOn:     cfg.TxWindow,
		start:   start,
		maxDuty: cfg.DutyCyclePercent / 100.0,
	}
}

// frameOffset returns now's position inside the current frame. The
// modulo is normalised so a start in the future still yields a
// non-negative offset.
func (f *fbeState) frameOffset(now time.Time) time.Duration {
	offset := now.Sub(f.start) % f.tFrame
	if offset < 0 {
		offset += f.tFrame
	}
	return offset
}

// txAllowed reports whether now falls inside the transmit window of the
// current frame.
func (f *fbeState) txAllowed(now time.Time) bool {
	if f == nil || f.tFrame <= 0 {
		return false
	}
	return f.frameOffset(now) < f.tOn
}
