package purepursuit

import (
	"fmt"
	"time"
)

// Config holds the tuning parameters for one tracking session.
// Durations are expressed in seconds so the struct can live inside a
// trajectory JSON file next to the waypoints.
type Config struct {
	// LookAheadM is the nominal carrot search radius.
	LookAheadM float64 `json:"look_ahead_m"`
	// ArrivalToleranceM is the distance below which the final waypoint
	// counts as reached. Must be smaller than LookAheadM.
	ArrivalToleranceM float64 `json:"arrival_tolerance_m"`

	MinSpeedMPS   float64 `json:"min_speed_mps"`
	MaxSpeedMPS   float64 `json:"max_speed_mps"`
	MaxAngularRPS float64 `json:"max_angular_rps"`

	// CurvatureDamping scales linear speed down as the commanded arc
	// tightens: v = v_max / (1 + damping*|kappa|).
	CurvatureDamping float64 `json:"curvature_damping"`

	// ScanWindow bounds how many segments past the cursor the carrot
	// search examines per tick. 0 means unbounded. Keeping it finite
	// avoids corner cutting on paths that loop back near themselves.
	ScanWindow int `json:"scan_window,omitempty"`

	ControlPeriodS float64 `json:"control_period_s"`
	PoseStalenessS float64 `json:"pose_staleness_s"`

	// MinLookAheadM is the floor the look-ahead never shrinks below
	// while the clearance source reports an obstruction.
	MinLookAheadM float64 `json:"min_look_ahead_m"`
	// ObstructionScale is the factor applied to LookAheadM on ticks
	// where the clearance source reports an obstruction.
	ObstructionScale float64 `json:"obstruction_scale"`
}

// DefaultConfig returns tuning that tracks well on a differential-drive
// robot at walking pace.
func DefaultConfig() Config {
	return Config{
		LookAheadM:        1.5,
		ArrivalToleranceM: 0.5,
		MinSpeedMPS:       0.05,
		MaxSpeedMPS:       1.0,
		MaxAngularRPS:     3.0,
		CurvatureDamping:  1.0,
		ScanWindow:        400,
		ControlPeriodS:    0.1,
		PoseStalenessS:    0.5,
		MinLookAheadM:     0.6,
		ObstructionScale:  0.5,
	}
}

// Validate checks the configuration invariants. All failures wrap
// ErrInvalidConfig.
func (c Config) Validate() error {
	if c.LookAheadM <= c.ArrivalToleranceM {
		return fmt.Errorf("look_ahead_m %.3f must exceed arrival_tolerance_m %.3f: %w",
			c.LookAheadM, c.ArrivalToleranceM, ErrInvalidConfig)
	}
	if c.ArrivalToleranceM <= 0 {
		return fmt.Errorf("arrival_tolerance_m %.3f must be positive: %w", c.ArrivalToleranceM, ErrInvalidConfig)
	}
	if c.MinSpeedMPS < 0 || c.MaxSpeedMPS <= 0 || c.MaxSpeedMPS < c.MinSpeedMPS {
		return fmt.Errorf("speed range [%.3f, %.3f] invalid: %w", c.MinSpeedMPS, c.MaxSpeedMPS, ErrInvalidConfig)
	}
	if c.MaxAngularRPS <= 0 {
		return fmt.Errorf("max_angular_rps %.3f must be positive: %w", c.MaxAngularRPS, ErrInvalidConfig)
	}
	if c.CurvatureDamping < 0 {
		return fmt.Errorf("curvature_damping %.3f must not be negative: %w", c.CurvatureDamping, ErrInvalidConfig)
	}
	if c.ScanWindow < 0 {
		return fmt.Errorf("scan_window %d must not be negative: %w", c.ScanWindow, ErrInvalidConfig)
	}
	if c.ControlPeriodS <= 0 {
		return fmt.Errorf("control_period_s %.3f must be positive: %w", c.ControlPeriodS, ErrInvalidConfig)
	}
	if c.PoseStalenessS <= 0 {
		return fmt.Errorf("pose_staleness_s %.3f must be positive: %w", c.PoseStalenessS, ErrInvalidConfig)
	}
	if c.MinLookAheadM <= 0 || c.MinLookAheadM > c.LookAheadM {
		return fmt.Errorf("min_look_ahead_m %.3f must be in (0, look_ahead_m]: %w", c.MinLookAheadM, ErrInvalidConfig)
	}
	if c.ObstructionScale <= 0 || c.ObstructionScale > 1 {
		return fmt.Errorf("obstruction_scale %.3f must be in (0, 1]: %w", c.ObstructionScale, ErrInvalidConfig)
	}
	return nil
}

// Period returns the control tick period.
func (c Config) Period() time.Duration {
	return time.Duration(c.ControlPeriodS * float64(time.Second))
}

// Staleness returns the pose staleness timeout.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.PoseStalenessS * float64(time.Second))
}
