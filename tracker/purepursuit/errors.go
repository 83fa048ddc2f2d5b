package purepursuit

import "errors"

var (
	// ErrEmptyPath is returned when a path is built from zero waypoints.
	ErrEmptyPath = errors.New("path has no waypoints")

	// ErrInvalidConfig is returned when the tracker configuration fails
	// validation at start.
	ErrInvalidConfig = errors.New("invalid tracker config")

	// ErrStalePose is the fault raised when pose telemetry stops arriving
	// within the configured staleness window while tracking.
	ErrStalePose = errors.New("pose updates stale")

	// ErrNotIdle is returned when Start is called on a session that is
	// already running or finished.
	ErrNotIdle = errors.New("tracker is not idle")
)
