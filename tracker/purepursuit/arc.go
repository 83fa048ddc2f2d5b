package purepursuit

import "math"

// VelocityCommand is the output of one control tick. Linear speed is
// never negative; this controller does not drive in reverse.
type VelocityCommand struct {
	Linear  float64
	Angular float64
}

// SpeedProfile maps the bearing to the carrot (alpha) and the
// commanded arc curvature (kappa) to an unclamped linear speed. The
// right law depends on the physical robot, so it is replaceable.
type SpeedProfile func(alpha, kappa float64) float64

// CurvatureDampedProfile slows down as the arc tightens, countering
// skid and topple on sharp turns.
func CurvatureDampedProfile(maxSpeed, damping float64) SpeedProfile {
	return func(_, kappa float64) float64 {
		return maxSpeed / (1 + damping*math.Abs(kappa))
	}
}

// BearingGatedProfile cuts speed when the carrot sits far off the
// current heading, so the robot mostly turns in place before
// committing to a sharp arc.
func BearingGatedProfile(maxSpeed float64) SpeedProfile {
	return func(alpha, _ float64) float64 {
		return maxSpeed * math.Exp(-2*alpha*alpha)
	}
}

// minCarrotDistance is the radius below which the arc relation is
// treated as degenerate instead of dividing by a vanishing distance.
const minCarrotDistance = 1e-9

// ArcController converts a pose and carrot point into a velocity
// command along the circular arc that starts along the current heading
// and passes through the carrot.
type ArcController struct {
	cfg     Config
	profile SpeedProfile
}

// NewArcController returns a controller with the curvature-damped
// speed profile from cfg.
func NewArcController(cfg Config) *ArcController {
	return &ArcController{
		cfg:     cfg,
		profile: CurvatureDampedProfile(cfg.MaxSpeedMPS, cfg.CurvatureDamping),
	}
}

// SetSpeedProfile replaces the default speed law. A nil profile is
// ignored.
func (c *ArcController) SetSpeedProfile(p SpeedProfile) {
	if p != nil {
		c.profile = p
	}
}

// Command computes the velocity command steering the robot through the
// carrot point. Output is clamped to [0, max_speed] and
// [-max_angular, max_angular] regardless of the speed profile.
func (c *ArcController) Command(pose Pose, carrot Waypoint) VelocityCommand {
	// The distance actually used is the robot-to-carrot distance, not
	// the nominal look-ahead; the carrot may sit farther away after a
	// recovery fallback.
	ld := pose.DistanceTo(carrot.X, carrot.Y)
	if ld < minCarrotDistance {
		// Sitting on the carrot: creep forward and let the selector
		// move the target on the next tick.
		return VelocityCommand{Linear: c.cfg.MinSpeedMPS}
	}

	alpha := pose.BearingTo(carrot.X, carrot.Y)
	kappa := 2 * math.Sin(alpha) / ld

	v := clamp(c.profile(alpha, kappa), c.cfg.MinSpeedMPS, c.cfg.MaxSpeedMPS)
	return VelocityCommand{
		Linear:  clamp(v, 0, c.cfg.MaxSpeedMPS),
		Angular: clamp(kappa*v, -c.cfg.MaxAngularRPS, c.cfg.MaxAngularRPS),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
