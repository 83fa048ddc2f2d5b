package purepursuit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func arcConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSpeedMPS = 0.05
	cfg.MaxSpeedMPS = 1.0
	cfg.MaxAngularRPS = 3.0
	cfg.CurvatureDamping = 1.0
	return cfg
}

func TestArcStraightAhead(t *testing.T) {
	c := NewArcController(arcConfig())
	cmd := c.Command(Pose{}, Waypoint{X: 2})
	require.InDelta(t, 1.0, cmd.Linear, 1e-9)
	require.InDelta(t, 0.0, cmd.Angular, 1e-9)
}

func TestArcTurnsTowardCarrot(t *testing.T) {
	c := NewArcController(arcConfig())

	left := c.Command(Pose{}, Waypoint{X: 1, Y: 1})
	require.Greater(t, left.Angular, 0.0, "carrot to the left must turn left")

	right := c.Command(Pose{}, Waypoint{X: 1, Y: -1})
	require.Less(t, right.Angular, 0.0, "carrot to the right must turn right")

	// Mirrored carrots produce mirrored arcs.
	require.InDelta(t, left.Angular, -right.Angular, 1e-9)
	require.InDelta(t, left.Linear, right.Linear, 1e-9)
}

func TestArcCurvatureDampsSpeed(t *testing.T) {
	c := NewArcController(arcConfig())

	// Carrot at 90 degrees, distance 2: kappa = 2*sin(pi/2)/2 = 1.
	cmd := c.Command(Pose{}, Waypoint{Y: 2})
	require.InDelta(t, 0.5, cmd.Linear, 1e-9)
	require.InDelta(t, 0.5, cmd.Angular, 1e-9)
}

func TestArcDegenerateZeroDistance(t *testing.T) {
	cfg := arcConfig()
	c := NewArcController(cfg)

	cmd := c.Command(Pose{X: 3, Y: 4}, Waypoint{X: 3, Y: 4})
	require.Equal(t, VelocityCommand{Linear: cfg.MinSpeedMPS}, cmd)
}

func TestArcOutputAlwaysClamped(t *testing.T) {
	cfg := arcConfig()
	c := NewArcController(cfg)

	headings := []float64{0, math.Pi / 3, -math.Pi / 2, math.Pi, -2.8}
	offsets := []float64{1e-12, 1e-6, 0.01, 0.5, 2, 50}
	angles := []float64{0, 0.5, 1.5, math.Pi - 0.01, -math.Pi + 0.01, -2}

	for _, h := range headings {
		for _, d := range offsets {
			for _, a := range angles {
				pose := Pose{X: 1, Y: -2, Heading: h}
				carrot := Waypoint{
					X: pose.X + d*math.Cos(a),
					Y: pose.Y + d*math.Sin(a),
				}
				cmd := c.Command(pose, carrot)
				require.GreaterOrEqual(t, cmd.Linear, 0.0)
				require.LessOrEqual(t, cmd.Linear, cfg.MaxSpeedMPS)
				require.GreaterOrEqual(t, cmd.Angular, -cfg.MaxAngularRPS)
				require.LessOrEqual(t, cmd.Angular, cfg.MaxAngularRPS)
			}
		}
	}
}

func TestArcBearingGatedProfile(t *testing.T) {
	cfg := arcConfig()
	c := NewArcController(cfg)
	c.SetSpeedProfile(BearingGatedProfile(cfg.MaxSpeedMPS))

	ahead := c.Command(Pose{}, Waypoint{X: 2})
	require.InDelta(t, cfg.MaxSpeedMPS, ahead.Linear, 1e-9)

	// A carrot far off the heading collapses speed to the floor.
	side := c.Command(Pose{}, Waypoint{Y: 2})
	require.InDelta(t, cfg.MinSpeedMPS, side.Linear, 1e-9)

	// Nil profiles are ignored rather than installed.
	c.SetSpeedProfile(nil)
	still := c.Command(Pose{}, Waypoint{Y: 2})
	require.Equal(t, side, still)
}
