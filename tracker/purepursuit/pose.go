package purepursuit

import (
	"math"
	"sync"
	"time"
)

// Pose is the robot's planar position and heading. Heading is in
// radians, normalized to (-pi, pi].
type Pose struct {
	X       float64
	Y       float64
	Heading float64
}

// NormalizeAngle wraps a into (-pi, pi].
func NormalizeAngle(a float64) float64 {
	if a > math.Pi || a <= -math.Pi {
		a = math.Atan2(math.Sin(a), math.Cos(a))
	}
	return a
}

// DistanceTo returns the Euclidean distance from the pose to (x, y).
func (p Pose) DistanceTo(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// BearingTo returns the signed angle from the robot's heading to the
// direction of (x, y). Positive means the target is to the left.
func (p Pose) BearingTo(x, y float64) float64 {
	return NormalizeAngle(math.Atan2(y-p.Y, x-p.X) - p.Heading)
}

func (p Pose) normalized() Pose {
	p.Heading = NormalizeAngle(p.Heading)
	return p
}

// PoseModel stores the latest pose estimate together with its receive
// time. Update replaces the whole pose under the lock, so a control
// tick always reads a fully-formed snapshot, never a partial one.
type PoseModel struct {
	mu    sync.RWMutex
	pose  Pose
	stamp time.Time
}

// NewPoseModel seeds the model with the pose known at session start.
func NewPoseModel(initial Pose, at time.Time) *PoseModel {
	return &PoseModel{pose: initial.normalized(), stamp: at}
}

// Update replaces the stored pose wholesale.
func (m *PoseModel) Update(p Pose, at time.Time) {
	m.mu.Lock()
	m.pose = p.normalized()
	m.stamp = at
	m.mu.Unlock()
}

// Snapshot returns the stored pose and the time it was received.
func (m *PoseModel) Snapshot() (Pose, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pose, m.stamp
}
