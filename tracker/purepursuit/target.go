package purepursuit

import "math"

// TargetSelector picks the carrot point for each control tick by
// intersecting the look-ahead circle with the remaining path segments.
type TargetSelector struct {
	cfg Config
}

// NewTargetSelector returns a selector using cfg's arrival tolerance
// and scan window. The look-ahead radius is passed per call so the
// loop can shrink it while the clearance source reports an obstacle.
func NewTargetSelector(cfg Config) *TargetSelector {
	return &TargetSelector{cfg: cfg}
}

// Select returns the carrot point for the given pose, advancing the
// path cursor as the robot progresses. The bool result reports
// arrival: cursor on the final waypoint and the robot within the
// arrival tolerance of it.
func (s *TargetSelector) Select(pose Pose, path *Path, lookAhead float64) (Waypoint, bool) {
	final := path.Final()
	finalDist := pose.DistanceTo(final.X, final.Y)

	// End game: once the final waypoint is inside the look-ahead
	// circle there is nothing farther to chase. Also covers paths of
	// length one and a cursor already parked on the last waypoint. A
	// finite scan window defers the jump until the window reaches the
	// final segment, so a path looping back near its own endpoint is
	// not cut short.
	if path.AtEnd() || (finalDist <= lookAhead && s.windowReachesEnd(path)) {
		path.advanceTo(path.Len() - 1)
		return final, finalDist <= s.cfg.ArrivalToleranceM
	}

	// Scan forward from the cursor and keep the farthest intersection.
	lastSeg := path.Len() - 2
	if s.cfg.ScanWindow > 0 && path.Cursor()+s.cfg.ScanWindow < lastSeg {
		lastSeg = path.Cursor() + s.cfg.ScanWindow
	}
	bestSeg := -1
	var best Waypoint
	for i := path.Cursor(); i <= lastSeg; i++ {
		if pt, ok := intersectSegment(pose, path.At(i), path.At(i+1), lookAhead); ok {
			bestSeg, best = i, pt
		}
	}
	if bestSeg >= 0 {
		path.advanceTo(bestSeg)
		return best, false
	}

	// Recovery: the whole remaining path lies outside the look-ahead
	// circle. Steer at the nearest remaining waypoint so the robot
	// converges back instead of stalling. The cursor stays put; only
	// the intersection search consumes path progress.
	nearest := path.At(path.Cursor())
	nearestDist := pose.DistanceTo(nearest.X, nearest.Y)
	for i := path.Cursor() + 1; i < path.Len(); i++ {
		wp := path.At(i)
		if d := pose.DistanceTo(wp.X, wp.Y); d < nearestDist {
			nearest, nearestDist = wp, d
		}
	}
	return nearest, false
}

// windowReachesEnd reports whether the scan window extends to the
// final waypoint from the current cursor.
func (s *TargetSelector) windowReachesEnd(path *Path) bool {
	return s.cfg.ScanWindow == 0 || path.Cursor()+s.cfg.ScanWindow >= path.Len()-1
}

// intersectSegment intersects the circle centered on the robot with
// radius r against the segment a-b. When the circle crosses the
// segment twice, the intersection closer to b wins, biasing progress
// toward the far end of the path.
func intersectSegment(pose Pose, a, b Waypoint, r float64) (Waypoint, bool) {
	dx, dy := b.X-a.X, b.Y-a.Y
	fx, fy := a.X-pose.X, a.Y-pose.Y

	qa := dx*dx + dy*dy
	if qa == 0 {
		// Degenerate zero-length segment.
		return Waypoint{}, false
	}
	qb := 2 * (fx*dx + fy*dy)
	qc := fx*fx + fy*fy - r*r

	disc := qb*qb - 4*qa*qc
	if disc < 0 {
		return Waypoint{}, false
	}
	root := math.Sqrt(disc)

	for _, t := range [2]float64{(-qb + root) / (2 * qa), (-qb - root) / (2 * qa)} {
		if t >= 0 && t <= 1 {
			return Waypoint{X: a.X + t*dx, Y: a.Y + t*dy}, true
		}
	}
	return Waypoint{}, false
}
