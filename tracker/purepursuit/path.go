package purepursuit

// Waypoint is a single point of the planned path.
type Waypoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Path is an immutable waypoint sequence plus a cursor marking the
// lowest-index waypoint not yet passed. The cursor only moves forward;
// pure pursuit never revisits an earlier waypoint.
type Path struct {
	points []Waypoint
	cursor int
}

// NewPath copies points into a new path with the cursor at the start.
func NewPath(points []Waypoint) (*Path, error) {
	if len(points) == 0 {
		return nil, ErrEmptyPath
	}
	copied := make([]Waypoint, len(points))
	copy(copied, points)
	return &Path{points: copied}, nil
}

// Len returns the number of waypoints.
func (p *Path) Len() int { return len(p.points) }

// Cursor returns the current cursor index.
func (p *Path) Cursor() int { return p.cursor }

// At returns the waypoint at index i.
func (p *Path) At(i int) Waypoint { return p.points[i] }

// Final returns the last waypoint of the path.
func (p *Path) Final() Waypoint { return p.points[len(p.points)-1] }

// CurrentSegment returns the segment from the cursor to the next
// waypoint. At the end of the path it degenerates to a single point.
func (p *Path) CurrentSegment() (Waypoint, Waypoint) {
	if p.cursor >= len(p.points)-1 {
		last := p.points[len(p.points)-1]
		return last, last
	}
	return p.points[p.cursor], p.points[p.cursor+1]
}

// Advance moves the cursor one waypoint forward. Calling it with the
// cursor already on the final waypoint is a no-op, not an error.
func (p *Path) Advance() {
	if p.cursor < len(p.points)-1 {
		p.cursor++
	}
}

// advanceTo moves the cursor forward to index i. The cursor never
// moves backwards.
func (p *Path) advanceTo(i int) {
	for p.cursor < i && p.cursor < len(p.points)-1 {
		p.cursor++
	}
}

// AtEnd reports whether the cursor sits on the final waypoint. Whether
// that waypoint has been reached is the target selector's call.
func (p *Path) AtEnd() bool { return p.cursor == len(p.points)-1 }
