package purepursuit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is the tracking session lifecycle state.
type State int

const (
	Idle State = iota
	Tracking
	Completed
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Tracking:
		return "TRACKING"
	case Completed:
		return "COMPLETED"
	case Faulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// CommandSink consumes one velocity command per control tick.
type CommandSink interface {
	Send(ctx context.Context, cmd VelocityCommand) error
}

// ClearanceSource reports obstacle proximity, polled once per tick.
// A nil source is treated as always clear.
type ClearanceSource interface {
	Obstructed() bool
}

// Loop is the tracking state machine. It owns the session state
// (pose model, path, selector, arc controller) and runs one control
// tick per period while Tracking. Pose updates arrive concurrently
// through UpdatePose; Stop is safe to call from any goroutine and
// takes effect no later than the next tick.
type Loop struct {
	cfg   Config
	clock clock.Clock

	mu          sync.Mutex
	state       State
	pose        *PoseModel
	path        *Path
	selector    *TargetSelector
	arc         *ArcController
	err         error
	startedAt   time.Time
	completedAt time.Time
}

// NewLoop validates cfg and returns an idle loop on the wall clock.
func NewLoop(cfg Config) (*Loop, error) {
	return NewLoopWithClock(cfg, clock.New())
}

// NewLoopWithClock is NewLoop with an injected clock, for tests and
// simulation.
func NewLoopWithClock(cfg Config, c clock.Clock) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loop{cfg: cfg, clock: c}, nil
}

// Start transitions Idle -> Tracking, building the path and seeding
// the pose model. On any error the loop stays Idle.
func (l *Loop) Start(waypoints []Waypoint, initial Pose) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Idle {
		return fmt.Errorf("start in state %s: %w", l.state, ErrNotIdle)
	}
	path, err := NewPath(waypoints)
	if err != nil {
		return err
	}
	now := l.clock.Now()
	l.path = path
	l.pose = NewPoseModel(initial, now)
	l.selector = NewTargetSelector(l.cfg)
	l.arc = NewArcController(l.cfg)
	l.err = nil
	l.startedAt = now
	l.completedAt = time.Time{}
	l.state = Tracking
	return nil
}

// UpdatePose feeds the latest telemetry sample. Safe to call from the
// receive goroutine while ticks run.
func (l *Loop) UpdatePose(p Pose, at time.Time) {
	l.mu.Lock()
	pm := l.pose
	l.mu.Unlock()
	if pm != nil {
		pm.Update(p, at)
	}
}

// SetSpeedProfile swaps the arc controller's speed law for the current
// session. Must be called after Start.
func (l *Loop) SetSpeedProfile(p SpeedProfile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.arc != nil {
		l.arc.SetSpeedProfile(p)
	}
}

// Tick runs one control cycle and returns the command to emit, the
// state after the tick and the fault, if any. Outside Tracking it is
// a no-op returning a stop command.
func (l *Loop) Tick(obstructed bool) (VelocityCommand, State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Tracking {
		return VelocityCommand{}, l.state, l.err
	}

	now := l.clock.Now()
	pose, stamp := l.pose.Snapshot()
	if age := now.Sub(stamp); age > l.cfg.Staleness() {
		l.err = fmt.Errorf("no pose update for %v: %w", age, ErrStalePose)
		l.state = Faulted
		return VelocityCommand{}, l.state, l.err
	}

	carrot, reached := l.selector.Select(pose, l.path, l.effectiveLookAhead(obstructed))
	if reached {
		l.state = Completed
		l.completedAt = now
		return VelocityCommand{}, l.state, nil
	}
	return l.arc.Command(pose, carrot), Tracking, nil
}

// effectiveLookAhead shrinks the nominal look-ahead while an obstacle
// is near, never below the configured floor. The reduction is not
// cumulative and reverts as soon as the clearance source reports
// clear again.
func (l *Loop) effectiveLookAhead(obstructed bool) float64 {
	if !obstructed {
		return l.cfg.LookAheadM
	}
	la := l.cfg.LookAheadM * l.cfg.ObstructionScale
	if la < l.cfg.MinLookAheadM {
		la = l.cfg.MinLookAheadM
	}
	return la
}

// fail moves a Tracking session to Faulted with the given error.
func (l *Loop) fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Tracking {
		l.state = Faulted
		l.err = err
	}
}

// Stop aborts the session from any state and returns to Idle. The
// caller is expected to emit a final stop command; Run does this on
// the way out.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = Idle
	l.path = nil
	l.pose = nil
	l.selector = nil
	l.arc = nil
	l.err = nil
}

// Reset returns a Completed or Faulted session to Idle so a new path
// can be started. Faults are never retried automatically.
func (l *Loop) Reset() { l.Stop() }

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the fault that moved the loop to Faulted, if any.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// StartedAt returns when the session entered Tracking.
func (l *Loop) StartedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

// CompletedAt returns when the session entered Completed, or the zero
// time if it has not.
func (l *Loop) CompletedAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.completedAt
}

// Run drives ticks at the configured period until the session
// completes, faults, is stopped, or ctx is canceled. A stop command is
// always sent on the way out. Periods that elapse while a tick or a
// slow sink is still executing are skipped, never queued; that is the
// ticker's drop semantics.
func (l *Loop) Run(ctx context.Context, sink CommandSink, clearance ClearanceSource) error {
	ticker := l.clock.Ticker(l.cfg.Period())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Stop()
			l.sendStop(sink)
			return ctx.Err()
		case <-ticker.C:
			obstructed := clearance != nil && clearance.Obstructed()
			cmd, state, err := l.Tick(obstructed)
			switch state {
			case Tracking:
				if serr := sink.Send(ctx, cmd); serr != nil {
					l.fail(fmt.Errorf("send command: %w", serr))
					l.sendStop(sink)
					return serr
				}
			case Completed:
				l.sendStop(sink)
				return nil
			case Faulted:
				l.sendStop(sink)
				return err
			case Idle:
				// Stopped from outside between ticks.
				l.sendStop(sink)
				return nil
			}
		}
	}
}

// sendStop emits a zero command on a background context so shutdown
// still reaches the sink when ctx is already canceled.
func (l *Loop) sendStop(sink CommandSink) {
	sctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = sink.Send(sctx, VelocityCommand{})
}
