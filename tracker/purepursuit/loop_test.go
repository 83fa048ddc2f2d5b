package purepursuit

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func loopConfig() Config {
	cfg := DefaultConfig()
	cfg.LookAheadM = 2.0
	cfg.ArrivalToleranceM = 0.3
	cfg.MinSpeedMPS = 0.05
	cfg.MaxSpeedMPS = 1.0
	cfg.MaxAngularRPS = 3.0
	cfg.ControlPeriodS = 0.1
	cfg.PoseStalenessS = 0.5
	return cfg
}

type recordingSink struct {
	mu     sync.Mutex
	cmds   []VelocityCommand
	onSend func(VelocityCommand)
}

func (s *recordingSink) Send(_ context.Context, cmd VelocityCommand) error {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	fn := s.onSend
	s.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
	return nil
}

func (s *recordingSink) last() VelocityCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cmds) == 0 {
		return VelocityCommand{Linear: math.NaN()}
	}
	return s.cmds[len(s.cmds)-1]
}

func TestNewLoopRejectsInvalidConfig(t *testing.T) {
	cfg := loopConfig()
	cfg.LookAheadM = cfg.ArrivalToleranceM
	_, err := NewLoop(cfg)
	require.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestStartEmptyPathStaysIdle(t *testing.T) {
	l, err := NewLoop(loopConfig())
	require.NoError(t, err)

	err = l.Start(nil, Pose{})
	require.True(t, errors.Is(err, ErrEmptyPath))
	require.Equal(t, Idle, l.State())
}

func TestStartTwice(t *testing.T) {
	l, err := NewLoop(loopConfig())
	require.NoError(t, err)

	require.NoError(t, l.Start([]Waypoint{{X: 1}}, Pose{}))
	err = l.Start([]Waypoint{{X: 1}}, Pose{})
	require.True(t, errors.Is(err, ErrNotIdle))
}

func TestTickAtFinalWaypointCompletesImmediately(t *testing.T) {
	mock := clock.NewMock()
	l, err := NewLoopWithClock(loopConfig(), mock)
	require.NoError(t, err)

	require.NoError(t, l.Start([]Waypoint{{}, {X: 10}}, Pose{X: 10}))
	cmd, state, err := l.Tick(false)
	require.NoError(t, err)
	require.Equal(t, Completed, state)
	require.Equal(t, VelocityCommand{}, cmd)
	require.Equal(t, mock.Now(), l.CompletedAt())

	// Further ticks stay Completed without new commands.
	cmd, state, err = l.Tick(false)
	require.NoError(t, err)
	require.Equal(t, Completed, state)
	require.Equal(t, VelocityCommand{}, cmd)
}

func TestStalePoseFaults(t *testing.T) {
	mock := clock.NewMock()
	l, err := NewLoopWithClock(loopConfig(), mock)
	require.NoError(t, err)
	require.NoError(t, l.Start([]Waypoint{{}, {X: 10}}, Pose{}))

	// Fresh pose: ticking is fine.
	mock.Add(100 * time.Millisecond)
	l.UpdatePose(Pose{X: 0.1}, mock.Now())
	_, state, err := l.Tick(false)
	require.NoError(t, err)
	require.Equal(t, Tracking, state)

	// Telemetry goes silent past the staleness timeout.
	mock.Add(600 * time.Millisecond)
	cmd, state, err := l.Tick(false)
	require.Equal(t, Faulted, state)
	require.True(t, errors.Is(err, ErrStalePose))
	require.Equal(t, VelocityCommand{}, cmd)
	require.True(t, errors.Is(l.Err(), ErrStalePose))

	// Faults are terminal until an explicit reset.
	_, state, _ = l.Tick(false)
	require.Equal(t, Faulted, state)
	l.Reset()
	require.Equal(t, Idle, l.State())
	require.NoError(t, l.Err())
}

func TestObstructionShrinksLookAhead(t *testing.T) {
	cfg := loopConfig() // look-ahead 2.0, scale 0.5, floor 0.6
	l, err := NewLoop(cfg)
	require.NoError(t, err)

	require.Equal(t, 2.0, l.effectiveLookAhead(false))
	for i := 0; i < 5; i++ {
		la := l.effectiveLookAhead(true)
		require.Less(t, la, cfg.LookAheadM, "tick %d", i)
		require.GreaterOrEqual(t, la, cfg.MinLookAheadM, "tick %d", i)
		require.InDelta(t, 1.0, la, 1e-9, "shrink is not cumulative")
	}
	// Reverts as soon as clearance returns.
	require.Equal(t, 2.0, l.effectiveLookAhead(false))

	// An aggressive scale hits the floor instead of collapsing.
	cfg.ObstructionScale = 0.1
	l2, err := NewLoop(cfg)
	require.NoError(t, err)
	require.Equal(t, cfg.MinLookAheadM, l2.effectiveLookAhead(true))
}

// TestStraightLineConvergence follows a straight segment with a
// simulated unicycle and must end Completed within the arrival
// tolerance of the goal.
func TestStraightLineConvergence(t *testing.T) {
	mock := clock.NewMock()
	cfg := loopConfig()
	l, err := NewLoopWithClock(cfg, mock)
	require.NoError(t, err)

	pose := Pose{}
	require.NoError(t, l.Start([]Waypoint{{}, {X: 10}}, pose))

	dt := cfg.ControlPeriodS
	for i := 0; i < 2000 && l.State() == Tracking; i++ {
		mock.Add(cfg.Period())
		l.UpdatePose(pose, mock.Now())
		cmd, state, err := l.Tick(false)
		require.NoError(t, err)
		if state != Tracking {
			break
		}
		pose.Heading = NormalizeAngle(pose.Heading + cmd.Angular*dt)
		pose.X += cmd.Linear * math.Cos(pose.Heading) * dt
		pose.Y += cmd.Linear * math.Sin(pose.Heading) * dt
	}

	require.Equal(t, Completed, l.State())
	require.LessOrEqual(t, pose.DistanceTo(10, 0), cfg.ArrivalToleranceM)
	require.True(t, l.CompletedAt().After(l.StartedAt()))
}

// TestCornerConvergence drives the L-shaped corner path end to end.
func TestCornerConvergence(t *testing.T) {
	mock := clock.NewMock()
	cfg := loopConfig()
	l, err := NewLoopWithClock(cfg, mock)
	require.NoError(t, err)

	pose := Pose{}
	require.NoError(t, l.Start([]Waypoint{{}, {X: 5}, {X: 5, Y: 5}}, pose))

	dt := cfg.ControlPeriodS
	for i := 0; i < 5000 && l.State() == Tracking; i++ {
		mock.Add(cfg.Period())
		l.UpdatePose(pose, mock.Now())
		cmd, state, err := l.Tick(false)
		require.NoError(t, err)
		if state != Tracking {
			break
		}
		pose.Heading = NormalizeAngle(pose.Heading + cmd.Angular*dt)
		pose.X += cmd.Linear * math.Cos(pose.Heading) * dt
		pose.Y += cmd.Linear * math.Sin(pose.Heading) * dt
	}

	require.Equal(t, Completed, l.State())
	require.LessOrEqual(t, pose.DistanceTo(5, 5), cfg.ArrivalToleranceM)
}

// TestRunEmitsCommandsAndStopsOnCompletion exercises the full Run loop
// on the wall clock with a synchronous simulated robot in the sink.
func TestRunEmitsCommandsAndStopsOnCompletion(t *testing.T) {
	cfg := loopConfig()
	cfg.ControlPeriodS = 0.001
	cfg.PoseStalenessS = 1.0
	l, err := NewLoop(cfg)
	require.NoError(t, err)

	pose := Pose{}
	require.NoError(t, l.Start([]Waypoint{{}, {X: 0.5}}, pose))

	var mu sync.Mutex
	sink := &recordingSink{}
	sink.onSend = func(cmd VelocityCommand) {
		mu.Lock()
		defer mu.Unlock()
		dt := cfg.ControlPeriodS
		pose.Heading = NormalizeAngle(pose.Heading + cmd.Angular*dt)
		pose.X += cmd.Linear * math.Cos(pose.Heading) * dt
		pose.Y += cmd.Linear * math.Sin(pose.Heading) * dt
		l.UpdatePose(pose, time.Now())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx, sink, nil))

	require.Equal(t, Completed, l.State())
	require.Equal(t, VelocityCommand{}, sink.last())
}

func TestRunStopsOnExternalStop(t *testing.T) {
	cfg := loopConfig()
	cfg.ControlPeriodS = 0.001
	cfg.PoseStalenessS = 10.0
	l, err := NewLoop(cfg)
	require.NoError(t, err)

	require.NoError(t, l.Start([]Waypoint{{}, {X: 1000}}, Pose{}))

	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		done <- l.Run(context.Background(), sink, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	l.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	require.Equal(t, Idle, l.State())
	require.Equal(t, VelocityCommand{}, sink.last())
}

func TestRunHonorsContextCancel(t *testing.T) {
	cfg := loopConfig()
	cfg.ControlPeriodS = 0.001
	cfg.PoseStalenessS = 10.0
	l, err := NewLoop(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Start([]Waypoint{{}, {X: 1000}}, Pose{}))

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, sink, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	require.Equal(t, Idle, l.State())
	require.Equal(t, VelocityCommand{}, sink.last())
}

type obstructedFor struct {
	mu    sync.Mutex
	ticks int
}

func (o *obstructedFor) Obstructed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ticks > 0 {
		o.ticks--
		return true
	}
	return false
}

func TestRunPollsClearanceSource(t *testing.T) {
	cfg := loopConfig()
	cfg.ControlPeriodS = 0.001
	cfg.PoseStalenessS = 10.0
	l, err := NewLoop(cfg)
	require.NoError(t, err)
	require.NoError(t, l.Start([]Waypoint{{}, {X: 1000}}, Pose{}))

	clearance := &obstructedFor{ticks: 5}
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() {
		done <- l.Run(context.Background(), sink, clearance)
	}()

	time.Sleep(50 * time.Millisecond)
	l.Stop()
	<-done

	clearance.mu.Lock()
	defer clearance.mu.Unlock()
	require.Equal(t, 0, clearance.ticks, "clearance source was not polled")
}

func TestStateString(t *testing.T) {
	require.Equal(t, "IDLE", Idle.String())
	require.Equal(t, "TRACKING", Tracking.String())
	require.Equal(t, "COMPLETED", Completed.String())
	require.Equal(t, "FAULTED", Faulted.String())
	require.Equal(t, "UNKNOWN", State(42).String())
}
