package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"carrot-tracker/lokarria"
	"carrot-tracker/tracker/purepursuit"
	"carrot-tracker/utils"
)

// Frame names the runner expects in the CAN map.
const (
	poseFrameName      = "POSE_STATE_1"
	clearanceFrameName = "LASER_CLEARANCE_1"
	driveFrameName     = "DRIVE_CMD_1"
)

const initialPoseTimeout = 5 * time.Second

type RunnerConfig struct {
	Transport        string // "can" or "lokarria"
	Interface        string
	MapPath          string
	TrajectoryPath   string
	Server           string
	PlotPath         string
	ObstructionRange float64 // lokarria: min laser echo that counts as obstructed
}

// poseUpdate is one telemetry sample on its way to the loop.
type poseUpdate struct {
	pose purepursuit.Pose
	at   time.Time
}

// clearanceState is the polled obstruction flag, written by the
// telemetry goroutine and read once per control tick.
type clearanceState struct {
	obstructed atomic.Bool
}

func (c *clearanceState) Obstructed() bool { return c.obstructed.Load() }

func (c *clearanceState) set(v bool) { c.obstructed.Store(v) }

// trackRecorder keeps the traversed positions for the session plot.
type trackRecorder struct {
	mu     sync.Mutex
	points []purepursuit.Waypoint
}

func (t *trackRecorder) add(x, y float64) {
	t.mu.Lock()
	t.points = append(t.points, purepursuit.Waypoint{X: x, Y: y})
	t.mu.Unlock()
}

func (t *trackRecorder) snapshot() []purepursuit.Waypoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]purepursuit.Waypoint, len(t.points))
	copy(out, t.points)
	return out
}

// Runner wires the tracking loop to one of the two transports and
// owns the session lifecycle around it.
type Runner struct {
	cfg  RunnerConfig
	log  *utils.Logger
	traj Trajectory
	loop *purepursuit.Loop

	// CAN transport
	cmap   *utils.CANMap
	writer utils.CANWriter
	reader utils.CANReader

	// Lokarria transport
	client *lokarria.Client

	clearance *clearanceState
	track     *trackRecorder
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	traj, err := LoadTrajectory(cfg.TrajectoryPath)
	if err != nil {
		return nil, fmt.Errorf("load trajectory: %w", err)
	}

	r := &Runner{
		cfg:       cfg,
		log:       log,
		traj:      traj,
		clearance: &clearanceState{},
		track:     &trackRecorder{},
	}

	switch cfg.Transport {
	case "can":
		if err := r.setupCAN(ctx); err != nil {
			r.Close()
			return nil, err
		}
	case "lokarria":
		r.client = lokarria.NewClient(cfg.Server, time.Second)
	default:
		return nil, fmt.Errorf("unknown transport %q (want can or lokarria)", cfg.Transport)
	}

	loop, err := purepursuit.NewLoop(r.traj.Config)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.loop = loop
	return r, nil
}

func (r *Runner) setupCAN(ctx context.Context) error {
	cmap, err := utils.LoadCANMap(r.cfg.MapPath)
	if err != nil {
		return fmt.Errorf("load can map: %w", err)
	}
	for _, name := range []string{poseFrameName, clearanceFrameName, driveFrameName} {
		if _, err := cmap.FrameByName(name); err != nil {
			return fmt.Errorf("can map: %w", err)
		}
	}
	r.cmap = cmap

	// The drive frame's cycle time is the bus contract for how often
	// commands must appear, so it overrides the configured period.
	if fd, _ := cmap.FrameByName(driveFrameName); fd.CycleMS > 0 {
		r.traj.Config.ControlPeriodS = float64(fd.CycleMS) / 1000.0
		r.log.Info("Control period set from %s cycle_ms=%d", driveFrameName, fd.CycleMS)
	}

	writer, err := utils.NewSocketCANWriter(ctx, r.cfg.Interface)
	if err != nil {
		return err
	}
	r.writer = writer

	reader, err := utils.NewSocketCANReader(ctx, r.cfg.Interface)
	if err != nil {
		return err
	}
	r.reader = reader
	return nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
}

// Run follows the loaded trajectory until completion, fault or
// cancellation, then reports the session outcome.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Tracking session: path=%s waypoints=%d transport=%s look_ahead=%.2fm period=%.0fms",
		r.traj.Name, len(r.traj.Waypoints), r.cfg.Transport,
		r.traj.Config.LookAheadM, r.traj.Config.ControlPeriodS*1000)

	poseCh := make(chan poseUpdate, 100)
	rxCtx, stopRx := context.WithCancel(ctx)
	defer stopRx()
	go r.receiveLoop(rxCtx, poseCh)

	initial, err := r.awaitInitialPose(ctx, poseCh)
	if err != nil {
		return err
	}
	r.log.Info("Initial pose: x=%.3f y=%.3f heading=%.3f", initial.X, initial.Y, initial.Heading)

	if err := r.loop.Start(r.traj.Waypoints, initial); err != nil {
		return fmt.Errorf("start tracking: %w", err)
	}

	go func() {
		for {
			select {
			case <-rxCtx.Done():
				return
			case u := <-poseCh:
				r.loop.UpdatePose(u.pose, u.at)
				r.track.add(u.pose.X, u.pose.Y)
			}
		}
	}()

	runErr := r.loop.Run(ctx, r.commandSink(), r.clearance)
	r.report()
	return runErr
}

func (r *Runner) awaitInitialPose(ctx context.Context, poseCh <-chan poseUpdate) (purepursuit.Pose, error) {
	select {
	case <-ctx.Done():
		return purepursuit.Pose{}, ctx.Err()
	case <-time.After(initialPoseTimeout):
		return purepursuit.Pose{}, fmt.Errorf("no pose telemetry within %v", initialPoseTimeout)
	case u := <-poseCh:
		r.track.add(u.pose.X, u.pose.Y)
		return u.pose, nil
	}
}

func (r *Runner) commandSink() purepursuit.CommandSink {
	if r.cfg.Transport == "can" {
		return &canSink{cmap: r.cmap, writer: r.writer, log: r.log}
	}
	return &lokarriaSink{client: r.client, log: r.log}
}

// receiveLoop feeds pose updates and the clearance flag from whichever
// transport is active.
func (r *Runner) receiveLoop(ctx context.Context, poseCh chan<- poseUpdate) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	if r.cfg.Transport == "can" {
		r.receiveCAN(ctx, poseCh)
		return
	}
	r.pollLokarria(ctx, poseCh)
}

func (r *Runner) receiveCAN(ctx context.Context, poseCh chan<- poseUpdate) {
	poseFrame, _ := r.cmap.FrameByName(poseFrameName)
	clearanceFrame, _ := r.cmap.FrameByName(clearanceFrameName)

	for {
		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			// Only context cancellation or a closed receiver end up
			// here; either way the bus is gone.
			if ctx.Err() == nil {
				r.log.Error("RX stopped: %v", err)
			}
			return
		}

		switch frame.ID {
		case poseFrame.ID:
			vals, err := r.cmap.DecodeFrame(frame)
			if err != nil {
				r.log.Error("decode pose frame: %v", err)
				continue
			}
			if vals["pose_valid"] == 0 {
				continue
			}
			select {
			case poseCh <- poseUpdate{
				pose: purepursuit.Pose{X: vals["x_m"], Y: vals["y_m"], Heading: vals["heading_rad"]},
				at:   time.Now(),
			}:
			default:
				// Channel full; the next sample supersedes this one.
			}
		case clearanceFrame.ID:
			vals, err := r.cmap.DecodeFrame(frame)
			if err != nil {
				r.log.Error("decode clearance frame: %v", err)
				continue
			}
			r.clearance.set(vals["obstructed"] != 0)
			r.log.Trace("RX clearance min_range=%.2fm obstructed=%v", vals["min_range_m"], vals["obstructed"] != 0)
		}
	}
}

// pollLokarria polls the simulator at the control period for pose, and
// at a slower cadence for laser clearance.
func (r *Runner) pollLokarria(ctx context.Context, poseCh chan<- poseUpdate) {
	ticker := time.NewTicker(r.traj.Config.Period())
	defer ticker.Stop()

	const laserEvery = 5
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := r.client.Localization(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn("localization poll: %v", err)
				continue
			}
			select {
			case poseCh <- poseUpdate{
				pose: purepursuit.Pose{X: sample.X, Y: sample.Y, Heading: sample.Heading},
				at:   sample.At,
			}:
			default:
			}

			tick++
			if r.cfg.ObstructionRange > 0 && tick%laserEvery == 0 {
				min, err := r.client.MinEchoDistance(ctx)
				if err != nil {
					r.log.Trace("laser poll: %v", err)
					continue
				}
				r.clearance.set(min < r.cfg.ObstructionRange)
			}
		}
	}
}

func (r *Runner) report() {
	state := r.loop.State()
	switch state {
	case purepursuit.Completed:
		elapsed := r.loop.CompletedAt().Sub(r.loop.StartedAt())
		r.log.Info("Path completed in %.2fs", elapsed.Seconds())
	case purepursuit.Faulted:
		r.log.Error("Tracking faulted: %v", r.loop.Err())
	default:
		r.log.Info("Tracking ended in state %s", state)
	}

	if r.cfg.PlotPath != "" {
		if err := writeTrajectoryPlot(r.cfg.PlotPath, r.traj.Waypoints, r.track.snapshot()); err != nil {
			r.log.Error("write trajectory plot: %v", err)
		} else {
			r.log.Info("Trajectory plot written to %s", r.cfg.PlotPath)
		}
	}
}

// canSink encodes velocity commands into drive frames on the bus.
type canSink struct {
	cmap   *utils.CANMap
	writer utils.CANWriter
	log    *utils.Logger
	sent   uint64
}

func (s *canSink) Send(ctx context.Context, cmd purepursuit.VelocityCommand) error {
	frame, err := s.cmap.EncodeFrame(driveFrameName, map[string]float64{
		"system_enable": utils.BoolToFloat(true),
		"linear_mps":    cmd.Linear,
		"angular_rps":   cmd.Angular,
	})
	if err != nil {
		return fmt.Errorf("encode drive frame: %w", err)
	}
	if err := s.writer.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit drive frame: %w", err)
	}
	s.sent++
	if s.sent%100 == 0 {
		s.log.Debug("TX %d drive frames so far", s.sent)
	}
	s.log.Trace("TX id=0x%X linear=%.3f angular=%.3f", frame.ID, cmd.Linear, cmd.Angular)
	return nil
}

// lokarriaSink posts velocity commands to the simulator.
type lokarriaSink struct {
	client *lokarria.Client
	log    *utils.Logger
}

func (s *lokarriaSink) Send(ctx context.Context, cmd purepursuit.VelocityCommand) error {
	if err := s.client.SetSpeeds(ctx, cmd.Linear, cmd.Angular); err != nil {
		return err
	}
	s.log.Trace("TX linear=%.3f angular=%.3f", cmd.Linear, cmd.Angular)
	return nil
}
