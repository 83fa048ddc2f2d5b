package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"carrot-tracker/tracker/purepursuit"
)

// Trajectory is a loaded path plus the tracker tuning to follow it.
type Trajectory struct {
	Name      string
	Waypoints []purepursuit.Waypoint
	Config    purepursuit.Config
}

// trajectoryFile is the native on-disk layout: metadata, an optional
// tracking block overriding the default tuning, and the point list.
type trajectoryFile struct {
	Meta struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	} `json:"meta"`
	Tracking json.RawMessage        `json:"tracking,omitempty"`
	Points   []purepursuit.Waypoint `json:"points"`
}

// lokarriaPoint is one entry of an MRDS trajectory file, which is a
// bare JSON array of timestamped poses.
type lokarriaPoint struct {
	Pose struct {
		Position struct {
			X float64 `json:"X"`
			Y float64 `json:"Y"`
			Z float64 `json:"Z"`
		} `json:"Position"`
	} `json:"Pose"`
}

// LoadTrajectory reads a trajectory from disk. Both the native format
// and the MRDS pose-array format are accepted.
func LoadTrajectory(path string) (Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Trajectory{}, fmt.Errorf("read file: %w", err)
	}
	traj, err := ParseTrajectory(data)
	if err != nil {
		return Trajectory{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if traj.Name == "" {
		traj.Name = filepath.Base(path)
	}
	return traj, nil
}

// ParseTrajectory decodes trajectory JSON. A top-level array is
// treated as an MRDS pose list; an object as the native format.
func ParseTrajectory(data []byte) (Trajectory, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Trajectory{}, fmt.Errorf("empty trajectory file")
	}

	cfg := purepursuit.DefaultConfig()

	if trimmed[0] == '[' {
		var points []lokarriaPoint
		if err := json.Unmarshal(trimmed, &points); err != nil {
			return Trajectory{}, fmt.Errorf("unmarshal pose array: %w", err)
		}
		waypoints := make([]purepursuit.Waypoint, 0, len(points))
		for _, p := range points {
			waypoints = append(waypoints, purepursuit.Waypoint{
				X: p.Pose.Position.X,
				Y: p.Pose.Position.Y,
			})
		}
		return validated(Trajectory{Waypoints: waypoints, Config: cfg})
	}

	var file trajectoryFile
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return Trajectory{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(file.Tracking) > 0 {
		// Partial blocks are fine: absent fields keep their defaults.
		if err := json.Unmarshal(file.Tracking, &cfg); err != nil {
			return Trajectory{}, fmt.Errorf("unmarshal tracking block: %w", err)
		}
	}
	return validated(Trajectory{
		Name:      file.Meta.Name,
		Waypoints: file.Points,
		Config:    cfg,
	})
}

func validated(t Trajectory) (Trajectory, error) {
	if len(t.Waypoints) == 0 {
		return Trajectory{}, fmt.Errorf("trajectory has no waypoints: %w", purepursuit.ErrEmptyPath)
	}
	if err := t.Config.Validate(); err != nil {
		return Trajectory{}, err
	}
	return t, nil
}
