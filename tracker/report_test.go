package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"carrot-tracker/tracker/purepursuit"
)

func TestWriteTrajectoryPlot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "session.png")

	planned := []purepursuit.Waypoint{{}, {X: 5}, {X: 5, Y: 5}}
	traversed := []purepursuit.Waypoint{{}, {X: 2.5, Y: 0.1}, {X: 4.8, Y: 1.2}, {X: 5, Y: 5}}

	require.NoError(t, writeTrajectoryPlot(out, planned, traversed))

	info, err := os.Stat(out)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestWriteTrajectoryPlotNoTrack(t *testing.T) {
	out := filepath.Join(t.TempDir(), "planned-only.png")
	require.NoError(t, writeTrajectoryPlot(out, []purepursuit.Waypoint{{}, {X: 1}}, nil))
	_, err := os.Stat(out)
	require.NoError(t, err)
}
