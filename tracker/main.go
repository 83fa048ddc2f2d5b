package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"carrot-tracker/utils"
)

func main() {
	var (
		transport  = flag.String("transport", "can", "Telemetry/command transport: can|lokarria")
		iface      = flag.String("iface", "vcan0", "SocketCAN interface name")
		mapPath    = flag.String("map", "config/can/robot_map.csv", "Path to robot_map.csv")
		trajectory = flag.String("trajectory", "", "Trajectory JSON file (required)")
		server     = flag.String("server", "localhost:50000", "MRDS server address for the lokarria transport")
		plotPath   = flag.String("plot", "", "Write a trajectory plot PNG to this path after the session")
		obstRange  = flag.Float64("obstruction-range", 0.5, "Laser echo distance treated as obstructed (lokarria, meters)")
		logLevel   = flag.String("log", "info", "trace|debug|info|warn|error|critical")
	)
	flag.Parse()

	log, err := utils.NewFileLogger("tracker.log", utils.ParseLogLevel(*logLevel), true)
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open tracker.log: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	if *trajectory == "" {
		log.Critical("Missing -trajectory")
		flag.Usage()
		os.Exit(2)
	}

	cfg := RunnerConfig{
		Transport:        *transport,
		Interface:        *iface,
		MapPath:          *mapPath,
		TrajectoryPath:   *trajectory,
		Server:           *server,
		PlotPath:         *plotPath,
		ObstructionRange: *obstRange,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := NewRunner(ctx, cfg, log)
	if err != nil {
		log.Critical("Startup failed: %v", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Critical("Run failed: %v", err)
		os.Exit(1)
	}
}
