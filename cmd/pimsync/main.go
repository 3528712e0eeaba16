package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/internal/pim"
	"github.com/lychee-technology/pimsync/internal/pipeline"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]
	switch {
	case command == "run":
		err = runAll(ctx, os.Args[2:])
	case slices.Contains(pipeline.Steps, command):
		err = runStep(ctx, command, os.Args[2:])
	case command == "reset":
		err = runReset(ctx, os.Args[2:])
	case command == "help" || command == "-h" || command == "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		zap.S().Errorw("command failed", "command", command, "error", err)
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

// setupLogger installs the global logger from the logging settings. verbose
// forces the debug level.
func setupLogger(cfg pimsync.LoggingConfig, verbose bool) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = cfg.Encoding
	zc.OutputPaths = []string{"stderr"}
	if cfg.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	if verbose {
		pim.RegisterTelemetryEmitter(func(_ context.Context, name string, labels map[string]string, value any) {
			zap.S().Debugw("telemetry", "measure", name, "labels", labels, "value", value)
		})
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: pimsync <command> [options]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  run               Run every job step in order and commit the watermark")
	for _, step := range pipeline.Steps {
		fmt.Printf("  %-17s Run the %s step only\n", step, step)
	}
	fmt.Println("  reset             Force the next run to be a full import")
	fmt.Println("")
	fmt.Println("Run 'pimsync <command> -h' for the options of a command.")
}
