package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/pimsync"
	"github.com/lychee-technology/pimsync/factory"
	"github.com/lychee-technology/pimsync/internal/transform"
	"go.uber.org/zap"
)

type commonOptions struct {
	config  string
	out     string
	verbose bool
}

func parseFlags(name string, args []string, extra func(*flag.FlagSet)) (*commonOptions, error) {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Printf("Usage: pimsync %s [options]\n", name)
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := &commonOptions{}
	flags.StringVar(&opts.config, "config", os.Getenv("PIMSYNC_CONFIG"), "YAML configuration file (environment only when empty)")
	flags.StringVar(&opts.out, "out", "-", "file receiving the emitted catalog nodes, - for stdout")
	flags.BoolVar(&opts.verbose, "verbose", false, "log at debug level")
	if extra != nil {
		extra(flags)
	}
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// open loads the configuration, installs the logger and wires a syncer.
func open(ctx context.Context, opts *commonOptions) (*factory.Syncer, error) {
	cfg, err := pimsync.LoadConfig(opts.config)
	if err != nil {
		return nil, err
	}
	if err := setupLogger(cfg.Logging, opts.verbose); err != nil {
		return nil, err
	}
	return factory.NewSyncer(ctx, cfg)
}

// openSink returns the node writer and a function flushing and closing it.
func openSink(path string) (*transform.JSONLines, func() error, error) {
	var w io.Writer = os.Stdout
	var file *os.File
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, fmt.Errorf("create output file: %w", err)
		}
		file = f
		w = f
	}
	buf := bufio.NewWriter(w)
	closeFn := func() error {
		err := buf.Flush()
		if file != nil {
			err = errors.Join(err, file.Close())
		}
		return err
	}
	return transform.NewJSONLines(buf), closeFn, nil
}

func runAll(ctx context.Context, args []string) error {
	opts, err := parseFlags("run", args, nil)
	if err != nil {
		return ignoreHelp(err)
	}
	syncer, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer syncer.Close()

	sink, closeSink, err := openSink(opts.out)
	if err != nil {
		return err
	}
	reports, runErr := syncer.Runner.Run(ctx, sink)
	for _, report := range reports {
		logReport(report)
	}
	zap.S().Infow("catalog nodes written", "count", sink.Count())
	return errors.Join(runErr, closeSink())
}

func runStep(ctx context.Context, step string, args []string) error {
	opts, err := parseFlags(step, args, nil)
	if err != nil {
		return ignoreHelp(err)
	}
	syncer, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer syncer.Close()

	sink, closeSink, err := openSink(opts.out)
	if err != nil {
		return err
	}
	report, stepErr := syncer.Runner.Step(ctx, step, sink)
	if report != nil {
		logReport(report)
	}
	return errors.Join(stepErr, closeSink())
}

func runReset(ctx context.Context, args []string) error {
	var mode string
	opts, err := parseFlags("reset", args, func(flags *flag.FlagSet) {
		flags.StringVar(&mode, "mode", "clear",
			"clear forgets the last import time, full flags every run as full import, differential removes that flag")
	})
	if err != nil {
		return ignoreHelp(err)
	}
	syncer, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer syncer.Close()

	coord := syncer.Runner.Coordinator()
	runtime := syncer.Runner.RuntimeID()
	switch mode {
	case "clear":
		err = coord.Clear(ctx, runtime)
	case "full":
		err = coord.SetImportType(ctx, runtime, true)
	case "differential":
		err = coord.SetImportType(ctx, runtime, false)
	default:
		return pimsync.NewConfigurationError("mode", fmt.Sprintf("unknown reset mode %q", mode))
	}
	if err != nil {
		return err
	}
	zap.S().Infow("import runtime reset", "runtime", runtime, "mode", mode)
	return nil
}

func logReport(r *pimsync.JobReport) {
	fields := []any{
		"step", r.Step,
		"runId", r.RunID,
		"status", r.Status,
		"processed", r.Processed,
		"failed", r.Failed,
		"duration", r.Duration,
	}
	if r.Errors != nil {
		fields = append(fields, "errors", r.Errors.GetErrorSummary())
	}
	if r.Status == pimsync.JobStatusWarn {
		zap.S().Warnw("job step report", fields...)
		return
	}
	zap.S().Infow("job step report", fields...)
}

func ignoreHelp(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}
