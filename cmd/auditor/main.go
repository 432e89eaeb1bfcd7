// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/ecoaudit/cpuaudit/internal/audit"
	"github.com/ecoaudit/cpuaudit/internal/carbon"
	"github.com/ecoaudit/cpuaudit/internal/config"
	"github.com/ecoaudit/cpuaudit/internal/energy"
	"github.com/ecoaudit/cpuaudit/internal/logger"
	"github.com/ecoaudit/cpuaudit/internal/procstat"
	"github.com/ecoaudit/cpuaudit/internal/schedule"
	"github.com/ecoaudit/cpuaudit/internal/service"
	"github.com/ecoaudit/cpuaudit/internal/version"
)

// flags is the thin flag surface described by SPEC_FULL.md §9: a
// handful of kingpin flags wired directly in main, no config-file
// loading.
type flags struct {
	pid            int
	durationSec    float64
	tickMs         int64
	policy         string
	emissionFactor float64
	streaming      bool
	windowSize     int
	meta           bool

	procPath     string
	powercapRoot string

	cpuIdleWatts float64
	cpuMaxWatts  float64
	cpuTDPWatts  float64

	logLevel  string
	logFormat string
}

func parseFlags(args []string) (*flags, error) {
	app := kingpin.New("cpuaudit", "Audits one process's share of host CPU energy and carbon footprint.")

	f := &flags{}
	app.Flag("pid", "Target process id to audit").Required().IntVar(&f.pid)
	app.Flag("duration", "Audit duration in seconds").Required().Float64Var(&f.durationSec)
	app.Flag("tick-ms", "Sampling tick period in milliseconds").Default("1000").Int64Var(&f.tickMs)
	app.Flag("policy", "Overrun recovery policy: burst or coalesce").Default(string(schedule.PolicyCoalesce)).StringVar(&f.policy)
	app.Flag("emission-factor", "Grid carbon intensity in grams CO2e per kWh").Default(fmt.Sprintf("%g", carbon.DefaultEmissionFactorGPerKWh)).Float64Var(&f.emissionFactor)
	app.Flag("streaming", "Emit a JSONL record per tick instead of one final report").BoolVar(&f.streaming)
	app.Flag("window-size", "Sliding-window sample capacity in streaming mode").Default(fmt.Sprintf("%d", audit.DefaultWindowSize)).IntVar(&f.windowSize)
	app.Flag("meta", "Include the diagnostic meta block in the final report").BoolVar(&f.meta)

	app.Flag("proc-path", "procfs mountpoint").Default("/proc").StringVar(&f.procPath)
	app.Flag("powercap-root", "powercap sysfs root").Default(energy.DefaultPowercapRoot).StringVar(&f.powercapRoot)

	app.Flag("cpu-idle-watts", "Fallback model: watts at 0% utilization").Float64Var(&f.cpuIdleWatts)
	app.Flag("cpu-max-watts", "Fallback model: watts at 100% utilization").Float64Var(&f.cpuMaxWatts)
	app.Flag("cpu-tdp-watts", "Fallback model: thermal design power, alternative to idle/max watts").Float64Var(&f.cpuTDPWatts)

	app.Flag("log.level", "debug, info, warn or error").Default("info").StringVar(&f.logLevel)
	app.Flag("log.format", "text or json").Default("text").StringVar(&f.logFormat)

	_, err := app.Parse(args)
	return f, err
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.New(f.logLevel, f.logFormat, os.Stderr)
	v := version.Info()
	log.Info("cpuaudit version information",
		"version", v.Version, "goVersion", v.GoVersion, "goOS", v.GoOS, "goArch", v.GoArch)

	cfg := config.Default()
	cfg.Log.Level = f.logLevel
	cfg.Log.Format = f.logFormat
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	controller, err := buildController(f, log)
	if err != nil {
		log.Error("failed to initialize audit", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services := []service.Service{
		controller,
		service.NewSignalHandler(os.Interrupt),
	}

	log.Info("starting audit", "pid", f.pid, "duration_s", f.durationSec)
	if err := service.Run(ctx, log, services); err != nil {
		log.Error("audit terminated with an error", "error", err)
		os.Exit(1)
	}

	if err := emitReport(controller.Report(), os.Stdout); err != nil {
		log.Error("failed to encode final report", "error", err)
		os.Exit(1)
	}
}

func buildController(f *flags, log *slog.Logger) (*audit.Controller, error) {
	probe := energy.Probe(f.powercapRoot)
	if probe.Status != energy.ProbeOK {
		log.Warn("RAPL probe did not succeed, falling back to the empirical model",
			"status", probe.Status, "hint", probe.Hint)
	}

	hostReader, err := procstat.NewHostReader(f.procPath, log)
	if err != nil {
		return nil, fmt.Errorf("opening host cpu reader: %w", err)
	}
	processReader, err := procstat.NewProcessReader(f.procPath, f.pid, log)
	if err != nil {
		return nil, fmt.Errorf("opening process cpu reader: %w", err)
	}

	empirical := &energy.EmpiricalConfig{
		PIdleW: f.cpuIdleWatts,
		PMaxW:  f.cpuMaxWatts,
		TDPW:   f.cpuTDPWatts,
	}
	energyReader := energy.NewReader(probe, empirical, hostReader.AsUtilizationSampler(), log)

	factor, ok := carbon.Resolve(f.emissionFactor)
	if !ok {
		return nil, fmt.Errorf("emission-factor must be >= 0, got %g", f.emissionFactor)
	}

	c, err := audit.New(
		audit.WithLogger(log),
		audit.WithPID(f.pid),
		audit.WithDuration(f.durationSec),
		audit.WithTickPeriod(time.Duration(f.tickMs)*time.Millisecond),
		audit.WithPolicy(schedule.Policy(f.policy)),
		audit.WithEmissionFactor(factor),
		audit.WithReaders(energyReader, hostReader, processReader),
		audit.WithProbe(probe),
		audit.WithStreaming(f.streaming),
		audit.WithWindowSize(f.windowSize),
		audit.WithMeta(f.meta),
	)
	if err != nil {
		return nil, err
	}
	if f.streaming {
		c.WithOutput(os.Stdout)
	}
	return c, nil
}

func emitReport(report audit.Report, w *os.File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
