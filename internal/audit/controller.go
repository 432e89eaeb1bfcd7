// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
	"github.com/ecoaudit/cpuaudit/internal/carbon"
	"github.com/ecoaudit/cpuaudit/internal/energy"
	"github.com/ecoaudit/cpuaudit/internal/procstat"
	"github.com/ecoaudit/cpuaudit/internal/schedule"
	"github.com/ecoaudit/cpuaudit/internal/service"
)

// Controller is the audit orchestrator (C7): it drives the scheduler,
// fans out the three reader samples per tick, and feeds them to an
// accumulator or sliding window. Generalizes
// internal/monitor.PowerMonitor's refreshSnapshot/collectionLoop
// orchestration down to a single target-PID audit.
type Controller struct {
	logger *slog.Logger
	clk    clock.WithTicker

	pid             int
	durationSeconds float64
	tickPeriod      time.Duration
	policy          schedule.Policy
	emissionFactor  float64

	energyReader  *energy.Reader
	hostReader    *procstat.HostReader
	processReader *procstat.ProcessReader
	probe         energy.ProbeResult

	windowSize  int
	streaming   bool
	includeMeta bool
	out         io.Writer

	auditID string
	report  atomic.Pointer[Report]
}

var (
	_ service.Service = (*Controller)(nil)
	_ service.Runner  = (*Controller)(nil)
)

// New validates opts and constructs a Controller, per §4.7's
// pre-conditions.
func New(applyOpts ...OptionFn) (*Controller, error) {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	if opts.pid <= 1 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidPID, fmt.Sprintf("pid must be > 1, got %d", opts.pid))
	}
	if opts.durationSeconds <= 0 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidDuration,
			fmt.Sprintf("duration_seconds must be > 0, got %f", opts.durationSeconds))
	}
	if opts.tickPeriod <= 0 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidPeriod,
			fmt.Sprintf("tick_ms must be > 0, got %s", opts.tickPeriod))
	}
	if float64(opts.emissionFactor) < 0 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidDuration, "emission_factor must be >= 0")
	}
	if opts.energyReader == nil || !opts.energyReader.Ready() {
		return nil, auditerr.NewConfigError(auditerr.KindEnergySourceUnavail,
			"neither RAPL hardware counters nor a sufficient empirical model are available")
	}
	if opts.hostReader == nil || opts.processReader == nil {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidPID, "host and process readers are required")
	}

	return &Controller{
		logger:          opts.logger.With("component", "audit", "pid", opts.pid),
		clk:             opts.clock,
		pid:             opts.pid,
		durationSeconds: opts.durationSeconds,
		tickPeriod:      opts.tickPeriod,
		policy:          opts.policy,
		emissionFactor:  float64(opts.emissionFactor),
		energyReader:    opts.energyReader,
		hostReader:      opts.hostReader,
		processReader:   opts.processReader,
		probe:           opts.probe,
		windowSize:      opts.windowSize,
		streaming:       opts.streaming,
		includeMeta:     opts.includeMeta,
		auditID:         uuid.NewString(),
	}, nil
}

// WithOutput sets the writer streaming JSONL records are encoded to,
// when streaming mode is enabled.
func (c *Controller) WithOutput(w io.Writer) *Controller {
	c.out = w
	return c
}

func (c *Controller) Name() string { return "audit" }

// Run executes the audit loop to completion or cancellation and
// stores the resulting report, retrievable via Report. It satisfies
// service.Runner so cmd/auditor can drive it through service.Run
// exactly like any other teacher service.
func (c *Controller) Run(ctx context.Context) error {
	report, err := c.audit(ctx)
	if err != nil {
		return err
	}
	c.report.Store(&report)
	return nil
}

// Report returns the most recently completed audit's report. Callers
// should await Run's completion (or cancellation) before reading it.
func (c *Controller) Report() Report {
	if r := c.report.Load(); r != nil {
		return *r
	}
	return Report{}
}

func (c *Controller) audit(ctx context.Context) (Report, error) {
	startedAt := c.clk.Now()
	startNs := startedAt.UnixNano()
	deadlineTargetNs := startedAt.Add(time.Duration(c.durationSeconds * float64(time.Second))).UnixNano()

	sched, err := schedule.New(c.tickPeriod, c.policy, c.clk, c.logger)
	if err != nil {
		return Report{}, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ticks := sched.Run(runCtx)

	var acc *Accumulator
	var window *Window
	var encoder *JSONLEncoder
	if c.streaming {
		window = NewWindow(c.windowSize, carbon.Factor(c.emissionFactor))
		if c.out != nil {
			encoder = NewJSONLEncoder(c.out)
		}
	} else {
		acc = NewAccumulator(startNs, carbon.Factor(c.emissionFactor))
	}

	meta := &Meta{}
	endReason := EndReasonDuration
	var endNs int64 = startNs

loop:
	for {
		select {
		case <-ctx.Done():
			endReason = EndReasonAborted
			break loop
		case tick, ok := <-ticks:
			if !ok {
				break loop
			}
			if tick.StartNs >= deadlineTargetNs {
				endNs = tick.StartNs
				break loop
			}

			sample, cerr := c.collect(ctx, tick.StartNs)
			if cerr != nil {
				cancel()
				return Report{}, cerr
			}
			endNs = tick.StartNs
			meta.SkippedPeriodsTotal += tick.SkippedPeriods
			c.updateMeta(meta, sample)

			if window != nil {
				result := window.Push(sample)
				if encoder != nil {
					_ = encoder.Encode(recordFromWindow(c.auditID, tick, sample, result))
				}
			} else {
				acc.Push(sample)
			}
		}
	}
	cancel()
	meta.EndReason = endReason

	var attribution Attribution
	if acc != nil {
		attribution, err = acc.Finalize(endNs)
		if err != nil {
			return Report{}, err
		}
	} else {
		attribution = Attribution{DurationSeconds: float64(endNs-startNs) / 1e9}
	}

	if !attribution.IsActive && meta.FirstProcessError != "" {
		meta.Note = fmt.Sprintf("process likely ended before priming (first error: %s)", meta.FirstProcessError)
	}

	report := Report{
		AuditID:               c.auditID,
		PID:                   c.pid,
		DurationSeconds:       attribution.DurationSeconds,
		HostCPUEnergyJ:        attribution.HostEnergyJ,
		ProcessCPUEnergyJ:     attribution.ProcessEnergyJ,
		ProcessCPUEnergyShare: attribution.Share,
		HostCarbonGCO2e:       attribution.HostCarbonG,
		ProcessCarbonGCO2e:    attribution.ProcessCarbonG,
		IsActive:              attribution.IsActive,
		StartedAt:             startedAt,
		EndedAt:               time.Unix(0, endNs),
	}
	if c.includeMeta {
		meta.Probe = c.probe
		report.Meta = meta
	}

	return report, nil
}

// collect fans the tick's three reader samples out concurrently,
// except that a fallback-mode energy reader must observe the host
// reader's result for this same tick before it can compute its own
// sample, since fallback mode has no independent hardware signal
// (§4.2's fallback-mode sampling "uses the Host CPU Reader
// internally"). Hardware-mode energy sampling has no such dependency
// and runs fully in parallel with the other two readers, per §5.
func (c *Controller) collect(ctx context.Context, nowNs int64) (Sample, error) {
	var s Sample
	g, _ := errgroup.WithContext(ctx)

	if c.energyReader.UsesHostFallback() {
		s.Host = c.hostReader.Sample(nowNs)
		g.Go(func() error {
			es, err := c.energyReader.Sample(nowNs)
			s.Energy = es
			return err
		})
	} else {
		g.Go(func() error {
			es, err := c.energyReader.Sample(nowNs)
			s.Energy = es
			return err
		})
		g.Go(func() error {
			s.Host = c.hostReader.Sample(nowNs)
			return nil
		})
	}

	g.Go(func() error {
		s.Process = c.processReader.Sample()
		return nil
	})

	if err := g.Wait(); err != nil {
		return s, err
	}
	return s, nil
}

func (c *Controller) updateMeta(meta *Meta, s Sample) {
	if s.Host.OK && s.Host.Primed {
		meta.HostPrimedSamples++
	}
	if s.Process.OK {
		meta.ProcessOKSamples++
		if s.Process.Primed {
			meta.ProcessPrimedSamples++
		}
	} else {
		meta.ProcessErrorSamples++
		if meta.FirstProcessError == "" {
			meta.FirstProcessError = s.Process.Error
		}
	}
}
