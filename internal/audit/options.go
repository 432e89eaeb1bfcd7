// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ecoaudit/cpuaudit/internal/carbon"
	"github.com/ecoaudit/cpuaudit/internal/energy"
	"github.com/ecoaudit/cpuaudit/internal/procstat"
	"github.com/ecoaudit/cpuaudit/internal/schedule"
)

// Opts holds the Controller's configuration, following the same
// functional-options shape as internal/monitor.Opts.
type Opts struct {
	logger *slog.Logger
	clock  clock.WithTicker

	pid             int
	durationSeconds float64
	tickPeriod      time.Duration
	policy          schedule.Policy
	emissionFactor  carbon.Factor

	energyReader  *energy.Reader
	hostReader    *procstat.HostReader
	processReader *procstat.ProcessReader
	probe         energy.ProbeResult

	windowSize  int
	streaming   bool
	includeMeta bool
}

// DefaultOpts returns an Opts with every non-reader field defaulted;
// the three readers MUST still be supplied via With* before Run.
func DefaultOpts() Opts {
	return Opts{
		logger:         slog.Default(),
		clock:          clock.RealClock{},
		tickPeriod:     time.Second,
		policy:         schedule.PolicyCoalesce,
		emissionFactor: carbon.DefaultEmissionFactorGPerKWh,
		windowSize:     DefaultWindowSize,
	}
}

// OptionFn sets one or more options in Opts.
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) { o.logger = logger }
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) { o.clock = c }
}

func WithPID(pid int) OptionFn {
	return func(o *Opts) { o.pid = pid }
}

func WithDuration(seconds float64) OptionFn {
	return func(o *Opts) { o.durationSeconds = seconds }
}

func WithTickPeriod(d time.Duration) OptionFn {
	return func(o *Opts) { o.tickPeriod = d }
}

func WithPolicy(p schedule.Policy) OptionFn {
	return func(o *Opts) { o.policy = p }
}

func WithEmissionFactor(f carbon.Factor) OptionFn {
	return func(o *Opts) { o.emissionFactor = f }
}

func WithReaders(e *energy.Reader, h *procstat.HostReader, p *procstat.ProcessReader) OptionFn {
	return func(o *Opts) {
		o.energyReader = e
		o.hostReader = h
		o.processReader = p
	}
}

// WithProbe records the Probe result that selected the energy
// reader's mode, surfaced in Report.Meta when meta is requested.
func WithProbe(p energy.ProbeResult) OptionFn {
	return func(o *Opts) { o.probe = p }
}

func WithWindowSize(n int) OptionFn {
	return func(o *Opts) { o.windowSize = n }
}

func WithStreaming(enabled bool) OptionFn {
	return func(o *Opts) { o.streaming = enabled }
}

func WithMeta(enabled bool) OptionFn {
	return func(o *Opts) { o.includeMeta = enabled }
}
