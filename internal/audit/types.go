// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit accumulates per-tick host energy and CPU-tick samples
// into a ticks-ratio attribution of one target process's share of
// host CPU energy, and orchestrates the scheduler/reader fan-out that
// produces those samples. Generalizes internal/monitor.PowerMonitor's
// refresh/attribution loop (monitor.go, process.go) from a
// many-zones-by-many-processes cross-product down to a single target
// PID's share of a single audit window.
package audit

import (
	"time"

	"github.com/ecoaudit/cpuaudit/internal/energy"
	"github.com/ecoaudit/cpuaudit/internal/procstat"
)

// Sample is the per-tick input to the accumulator, drawn from one
// reader fan-out round.
type Sample struct {
	Energy  energy.Sample
	Host    procstat.HostSample
	Process procstat.ProcessSample
}

// EndReason explains why the controller's loop stopped.
type EndReason string

const (
	EndReasonDuration EndReason = "duration"
	EndReasonAborted  EndReason = "aborted"
)

// Meta carries optional diagnostic counters, populated only when the
// caller requests it (§4.7 "include meta block only when requested").
type Meta struct {
	HostPrimedSamples    int64
	ProcessPrimedSamples int64
	ProcessOKSamples     int64
	ProcessErrorSamples  int64
	FirstProcessError    string
	SkippedPeriodsTotal  int64
	EndReason            EndReason
	Probe                energy.ProbeResult
	Note                 string
}

// Report is the controller's final, by-value result (§3 "Final
// report").
type Report struct {
	AuditID               string
	PID                   int
	DurationSeconds       float64
	HostCPUEnergyJ        float64
	ProcessCPUEnergyJ     float64
	ProcessCPUEnergyShare float64
	HostCarbonGCO2e       float64
	ProcessCarbonGCO2e    float64
	IsActive              bool
	StartedAt             time.Time
	EndedAt               time.Time
	Meta                  *Meta
}
