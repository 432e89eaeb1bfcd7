// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package procstat reads host-wide and per-process CPU tick counters
// from procfs, producing the tick deltas the audit accumulator
// attributes energy against. Grounded on
// github.com/prometheus/procfs and the wrapper style of
// internal/resource/procfs_reader.go.
package procstat

// Ticks holds the three wide-integer deltas an accumulator needs from
// a host CPU sample: active, idle and their sum.
type Ticks struct {
	DeltaActive uint64
	DeltaIdle   uint64
	DeltaTotal  uint64
}

// HostSample is the host CPU reader's per-tick output, matching the
// Reader → Accumulator contract in the external interfaces reference.
type HostSample struct {
	OK          bool
	Primed      bool
	ClampedDtS  float64
	Ticks       Ticks
	Utilization float64
}

// ProcessSample is the process CPU reader's per-tick output.
type ProcessSample struct {
	OK          bool
	Primed      bool
	PID         int
	DeltaActive uint64
	Error       string
}
