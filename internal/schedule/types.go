// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package schedule paces an audit at a fixed period, producing tick
// events an audit controller fans out to its readers. Grounded on
// internal/monitor's clock.WithTicker-driven collection loop, adapted
// from an ad-hoc interval timer into a deadline-grid scheduler with
// overrun accounting.
package schedule

// Policy selects how the scheduler recovers from an overrun tick.
type Policy string

const (
	// PolicyBurst preserves the theoretical grid: after a long tick,
	// subsequent ticks fire back-to-back until caught up.
	PolicyBurst Policy = "burst"

	// PolicyCoalesce skips straight to the next future deadline after
	// an overrun, dropping missed grid slots. Default.
	PolicyCoalesce Policy = "coalesce"
)

// Tick describes one scheduler wake-up.
type Tick struct {
	TickID         int64 // 0-based, monotone, counts produced ticks
	ScheduleIndex  int64 // theoretical grid index; may skip ahead
	PeriodNs       int64
	T0Ns           int64
	DeadlineNs     int64 // t0_ns + schedule_index * period_ns
	StartNs        int64 // actual wake time
	DtNs           int64 // start_ns - prev_start_ns; 0 for the first tick
	LatenessNs     int64 // max(0, start_ns - deadline_ns)
	SkippedPeriods int64 // grid slots dropped since the last produced tick
}
