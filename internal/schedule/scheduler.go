// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
)

// Scheduler produces a lazy sequence of Tick events pacing an audit
// at a configured period, anchored to a fixed start time.
type Scheduler struct {
	period time.Duration
	policy Policy
	clock  clock.WithTicker
	logger *slog.Logger

	t0 time.Time
}

// New validates period and constructs a Scheduler. period must be
// finite and strictly positive; clk defaults to the real clock.
func New(period time.Duration, policy Policy, clk clock.WithTicker, logger *slog.Logger) (*Scheduler, error) {
	if period <= 0 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidPeriod,
			fmt.Sprintf("period must be strictly positive, got %s", period))
	}
	if policy == "" {
		policy = PolicyCoalesce
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		period: period,
		policy: policy,
		clock:  clk,
		logger: logger.With("component", "schedule"),
	}, nil
}

// Run starts the schedule anchored to the clock's current time and
// returns a channel of Tick events. The channel is closed when ctx is
// cancelled; cancellation during a sleep terminates the sequence
// without yielding a further tick.
func (s *Scheduler) Run(ctx context.Context) <-chan Tick {
	s.t0 = s.clock.Now()
	out := make(chan Tick)

	go func() {
		defer close(out)

		var (
			tickID        int64
			scheduleIndex int64
			prevStart     time.Time
		)

		for {
			deadline := s.t0.Add(time.Duration(scheduleIndex) * s.period)

			if wait := s.clock.Since(deadline); wait < 0 {
				timer := s.clock.NewTimer(-wait)
				select {
				case <-timer.C():
				case <-ctx.Done():
					timer.Stop()
					return
				}
			} else {
				select {
				case <-ctx.Done():
					return
				default:
				}
			}

			start := s.clock.Now()

			var dtNs int64
			if tickID > 0 {
				dtNs = start.Sub(prevStart).Nanoseconds()
			}

			actualIndex := s.coalescedIndex(scheduleIndex, start)
			skipped := actualIndex - scheduleIndex
			actualDeadline := s.t0.Add(time.Duration(actualIndex) * s.period)

			latenessNs := start.Sub(actualDeadline).Nanoseconds()
			if latenessNs < 0 {
				latenessNs = 0
			}

			tick := Tick{
				TickID:         tickID,
				ScheduleIndex:  actualIndex,
				PeriodNs:       s.period.Nanoseconds(),
				T0Ns:           s.t0.UnixNano(),
				DeadlineNs:     actualDeadline.UnixNano(),
				StartNs:        start.UnixNano(),
				DtNs:           dtNs,
				LatenessNs:     latenessNs,
				SkippedPeriods: skipped,
			}

			select {
			case out <- tick:
			case <-ctx.Done():
				return
			}

			prevStart = start
			scheduleIndex = actualIndex + 1
			tickID++
		}
	}()

	return out
}

// coalescedIndex decides which grid slot the just-woken tick actually
// services. PolicyBurst never jumps: it services scheduleIndex exactly,
// so a long tick body is followed by back-to-back catch-up ticks.
// PolicyCoalesce jumps straight to the latest slot at or before start,
// dropping any slots in between, so the firing tick's own
// schedule_index/skipped_periods reflect what it is servicing now
// rather than deferring the jump to the following tick.
func (s *Scheduler) coalescedIndex(scheduleIndex int64, start time.Time) int64 {
	if s.policy == PolicyBurst {
		return scheduleIndex
	}

	elapsed := start.Sub(s.t0)
	gridIndex := int64(elapsed / s.period)
	if gridIndex > scheduleIndex {
		return gridIndex
	}
	return scheduleIndex
}
