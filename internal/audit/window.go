// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "github.com/ecoaudit/cpuaudit/internal/carbon"

// DefaultWindowSize is the sliding window's default sample capacity W.
const DefaultWindowSize = 10

// windowSample is one entry of the ring buffer (§4.6 streaming mode).
type windowSample struct {
	hostEnergyJ        float64
	hostActiveTicks    uint64
	processActiveTicks uint64
}

// Window is the bounded ring-buffer streaming accumulation mode: each
// push recomputes the attribution over the current buffer contents
// rather than over the whole audit.
type Window struct {
	capacity int
	buf      []windowSample

	emissionFactor carbon.Factor
}

// NewWindow constructs a sliding window of the given capacity (≤ 0
// defaults to DefaultWindowSize).
func NewWindow(capacity int, factor carbon.Factor) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity, emissionFactor: factor}
}

// WindowResult is a sliding-window push's outcome.
type WindowResult struct {
	Attribution
	Reason  string
	Samples int
}

// Push folds one tick's samples into the ring buffer and returns the
// attribution recomputed over its current contents. The buffer
// mutates only when the resulting host-active-ticks sum would be
// positive; a push that would leave the window's activity sum at
// zero is rejected as no_host_cpu_activity without being recorded,
// per this repository's decision on spec.md §9's open question 3.
func (w *Window) Push(s Sample) WindowResult {
	entry := windowSample{}
	if s.Energy.OK && s.Energy.Primed && s.Energy.DeltaJ > 0 {
		entry.hostEnergyJ = s.Energy.DeltaJ
	}
	if s.Host.OK && s.Host.Primed && s.Host.Ticks.DeltaActive > 0 {
		entry.hostActiveTicks = s.Host.Ticks.DeltaActive
	}
	if s.Process.OK && s.Process.Primed && s.Process.DeltaActive > 0 {
		entry.processActiveTicks = s.Process.DeltaActive
	}

	currentActive := w.sumActiveTicks()
	if currentActive+entry.hostActiveTicks == 0 {
		return WindowResult{Reason: "no_host_cpu_activity", Samples: len(w.buf)}
	}

	prev := w.buf
	w.buf = append(w.buf, entry)
	if len(w.buf) > w.capacity {
		w.buf = w.buf[len(w.buf)-w.capacity:]
	}

	var sumEnergyJ float64
	var sumHostTicks, sumProcessTicks uint64
	for _, e := range w.buf {
		sumEnergyJ += e.hostEnergyJ
		sumHostTicks += e.hostActiveTicks
		sumProcessTicks += e.processActiveTicks
	}
	if sumHostTicks == 0 {
		// eviction left no host activity in the window: undo the push
		w.buf = prev
		return WindowResult{Reason: "no_host_cpu_activity", Samples: len(w.buf)}
	}

	share := 0.0
	if sumHostTicks > 0 {
		share = clamp01(float64(sumProcessTicks) / float64(sumHostTicks))
	}
	processEnergyJ := sumEnergyJ * share

	return WindowResult{
		Attribution: Attribution{
			OK:             true,
			HostEnergyJ:    sumEnergyJ,
			ProcessEnergyJ: processEnergyJ,
			Share:          share,
			IsActive:       sumProcessTicks > 0,
			HostCarbonG:    w.emissionFactor.Grams(sumEnergyJ),
			ProcessCarbonG: w.emissionFactor.Grams(processEnergyJ),
		},
		Samples: len(w.buf),
	}
}

func (w *Window) sumActiveTicks() uint64 {
	var total uint64
	for _, e := range w.buf {
		total += e.hostActiveTicks
	}
	return total
}
