// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"github.com/ecoaudit/cpuaudit/internal/auditerr"
	"github.com/ecoaudit/cpuaudit/internal/carbon"
)

// Attribution is the ticks-ratio share computation shared by batch
// and sliding-window accumulation (§4.6).
type Attribution struct {
	OK              bool
	DurationSeconds float64
	HostEnergyJ     float64
	ProcessEnergyJ  float64
	Share           float64
	IsActive        bool
	HostCarbonG     float64
	ProcessCarbonG  float64
}

// Accumulator is the batch (whole-audit) accumulation mode: three
// running sums, finalised exactly once at audit end.
type Accumulator struct {
	startNs int64
	endNs   int64
	ended   bool

	sumHostEnergyJ        float64
	sumHostActiveTicks    uint64
	sumProcessActiveTicks uint64

	emissionFactor carbon.Factor
}

// NewAccumulator starts a batch accumulator anchored at startNs (the
// controller's monotone entry timestamp).
func NewAccumulator(startNs int64, factor carbon.Factor) *Accumulator {
	return &Accumulator{startNs: startNs, emissionFactor: factor}
}

// Push folds one tick's reader samples into the running sums, per
// §4.6's strictly-positive/primed guards.
func (a *Accumulator) Push(s Sample) {
	if s.Energy.OK && s.Energy.Primed && s.Energy.DeltaJ > 0 {
		a.sumHostEnergyJ += s.Energy.DeltaJ
	}
	if s.Host.OK && s.Host.Primed && s.Host.Ticks.DeltaActive > 0 {
		a.sumHostActiveTicks += s.Host.Ticks.DeltaActive
	}
	if s.Process.OK && s.Process.Primed && s.Process.DeltaActive > 0 {
		a.sumProcessActiveTicks += s.Process.DeltaActive
	}
}

// Finalize closes the accumulator at endNs and returns the final
// attribution. A second call fails with already_finalised (§5
// "at-most-once finalisation").
func (a *Accumulator) Finalize(endNs int64) (Attribution, error) {
	if a.ended {
		return Attribution{}, auditerr.NewConfigError(auditerr.KindAlreadyFinalised, "accumulator already finalised")
	}
	a.ended = true
	a.endNs = endNs

	durationSeconds := float64(a.endNs-a.startNs) / 1e9

	share := 0.0
	if a.sumHostActiveTicks > 0 {
		share = float64(a.sumProcessActiveTicks) / float64(a.sumHostActiveTicks)
	}
	share = clamp01(share)

	processEnergyJ := a.sumHostEnergyJ * share
	isActive := a.sumProcessActiveTicks > 0

	return Attribution{
		OK:              true,
		DurationSeconds: durationSeconds,
		HostEnergyJ:     a.sumHostEnergyJ,
		ProcessEnergyJ:  processEnergyJ,
		Share:           share,
		IsActive:        isActive,
		HostCarbonG:     a.emissionFactor.Grams(a.sumHostEnergyJ),
		ProcessCarbonG:  a.emissionFactor.Grams(processEnergyJ),
	}, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
