// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoaudit/cpuaudit/internal/energy"
	"github.com/ecoaudit/cpuaudit/internal/procstat"
)

func primedSample(hostEnergyJ float64, hostTicks, processTicks uint64) Sample {
	return Sample{
		Energy: energy.Sample{OK: true, Primed: true, DeltaJ: hostEnergyJ},
		Host: procstat.HostSample{
			OK: true, Primed: true,
			Ticks: procstat.Ticks{DeltaActive: hostTicks},
		},
		Process: procstat.ProcessSample{OK: true, Primed: true, DeltaActive: processTicks},
	}
}

func TestAccumulator_ConservationAndShare(t *testing.T) {
	acc := NewAccumulator(0, 475)

	acc.Push(primedSample(4.0, 100, 25))
	acc.Push(primedSample(4.0, 100, 25))

	attribution, err := acc.Finalize(2_000_000_000)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, attribution.DurationSeconds, 1e-9)
	assert.InDelta(t, 8.0, attribution.HostEnergyJ, 1e-9)
	assert.InDelta(t, 0.25, attribution.Share, 1e-9)
	assert.InDelta(t, 2.0, attribution.ProcessEnergyJ, 1e-9)
	assert.LessOrEqual(t, attribution.ProcessEnergyJ, attribution.HostEnergyJ)
	assert.True(t, attribution.IsActive)
}

func TestAccumulator_UnprimedTicksContributeNothing(t *testing.T) {
	acc := NewAccumulator(0, 475)

	acc.Push(Sample{
		Energy:  energy.Sample{OK: true, Primed: false, DeltaJ: 0},
		Host:    procstat.HostSample{OK: true, Primed: false},
		Process: procstat.ProcessSample{OK: true, Primed: false},
	})
	acc.Push(primedSample(1.0, 10, 10))

	attribution, err := acc.Finalize(1_000_000_000)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, attribution.HostEnergyJ, 1e-9)
	assert.InDelta(t, 1.0, attribution.Share, 1e-9)
}

func TestAccumulator_ZeroDenominatorYieldsZeroShare(t *testing.T) {
	acc := NewAccumulator(0, 475)
	attribution, err := acc.Finalize(1_000_000_000)
	require.NoError(t, err)

	assert.Equal(t, 0.0, attribution.Share)
	assert.False(t, attribution.IsActive)
}

func TestAccumulator_AtMostOnceFinalize(t *testing.T) {
	acc := NewAccumulator(0, 475)

	_, err := acc.Finalize(1_000_000_000)
	require.NoError(t, err)

	_, err = acc.Finalize(2_000_000_000)
	require.Error(t, err)
}

func TestAccumulator_CarbonConversion(t *testing.T) {
	acc := NewAccumulator(0, 475)
	acc.Push(primedSample(3_600_000, 1, 1))

	attribution, err := acc.Finalize(1_000_000_000)
	require.NoError(t, err)

	assert.InDelta(t, 475.0, attribution.HostCarbonG, 1e-6)
}
