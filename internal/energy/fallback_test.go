// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package energy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHostSampler struct {
	sample HostUtilizationSample
}

func (f fakeHostSampler) Sample(nowNs int64) HostUtilizationSample {
	return f.sample
}

func TestResolveEmpirical_DirectWatts(t *testing.T) {
	pIdle, pMax, ok := resolveEmpirical(&EmpiricalConfig{PIdleW: 8, PMaxW: 65})

	require.True(t, ok)
	assert.Equal(t, 8.0, pIdle)
	assert.Equal(t, 65.0, pMax)
}

func TestResolveEmpirical_TDPDerivedWithDefaults(t *testing.T) {
	pIdle, pMax, ok := resolveEmpirical(&EmpiricalConfig{TDPW: 100})

	require.True(t, ok)
	assert.InDelta(t, 7.0, pIdle, 1e-9)
	assert.InDelta(t, 55.0, pMax, 1e-9)
}

func TestResolveEmpirical_TDPDerivedWithCustomFractions(t *testing.T) {
	pIdle, pMax, ok := resolveEmpirical(&EmpiricalConfig{TDPW: 100, IdleFraction: 0.1, MaxFraction: 0.9})

	require.True(t, ok)
	assert.InDelta(t, 10.0, pIdle, 1e-9)
	assert.InDelta(t, 90.0, pMax, 1e-9)
}

func TestResolveEmpirical_Insufficient(t *testing.T) {
	_, _, ok := resolveEmpirical(nil)
	assert.False(t, ok)

	_, _, ok = resolveEmpirical(&EmpiricalConfig{})
	assert.False(t, ok)

	_, _, ok = resolveEmpirical(&EmpiricalConfig{PIdleW: 65, PMaxW: 8})
	assert.False(t, ok)
}

func TestSampleFallback_NotPrimed(t *testing.T) {
	probe := ProbeResult{Status: ProbeDegraded}
	host := fakeHostSampler{sample: HostUtilizationSample{Primed: false, ClampedDtS: 1.0}}

	r := NewReader(probe, &EmpiricalConfig{PIdleW: 8, PMaxW: 65}, host, nil)
	require.True(t, r.Ready())

	sample, err := r.Sample(0)
	require.NoError(t, err)
	assert.False(t, sample.Primed)
	assert.Equal(t, Microjoules(0), sample.DeltaUj)
}

func TestSampleFallback_Empirical(t *testing.T) {
	probe := ProbeResult{Status: ProbeDegraded}
	host := fakeHostSampler{sample: HostUtilizationSample{Primed: true, ClampedDtS: 1.0, Utilization: 0.5}}

	r := NewReader(probe, &EmpiricalConfig{PIdleW: 8, PMaxW: 65}, host, nil)
	require.True(t, r.Ready())

	sample, err := r.Sample(secondNs)
	require.NoError(t, err)

	assert.True(t, sample.Primed)
	assert.InDelta(t, 36.5, sample.DeltaJ, 1e-9)
	assert.Equal(t, 0, sample.Wraps)
	assert.Empty(t, sample.Packages)
}

func TestSampleFallback_UtilizationClamped(t *testing.T) {
	probe := ProbeResult{Status: ProbeDegraded}
	host := fakeHostSampler{sample: HostUtilizationSample{Primed: true, ClampedDtS: 1.0, Utilization: 1.4}}

	r := NewReader(probe, &EmpiricalConfig{PIdleW: 8, PMaxW: 65}, host, nil)
	sample, err := r.Sample(secondNs)
	require.NoError(t, err)

	assert.InDelta(t, 65.0, sample.DeltaJ, 1e-9)
}
