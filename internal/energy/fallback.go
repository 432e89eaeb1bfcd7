// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package energy

// EmpiricalConfig parameterizes the fallback power model used when no
// hardware energy counters are available. Grounded on the
// idle/max-power linear interpolation in
// other_examples/ja7ad-consumption (PIdle/PMax, utilization-scaled
// dynamic power), adapted to the single-target-process share model of
// this audit rather than consumption's richer disk/RAM terms.
type EmpiricalConfig struct {
	PIdleW float64 // watts at 0% utilization
	PMaxW  float64 // watts at 100% utilization

	TDPW         float64 // thermal design power, alternative to PIdleW/PMaxW
	IdleFraction float64 // fraction of TDP at idle; default 0.07
	MaxFraction  float64 // fraction of TDP at full load; default 0.55
}

// Canonical defaults per spec.md §9, open question 2: the later
// 0.07/0.55 pair, not the stale 0.20/1.00 pair from the earlier
// prototype.
const (
	DefaultIdleFraction = 0.07
	DefaultMaxFraction  = 0.55
)

// resolveEmpirical reports whether cfg is sufficient to drive the
// fallback model and, if so, the resolved idle/max power in watts,
// per §4.2.
func resolveEmpirical(cfg *EmpiricalConfig) (pIdleW, pMaxW float64, ok bool) {
	if cfg == nil {
		return 0, 0, false
	}

	if cfg.PIdleW > 0 && cfg.PMaxW >= cfg.PIdleW {
		return cfg.PIdleW, cfg.PMaxW, true
	}

	if cfg.TDPW > 0 {
		idleFraction := cfg.IdleFraction
		if idleFraction <= 0 {
			idleFraction = DefaultIdleFraction
		}
		maxFraction := cfg.MaxFraction
		if maxFraction <= 0 {
			maxFraction = DefaultMaxFraction
		}
		return cfg.TDPW * idleFraction, cfg.TDPW * maxFraction, true
	}

	return 0, 0, false
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

// sampleFallback implements §4.2's fallback-mode sampling: an
// instantaneous power interpolated between idle and max by host CPU
// utilization, integrated over the clamped interval.
func (r *Reader) sampleFallback(nowNs int64) Sample {
	hostSample := r.host.Sample(nowNs)
	if !hostSample.Primed {
		return Sample{OK: true, Primed: false, ClampedDtS: hostSample.ClampedDtS}
	}

	u := clamp01(hostSample.Utilization)
	powerW := r.pIdleW + (r.pMaxW-r.pIdleW)*u
	deltaJ := powerW * hostSample.ClampedDtS

	return Sample{
		OK:         true,
		Primed:     true,
		ClampedDtS: hostSample.ClampedDtS,
		DeltaUj:    Microjoules(deltaJ * 1e6),
		DeltaJ:     deltaJ,
	}
}
