// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package energy

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
)

const (
	minClampedDtS = 0.2
	maxClampedDtS = 5.0
)

// HostUtilizationSampler is the subset of the host CPU reader the
// fallback power model needs: a primed/unprimed utilization ratio for
// the same clamped interval the energy reader would otherwise measure
// directly from hardware. internal/procstat.HostReader satisfies this.
type HostUtilizationSampler interface {
	Sample(nowNs int64) HostUtilizationSample
}

// HostUtilizationSample carries exactly what the fallback model needs
// from a host CPU sample, decoupled from procstat's richer tick types
// to avoid a reader depending on more than it uses.
type HostUtilizationSample struct {
	Primed      bool
	ClampedDtS  float64
	Utilization float64
}

// mode selects which sampling strategy a Reader uses.
type mode int

const (
	modeNotReady mode = iota
	modeHardware
	modeFallback
)

type pkgState struct {
	info   PackageInfo
	lastUj *Microjoules
}

// Reader produces per-tick host CPU energy deltas, in hardware mode
// from RAPL/powercap counters or, lacking those, from the empirical
// fallback model. Sample is not safe for concurrent/re-entrant use on
// the same Reader, per §4.2.
type Reader struct {
	mode   mode
	logger *slog.Logger

	// hardware mode
	packages  []*pkgState
	lastNs    int64
	primedAny bool

	// fallback mode
	pIdleW, pMaxW float64
	host          HostUtilizationSampler
}

// NewReader selects hardware or fallback mode per §4.2: hardware when
// the probe succeeded, fallback when the empirical config is
// sufficient and a host utilization sampler is available, otherwise
// not_ready.
func NewReader(probe ProbeResult, empirical *EmpiricalConfig, host HostUtilizationSampler, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "energy")

	if probe.Status == ProbeOK {
		states := make([]*pkgState, 0, len(probe.Packages))
		for _, p := range probe.Packages {
			if !p.Readable {
				continue
			}
			states = append(states, &pkgState{info: p})
		}
		if len(states) > 0 {
			return &Reader{mode: modeHardware, logger: logger, packages: states}
		}
	}

	if pIdle, pMax, ok := resolveEmpirical(empirical); ok && host != nil {
		return &Reader{mode: modeFallback, logger: logger, pIdleW: pIdle, pMaxW: pMax, host: host}
	}

	return &Reader{mode: modeNotReady, logger: logger}
}

// Ready reports whether Sample can be called; false means the
// controller must reject the audit before starting (§4.7).
func (r *Reader) Ready() bool {
	return r.mode != modeNotReady
}

// UsesHostFallback reports whether this reader derives its energy
// delta from the host CPU reader's utilisation sample rather than
// from hardware counters directly. The controller must sample the
// host reader before this reader's Sample in any tick where this is
// true, since fallback mode reads the host reader's cached result
// instead of re-entering it.
func (r *Reader) UsesHostFallback() bool {
	return r.mode == modeFallback
}

// Sample produces the next energy delta. nowNs is the monotone
// timestamp shared by every reader in this tick.
func (r *Reader) Sample(nowNs int64) (Sample, error) {
	switch r.mode {
	case modeHardware:
		return r.sampleHardware(nowNs), nil
	case modeFallback:
		return r.sampleFallback(nowNs), nil
	default:
		return Sample{}, auditerr.NewConfigError(auditerr.KindEnergySourceUnavail,
			"neither RAPL hardware counters nor a sufficient empirical model are available")
	}
}

func clampDtSeconds(nowNs, lastNs int64) float64 {
	diff := nowNs - lastNs
	if diff <= 0 {
		return minClampedDtS
	}
	dt := float64(diff) / 1e9
	if dt < minClampedDtS {
		return minClampedDtS
	}
	if dt > maxClampedDtS {
		return maxClampedDtS
	}
	return dt
}

func (r *Reader) sampleHardware(nowNs int64) Sample {
	if !r.primedAny && r.lastNs == 0 {
		return r.primeHardware(nowNs)
	}

	dtS := clampDtSeconds(nowNs, r.lastNs)
	r.lastNs = nowNs

	var totalDelta Microjoules
	var totalWraps int
	anyOK := false
	anyHadPrior := false
	samples := make([]PackageSample, 0, len(r.packages))

	for _, ps := range r.packages {
		val, err := readEnergyUj(ps.info)
		if err != nil {
			samples = append(samples, PackageSample{Node: ps.info.Name, OK: false})
			continue
		}
		anyOK = true

		if ps.lastUj == nil {
			v := val
			ps.lastUj = &v
			samples = append(samples, PackageSample{Node: ps.info.Name, OK: true})
			continue
		}

		anyHadPrior = true
		prior := *ps.lastUj
		delta, wrapped := deltaWithWrap(val, prior, ps.info.MaxMicrojoules)
		totalDelta += delta
		if wrapped {
			totalWraps++
		}

		v := val
		ps.lastUj = &v
		samples = append(samples, PackageSample{Node: ps.info.Name, Delta: delta, Wraps: boolToInt(wrapped), OK: true})
	}

	return Sample{
		OK:         anyOK,
		Primed:     anyHadPrior,
		ClampedDtS: dtS,
		DeltaUj:    totalDelta,
		DeltaJ:     totalDelta.Joules(),
		Wraps:      totalWraps,
		Packages:   samples,
	}
}

func (r *Reader) primeHardware(nowNs int64) Sample {
	r.primedAny = true
	r.lastNs = nowNs

	anyOK := false
	samples := make([]PackageSample, 0, len(r.packages))
	for _, ps := range r.packages {
		val, err := readEnergyUj(ps.info)
		ok := err == nil
		if ok {
			anyOK = true
			v := val
			ps.lastUj = &v
		}
		samples = append(samples, PackageSample{Node: ps.info.Name, OK: ok})
	}

	return Sample{OK: anyOK, Primed: false, Packages: samples}
}

// deltaWithWrap computes a package's energy delta, treating a
// negative raw delta as a counter wrap when the wrap limit is known,
// and clamping to zero otherwise (§8 boundary behaviours).
func deltaWithWrap(current, previous Microjoules, wrapLimit *Microjoules) (Microjoules, bool) {
	if current >= previous {
		return current - previous, false
	}
	if wrapLimit == nil {
		return 0, false
	}
	return (*wrapLimit - previous) + current, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func readEnergyUj(info PackageInfo) (Microjoules, error) {
	path := info.RealPath
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", auditerr.KindInvalidFileContent, err)
	}
	return Microjoules(v), nil
}
