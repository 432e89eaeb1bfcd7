// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package procstat

import (
	"log/slog"

	"github.com/prometheus/procfs"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
	"github.com/ecoaudit/cpuaudit/internal/energy"
)

const (
	minClampedDtS = 0.2
	maxClampedDtS = 5.0

	// userHZ is the kernel clock tick rate procfs divides /proc/stat's
	// raw jiffies by when parsing CPUStat into seconds; hardcoded just
	// like internal/resource/procfs_reader.go's userHZ, since procfs
	// itself does not expose the divisor it used.
	userHZ = 100
)

// HostReader samples the kernel's aggregate CPU tick counters.
//
// Not re-entrant on a single instance; callers must serialize Sample.
type HostReader struct {
	fs     procfs.FS
	logger *slog.Logger

	lastNs   int64
	lastStat procfs.CPUStat
	everSeen bool

	last HostSample // most recent Sample result, for AsUtilizationSampler
}

// NewHostReader opens procPath (a procfs mountpoint; default "/proc")
// and returns a reader over its aggregate cpu stat line.
func NewHostReader(procPath string, logger *slog.Logger) (*HostReader, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HostReader{fs: fs, logger: logger.With("component", "procstat.host")}, nil
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

// Sample reads /proc/stat's aggregate line and computes the tick
// deltas and utilisation since the previous call, per §4.3. The
// aggregate snapshot comes from procfs's own "cpu" (exactly) line
// parsing; per-core lines are ignored for attribution.
func (r *HostReader) Sample(nowNs int64) HostSample {
	stat, err := r.fs.Stat()
	if err != nil {
		r.logger.Warn("failed to read host cpu stat", "kind", auditerr.MapFSError(err))
		r.last = HostSample{OK: false}
		return r.last
	}

	current := stat.CPUTotal

	if !r.everSeen {
		r.everSeen = true
		r.lastStat = current
		r.lastNs = nowNs
		r.last = HostSample{OK: true, Primed: false}
		return r.last
	}

	dtS := clampDtSeconds(nowNs, r.lastNs)
	r.lastNs = nowNs

	prev := r.lastStat
	r.lastStat = current

	deltaIdle := nonNegativeDelta(jiffies(prev.Idle+prev.Iowait), jiffies(current.Idle+current.Iowait))
	deltaTotal := nonNegativeDelta(cpuTotalSum(prev), cpuTotalSum(current))

	var deltaActive uint64
	if deltaTotal > deltaIdle {
		deltaActive = deltaTotal - deltaIdle
	}

	utilisation := 0.0
	if deltaTotal > 0 {
		utilisation = clamp01(float64(deltaActive) / float64(deltaTotal))
	}

	r.last = HostSample{
		OK:         true,
		Primed:     true,
		ClampedDtS: dtS,
		Ticks: Ticks{
			DeltaActive: deltaActive,
			DeltaIdle:   deltaIdle,
			DeltaTotal:  deltaTotal,
		},
		Utilization: utilisation,
	}
	return r.last
}

// utilizationSampler adapts a HostReader's most recent Sample result
// to energy.HostUtilizationSampler, so the energy reader's fallback
// mode can reuse the host reader without re-entering Sample (procfs
// reads are not re-entrant within a single tick). The controller must
// call HostReader.Sample before the energy reader's Sample in any
// tick that uses fallback mode.
type utilizationSampler struct {
	r *HostReader
}

func (u utilizationSampler) Sample(int64) energy.HostUtilizationSample {
	s := u.r.last
	return energy.HostUtilizationSample{Primed: s.Primed, ClampedDtS: s.ClampedDtS, Utilization: s.Utilization}
}

// AsUtilizationSampler exposes r for energy.NewReader's fallback-mode
// constructor argument.
func (r *HostReader) AsUtilizationSampler() energy.HostUtilizationSampler {
	return utilizationSampler{r: r}
}

// cpuTotalSum mirrors §4.3's eight-counter sum used for grand_total,
// expressed back in jiffies (see jiffies).
func cpuTotalSum(s procfs.CPUStat) float64 {
	return jiffies(s.User + s.Nice + s.System + s.Idle + s.Iowait + s.IRQ + s.SoftIRQ + s.Steal)
}

// jiffies recovers raw kernel clock ticks from one of procfs.CPUStat's
// fields, which prometheus/procfs already divides by userHZ into
// fractional seconds. Host deltas must stay in the same jiffies unit
// as the process reader's raw stat.UTime/stat.STime sum (process.go),
// or the ticks-ratio share in accumulator.go is off by ~userHZ.
func jiffies(seconds float64) float64 {
	return seconds * userHZ
}

// nonNegativeDelta implements the "counter regression yields zero,
// never negative" rule for host tick deltas. prev/current are in
// jiffies; the float64 representation can carry sub-integer rounding
// noise from the multiply-back in jiffies, which the uint64 cast below
// truncates away.
func nonNegativeDelta(prev, current float64) uint64 {
	if current <= prev {
		return 0
	}
	return uint64(current - prev)
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
