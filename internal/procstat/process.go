// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package procstat

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/procfs"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
)

// ProcessReader samples a single target process's CPU ticks from
// /proc/<pid>/stat, detecting restarts of a reused process id via the
// kernel's starttime field (§4.4). Comm/utime/stime/starttime parsing
// is delegated to procfs.Proc.Stat, which already splits the stat
// line on the last ')' the kernel can emit for a comm containing
// whitespace or parentheses.
//
// Not re-entrant on a single instance; callers must serialize Sample.
type ProcessReader struct {
	fs     procfs.FS
	pid    int
	logger *slog.Logger

	primed         bool
	lastAppTicks   uint64
	lastStartTicks uint64
}

// NewProcessReader validates pid and opens a reader for it under
// procPath (a procfs mountpoint; default "/proc"). Construction fails
// with invalid_pid for a non-positive pid, and with the
// auditerr.MapFSError Kind of the lookup error (file_not_found for a
// missing process) if the process cannot be looked up; the spec's "explicit stat-file path"
// embedded-PID check is satisfied by resolving the process through
// procfs itself rather than a caller-supplied path, so the two can
// never disagree here.
func NewProcessReader(procPath string, pid int, logger *slog.Logger) (*ProcessReader, error) {
	if pid <= 0 {
		return nil, auditerr.NewConfigError(auditerr.KindInvalidPID, fmt.Sprintf("pid must be positive, got %d", pid))
	}

	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, err
	}

	if _, err := fs.Proc(pid); err != nil {
		kind := auditerr.MapFSError(err)
		if kind == auditerr.KindUnknown {
			kind = auditerr.KindInvalidPID
		}
		return nil, auditerr.NewConfigError(kind, fmt.Sprintf("pid %d: %v", pid, err))
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessReader{fs: fs, pid: pid, logger: logger.With("component", "procstat.process", "pid", pid)}, nil
}

// Sample reads the process's current CPU ticks and reports the delta
// since the previous call, per §4.4.
func (r *ProcessReader) Sample() ProcessSample {
	proc, err := r.fs.Proc(r.pid)
	if err != nil {
		return r.fail(err)
	}

	stat, err := proc.Stat()
	if err != nil {
		return r.fail(err)
	}

	currentAppTicks := uint64(stat.UTime) + uint64(stat.STime)
	currentStart := stat.Starttime

	if !r.primed {
		r.primed = true
		r.lastAppTicks = currentAppTicks
		r.lastStartTicks = currentStart
		return ProcessSample{OK: true, Primed: false, PID: r.pid}
	}

	if currentStart != r.lastStartTicks {
		r.logger.Info("process restart detected", "prev_starttime", r.lastStartTicks, "starttime", currentStart)
		r.lastAppTicks = currentAppTicks
		r.lastStartTicks = currentStart
		return ProcessSample{OK: true, Primed: false, PID: r.pid}
	}

	var delta uint64
	if currentAppTicks > r.lastAppTicks {
		delta = currentAppTicks - r.lastAppTicks
	}
	r.lastAppTicks = currentAppTicks

	return ProcessSample{OK: true, Primed: true, PID: r.pid, DeltaActive: delta}
}

func (r *ProcessReader) fail(err error) ProcessSample {
	kind := auditerr.MapFSError(err)
	r.logger.Warn("failed to read process stat", "kind", kind)
	return ProcessSample{OK: false, PID: r.pid, Error: string(kind)}
}
