// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package energy

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ecoaudit/cpuaudit/internal/auditerr"
)

// DefaultPowercapRoot is the kernel's powercap sysfs hierarchy.
const DefaultPowercapRoot = "/sys/class/powercap"

// ProbeStatus summarizes whether the host exposes usable RAPL energy
// counters.
type ProbeStatus string

const (
	ProbeOK       ProbeStatus = "OK"
	ProbeDegraded ProbeStatus = "DEGRADED"
	ProbeFailed   ProbeStatus = "FAILED"
)

// PackageInfo describes one detected CPU-package energy domain.
type PackageInfo struct {
	Name           string // directory name, e.g. "intel-rapl:0"
	NominalPath    string // path to energy_uj as discovered
	RealPath       string // symlink-resolved path, falls back to NominalPath
	Vendor         Vendor
	Readable       bool
	MaxMicrojoules *Microjoules // nil when max_energy_uj is absent or invalid
}

// ProbeResult is the outcome of a single, never-failing probe run.
type ProbeResult struct {
	Status   ProbeStatus
	Packages []PackageInfo
	Hint     string // diagnostic, populated when Status != OK
}

// Probe discovers every CPU-package energy domain exposed under root.
// It never returns an error: every filesystem failure is reflected in
// the returned ProbeResult, per §4.1.
func Probe(root string) ProbeResult {
	entries, err := os.ReadDir(root)
	if err != nil {
		return ProbeResult{
			Status: ProbeFailed,
			Hint:   "cannot read powercap root " + root + ": " + string(auditerr.MapFSError(err)),
		}
	}

	var packages []PackageInfo
	for _, entry := range entries {
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		nameBytes, err := os.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		name := strings.TrimSpace(string(nameBytes))
		if !strings.Contains(name, "package-") {
			continue
		}

		packages = append(packages, inspectPackage(entry.Name(), dir))
	}

	if len(packages) == 0 {
		return ProbeResult{
			Status: ProbeFailed,
			Hint:   "no package-* RAPL domains found under " + root,
		}
	}

	readable := 0
	for _, p := range packages {
		if p.Readable {
			readable++
		}
	}

	if readable == 0 {
		return ProbeResult{
			Status:   ProbeDegraded,
			Packages: packages,
			Hint:     "found RAPL packages but energy_uj is not readable; check permissions on " + root,
		}
	}

	return ProbeResult{Status: ProbeOK, Packages: packages}
}

func inspectPackage(dirName, dir string) PackageInfo {
	energyPath := filepath.Join(dir, "energy_uj")

	f, err := os.Open(energyPath)
	readable := err == nil
	if f != nil {
		f.Close()
	}

	realPath := energyPath
	if resolved, err := filepath.EvalSymlinks(energyPath); err == nil {
		realPath = resolved
	}

	var maxUj *Microjoules
	if raw, err := os.ReadFile(filepath.Join(dir, "max_energy_uj")); err == nil {
		if v, err := strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64); err == nil {
			mj := Microjoules(v)
			maxUj = &mj
		}
	}

	return PackageInfo{
		Name:           dirName,
		NominalPath:    energyPath,
		RealPath:       realPath,
		Vendor:         classifyVendor(dirName),
		Readable:       readable,
		MaxMicrojoules: maxUj,
	}
}

func classifyVendor(dirName string) Vendor {
	switch {
	case strings.HasPrefix(dirName, "intel-rapl"):
		return VendorIntel
	case strings.HasPrefix(dirName, "amd-rapl"):
		return VendorAMD
	default:
		return VendorUnknown
	}
}
