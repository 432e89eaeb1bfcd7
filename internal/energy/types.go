// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package energy reads the electrical energy consumed by the host CPU,
// either from the kernel's powercap/RAPL counters or, when those are
// unavailable, from an empirical utilization-based power model.
package energy

import "fmt"

// Microjoules is a wide-integer energy count, wide enough for a raw
// RAPL counter read without losing precision to a 53-bit float.
type Microjoules uint64

const microjoulesPerJoule = 1_000_000

// Joules converts to floating-point joules; only done at the boundary
// where the accumulator needs a float for attribution math.
func (m Microjoules) Joules() float64 {
	return float64(m) / microjoulesPerJoule
}

func (m Microjoules) String() string {
	return fmt.Sprintf("%dµJ", uint64(m))
}

// Vendor classifies a RAPL package by its sysfs directory name prefix.
type Vendor string

const (
	VendorIntel   Vendor = "intel"
	VendorAMD     Vendor = "amd"
	VendorUnknown Vendor = "unknown"
)

// PackageSample is the per-package breakdown of a single energy tick.
type PackageSample struct {
	Node  string // directory name, e.g. "intel-rapl:0"
	Delta Microjoules
	Wraps int
	OK    bool
}

// Sample is the energy reader's per-tick output, matching the
// Reader -> Accumulator contract of §6.
type Sample struct {
	OK         bool
	Primed     bool
	ClampedDtS float64
	DeltaUj    Microjoules
	DeltaJ     float64
	Wraps      int
	Packages   []PackageSample
}
