// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package energy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFakePackage creates a RAPL-like package directory under root
// with the given name, "package-*" name content, energy_uj and
// max_energy_uj files.
func writeFakePackage(t *testing.T, root, dir, nameContent string, readableEnergy bool, maxUj string) {
	t.Helper()
	pkgDir := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(pkgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "name"), []byte(nameContent+"\n"), 0o644))

	energyPath := filepath.Join(pkgDir, "energy_uj")
	require.NoError(t, os.WriteFile(energyPath, []byte("1000\n"), 0o644))
	if !readableEnergy {
		require.NoError(t, os.Chmod(energyPath, 0o000))
	}

	if maxUj != "" {
		require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "max_energy_uj"), []byte(maxUj+"\n"), 0o644))
	}
}

func TestProbe_OK(t *testing.T) {
	root := t.TempDir()
	writeFakePackage(t, root, "intel-rapl:0", "package-0", true, "262143328850")
	writeFakePackage(t, root, "intel-rapl:1", "package-1", true, "262143328850")

	result := Probe(root)

	assert.Equal(t, ProbeOK, result.Status)
	require.Len(t, result.Packages, 2)
	assert.Equal(t, VendorIntel, result.Packages[0].Vendor)
	assert.True(t, result.Packages[0].Readable)
	require.NotNil(t, result.Packages[0].MaxMicrojoules)
	assert.Equal(t, Microjoules(262143328850), *result.Packages[0].MaxMicrojoules)
}

func TestProbe_Degraded(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores file permission bits, cannot exercise unreadable fixtures")
	}

	root := t.TempDir()
	writeFakePackage(t, root, "intel-rapl:0", "package-0", false, "")

	result := Probe(root)

	assert.Equal(t, ProbeDegraded, result.Status)
	assert.NotEmpty(t, result.Hint)
	require.Len(t, result.Packages, 1)
	assert.False(t, result.Packages[0].Readable)
}

func TestProbe_FailedNoPackages(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "unrelated"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated", "name"), []byte("not-a-package\n"), 0o644))

	result := Probe(root)

	assert.Equal(t, ProbeFailed, result.Status)
	assert.NotEmpty(t, result.Hint)
}

func TestProbe_FailedUnreadableRoot(t *testing.T) {
	result := Probe(filepath.Join(t.TempDir(), "does-not-exist"))

	assert.Equal(t, ProbeFailed, result.Status)
}

func TestProbe_VendorClassification(t *testing.T) {
	root := t.TempDir()
	writeFakePackage(t, root, "intel-rapl:0", "package-0", true, "")
	writeFakePackage(t, root, "amd-rapl:0", "package-0", true, "")
	writeFakePackage(t, root, "weird-vendor:0", "package-0", true, "")

	result := Probe(root)

	vendors := map[Vendor]bool{}
	for _, p := range result.Packages {
		vendors[p.Vendor] = true
	}
	assert.True(t, vendors[VendorIntel])
	assert.True(t, vendors[VendorAMD])
	assert.True(t, vendors[VendorUnknown])
}

func TestProbe_IsPure(t *testing.T) {
	root := t.TempDir()
	writeFakePackage(t, root, "intel-rapl:0", "package-0", true, "1000")

	first := Probe(root)
	second := Probe(root)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Packages, second.Packages)
}
