// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package auditerr holds the canonical error taxonomy shared by every
// reader and by the audit controller (§7 of the specification). A
// single pure function maps a native filesystem error to one of these
// Kinds; callers never branch on the native error directly.
package auditerr

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"syscall"
)

// Kind is a canonical error classification. It is a string so it can
// be logged, compared, and round-tripped through the optional report
// Meta block without a lookup.
type Kind string

const (
	KindPermissionDenied      Kind = "permission_denied"
	KindFileNotFound          Kind = "file_not_found"
	KindNotADirectory         Kind = "not_a_directory"
	KindSymlinkLoop           Kind = "symlink_loop"
	KindOperationNotPermitted Kind = "operation_not_permitted"
	KindInvalidFileContent    Kind = "invalid_file_content"
	KindPIDMismatch           Kind = "pid_mismatch"
	KindInvalidPID            Kind = "invalid_pid"
	KindInvalidPeriod         Kind = "invalid_period"
	KindInvalidDuration       Kind = "invalid_duration"
	KindEnergySourceUnavail   Kind = "energy_source_unavailable"
	KindNoHostCPUActivity     Kind = "no_host_cpu_activity"
	KindAlreadyFinalised      Kind = "already_finalised"
	KindUnknown               Kind = ""
)

// MapFSError maps a filesystem error to its canonical Kind, falling
// back to the lowercased error text for codes this table doesn't
// recognise (§7: "unknown codes lowercase the original code as a
// fallback").
func MapFSError(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		err = pathErr.Err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOENT):
		return KindFileNotFound
	case errors.Is(err, syscall.EPERM):
		return KindOperationNotPermitted
	case errors.Is(err, fs.ErrPermission), errors.Is(err, syscall.EACCES):
		return KindPermissionDenied
	case errors.Is(err, syscall.ENOTDIR):
		return KindNotADirectory
	case errors.Is(err, syscall.ELOOP):
		return KindSymlinkLoop
	default:
		return Kind(strings.ToLower(err.Error()))
	}
}

// ConfigError represents a configuration or programmer error (§7's
// "abort immediately" row): invalid_period, pid_mismatch,
// already_finalised, energy_source_unavailable and friends. These are
// never transient and are never retried.
type ConfigError struct {
	Kind   Kind
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func NewConfigError(kind Kind, reason string) *ConfigError {
	return &ConfigError{Kind: kind, Reason: reason}
}
