// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package procinfo resolves the executable path behind a process id
// so the elevated server can cross-check a client's claimed identity
// against what the operating system reports.
//
// Every failure mode is a denial: if the process cannot be inspected —
// already exited, permission trouble, unsupported platform — the
// caller treats the claim as unverified and refuses authentication.
// [ErrProcessGone] exists only so the server can log a transient
// disappearance differently from an outright mismatch; it is still a
// failure.
package procinfo

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrProcessGone indicates the process exited (or never existed)
// before its executable could be read. Callers fail closed on it like
// any other error; the distinction is for logging only.
var ErrProcessGone = errors.New("procinfo: process no longer exists")

// ErrExecutableMismatch indicates the claimed path does not match the
// operating system's view of the process.
var ErrExecutableMismatch = errors.New("procinfo: claimed executable path does not match process")

// VerifyExecutable checks that claimedPath is the executable of pid
// according to the operating system. Returns nil only on a confirmed
// match; any inability to verify is an error.
func VerifyExecutable(pid int32, claimedPath string) error {
	actual, err := ExecutablePath(pid)
	if err != nil {
		return err
	}

	if !samePath(filepath.Clean(claimedPath), filepath.Clean(actual)) {
		return fmt.Errorf("%w: claimed %q, observed %q", ErrExecutableMismatch, claimedPath, actual)
	}
	return nil
}
