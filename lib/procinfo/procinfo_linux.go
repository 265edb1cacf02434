// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package procinfo

import (
	"fmt"
	"os"
	"strconv"
)

// ExecutablePath returns the executable backing pid, resolved from
// /proc/<pid>/exe. The symlink target is the kernel's own record of
// what was execve'd — it cannot be spoofed by the process.
func ExecutablePath(pid int32) (string, error) {
	link := "/proc/" + strconv.FormatInt(int64(pid), 10) + "/exe"

	target, err := os.Readlink(link)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
		}
		return "", fmt.Errorf("procinfo: reading %s: %w", link, err)
	}
	return target, nil
}

// samePath compares resolved executable paths. Linux paths are
// case-sensitive.
func samePath(a, b string) bool {
	return a == b
}
