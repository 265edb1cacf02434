// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package procinfo

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sys/windows"
)

// ExecutablePath returns the executable backing pid via
// QueryFullProcessImageName on a limited-information handle.
func ExecutablePath(pid int32) (string, error) {
	handle, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			// OpenProcess reports a nonexistent pid this way.
			return "", fmt.Errorf("%w: pid %d", ErrProcessGone, pid)
		}
		return "", fmt.Errorf("procinfo: opening process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)

	// Retry with a doubled buffer when the path does not fit. Two
	// doublings cover every path the object manager can produce.
	size := uint32(260)
	for attempt := 0; attempt < 3; attempt++ {
		buffer := make([]uint16, size)
		length := size
		err := windows.QueryFullProcessImageName(handle, 0, &buffer[0], &length)
		if err == nil {
			return windows.UTF16ToString(buffer[:length]), nil
		}
		if !errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
			return "", fmt.Errorf("procinfo: querying image name for pid %d: %w", pid, err)
		}
		size *= 2
	}
	return "", fmt.Errorf("procinfo: image name for pid %d does not fit any buffer", pid)
}

// samePath compares executable paths case-insensitively, matching
// NTFS semantics.
func samePath(a, b string) bool {
	return strings.EqualFold(a, b)
}
