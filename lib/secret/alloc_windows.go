// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package secret

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// allocate reserves size bytes outside the Go heap via VirtualAlloc
// and locks them into the working set via VirtualLock, preventing the
// pages from being written to the pagefile.
//
// The returned release function unlocks and frees the region.
func allocate(size int) ([]byte, func([]byte) error, error) {
	address, err := windows.VirtualAlloc(0, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, nil, fmt.Errorf("secret: VirtualAlloc failed: %w", err)
	}

	if err := windows.VirtualLock(address, uintptr(size)); err != nil {
		windows.VirtualFree(address, 0, windows.MEM_RELEASE)
		return nil, nil, fmt.Errorf("secret: VirtualLock failed: %w", err)
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(address)), size)
	return data, releaseWindows, nil
}

// releaseWindows unlocks and frees a region produced by allocate.
func releaseWindows(data []byte) error {
	address := uintptr(unsafe.Pointer(unsafe.SliceData(data)))

	var firstError error
	if err := windows.VirtualUnlock(address, uintptr(len(data))); err != nil {
		firstError = fmt.Errorf("secret: VirtualUnlock failed: %w", err)
	}
	if err := windows.VirtualFree(address, 0, windows.MEM_RELEASE); err != nil && firstError == nil {
		firstError = fmt.Errorf("secret: VirtualFree failed: %w", err)
	}
	return firstError
}
