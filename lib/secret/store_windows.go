// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package secret

// chownToOwner is a no-op on Windows. The secret file inherits the
// per-user application-data directory's ACL, which already restricts
// access to the owning user and SYSTEM.
func chownToOwner(dir, path string, ownerUID int) error {
	return nil
}
