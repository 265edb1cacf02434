// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package secret

import (
	"fmt"
	"os"
)

// chownToOwner hands the store directory and secret file to the
// launching user so the unprivileged client can read them. ownerUID < 0
// leaves ownership alone (helper running unelevated, tests).
func chownToOwner(dir, path string, ownerUID int) error {
	if ownerUID < 0 {
		return nil
	}
	if err := os.Chown(dir, ownerUID, -1); err != nil {
		return fmt.Errorf("secret: chown %s to uid %d: %w", dir, ownerUID, err)
	}
	if err := os.Chown(path, ownerUID, -1); err != nil {
		return fmt.Errorf("secret: chown %s to uid %d: %w", path, ownerUID, err)
	}
	return nil
}
