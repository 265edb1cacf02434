// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package main

import (
	"fmt"

	"github.com/adsamcik/wirebound/lib/config"
	"github.com/adsamcik/wirebound/lib/endpoint"
)

const identityFlagUsage = "SID of the launching user (required)"

// resolveIdentity validates the launcher SID before it reaches the
// pipe security descriptor. Required on Windows: there is no ambient
// equivalent of SUDO_UID to fall back on.
func resolveIdentity(identityArg string) (endpoint.Identity, error) {
	if identityArg == "" {
		return endpoint.Identity{}, fmt.Errorf("--identity is required")
	}
	if err := endpoint.ValidateSID(identityArg); err != nil {
		return endpoint.Identity{}, err
	}
	return endpoint.Identity{SID: identityArg}, nil
}

// listenAddress selects the named pipe path; --socket is a Unix
// concern and ignored here.
func listenAddress(cfg *config.Config, _, pipeName string) string {
	if pipeName != "" {
		return pipeName
	}
	return cfg.Endpoint.PipeName
}

// secretOwner: file ACLs follow the state directory on Windows; no
// chown equivalent is applied.
func secretOwner(endpoint.Identity) int {
	return -1
}
