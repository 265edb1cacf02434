// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/adsamcik/wirebound/lib/config"
	"github.com/adsamcik/wirebound/lib/endpoint"
)

const identityFlagUsage = "uid of the launching user (defaults to SUDO_UID)"

// resolveIdentity determines the launching user's uid. Under sudo the
// invoking uid is in SUDO_UID; otherwise it must be passed
// explicitly. A helper running without a resolvable launcher uid
// would admit nobody, so this is fatal.
func resolveIdentity(identityArg string) (endpoint.Identity, error) {
	raw := identityArg
	if raw == "" {
		raw = os.Getenv("SUDO_UID")
	}
	if raw == "" {
		return endpoint.Identity{}, fmt.Errorf("--identity not given and SUDO_UID not set")
	}

	uid, err := strconv.Atoi(raw)
	if err != nil || uid < 0 {
		return endpoint.Identity{}, fmt.Errorf("invalid launcher uid %q", raw)
	}
	return endpoint.Identity{UID: uid}, nil
}

// listenAddress selects the unix socket path; --pipe-name is a
// Windows concern and ignored here.
func listenAddress(cfg *config.Config, socketPath, _ string) string {
	if socketPath != "" {
		return socketPath
	}
	return cfg.Endpoint.SocketPath
}

// secretOwner is the uid the secret file is chowned to so the
// unprivileged launcher can read it back.
func secretOwner(identity endpoint.Identity) int {
	return identity.UID
}
