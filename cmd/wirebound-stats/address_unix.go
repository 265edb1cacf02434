// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package main

import "github.com/adsamcik/wirebound/lib/config"

func defaultAddress(cfg *config.Config) string {
	return cfg.Endpoint.SocketPath
}
