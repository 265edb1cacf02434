// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector gathers per-connection and per-process network
// telemetry for the elevated helper. On Linux it reads the proc
// filesystem directly rather than shelling out to ss or netstat.
package collector
