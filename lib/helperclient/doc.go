// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package helperclient is the monitor-side view of the elevated
// helper: it dials the platform transport, proves its identity with a
// keyed handshake signature, and issues the small closed set of
// telemetry requests over the resulting session.
package helperclient
