// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package elevated implements the helper-side IPC server: the accept
// loop on the platform secure channel and the per-connection state
// machine that takes a client from unauthenticated, through the
// signed handshake, to rate-limited telemetry requests.
//
// The server trusts nothing a client sends until the handshake
// completes: frames decode under hardened CBOR limits, handshake
// attempts are throttled per connection, and the claimed process
// identity is cross-checked against what the transport itself
// reports.
package elevated
