// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the keyed-signature handshake that proves a
// connecting client holds the shared secret.
//
// The signature is a BLAKE3 keyed hash over the client's process id
// and a unix timestamp, keyed with a signing key derived from the
// master secret via HKDF-SHA256. Verification is constant time and
// enforces a timestamp freshness window, so a captured signature
// cannot be replayed later. The signed pid is additionally
// cross-checked by the server against the transport-reported peer
// identity — the signature alone does not authenticate a connection.
package auth
