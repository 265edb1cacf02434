// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the helper IPC message types and the framing
// layer that carries them over any duplex byte stream.
//
// Each frame is a 4-byte big-endian length prefix followed by a
// CBOR-encoded [Message] envelope: type discriminator, request id,
// and an opaque type-specific payload. Both the elevated server and
// the monitoring client import this package so the wire contract is
// defined once rather than mirrored.
//
// [Send] and [Receive] enforce the size bound (MaxMessageSize) on
// both sides; oversized frames are rejected at the framing layer
// before any payload decode happens.
package wire
