// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the shared CBOR encoding configuration for
// the helper IPC protocol.
//
// Every wire message — envelope and payload — passes through this
// package so both ends of the channel encode identically. The encoder
// uses Core Deterministic Encoding (RFC 8949 §4.2). The decoder is
// hardened for untrusted peers: duplicate map keys, indefinite-length
// items, and oversized structures are rejected before they can cause
// excessive allocation or hash-flooding.
//
// Wire types use integer struct keys (`cbor:"N,keyasint"`) to keep
// frames compact; they are never serialized as JSON.
package codec
