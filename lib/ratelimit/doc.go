// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides the two independent limiters guarding
// the elevated helper.
//
// [PreAuth] covers unauthenticated clients: a per-key token bucket
// throttles authentication attempt frequency, and a consecutive-
// failure counter tells the server when to stop talking to a
// brute-forcing peer entirely. [Window] covers authenticated
// sessions: a fixed window with a fixed quota per session id.
//
// Both keep per-client state in a mutex-guarded map created lazily on
// first contact and released explicitly on disconnect.
package ratelimit
