// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks authenticated clients of the elevated
// helper.
//
// A session is a time-bounded, single-owner authorization created by
// a successful handshake and looked up on every subsequent request.
// The [Manager] enforces a hard cap on concurrent sessions (creation
// fails rather than evicting) and a fixed 8-hour lifetime with no
// silent renewal. Validation and expiry removal happen in one
// critical section, so two concurrent callers can never both observe
// an expired session as live.
package session
