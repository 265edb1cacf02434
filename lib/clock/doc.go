// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Production code uses [Real]; tests use [Fake] and drive time with
// [FakeClock.Advance]. Session expiry, rate-limit windows, and
// signature freshness checks all read time through this interface so
// their edge cases can be tested deterministically.
package clock
