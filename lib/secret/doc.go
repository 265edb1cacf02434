// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret provides a memory-safe buffer for the shared
// handshake secret and the store that persists it for client
// discovery.
//
// [Buffer] allocates memory outside the Go heap (mmap + mlock on
// Unix, VirtualAlloc + VirtualLock on Windows), excluded from core
// dumps where supported. On Close, the memory is zeroed before
// release. Because the memory lives outside the Go heap, the garbage
// collector cannot copy or relocate it, guaranteeing secret material
// does not persist after release.
//
// [Store] owns the secret's on-disk lifecycle: the helper generates a
// fresh 32-byte secret at startup and writes it to a 0600 file in a
// per-user data directory; the client loads it at connect time; the
// helper destroys it (file removal + buffer zero) at shutdown. The
// secret exists on disk only while the helper is running.
//
// [Buffer.Equal] uses constant-time comparison. [Zero] scrubs
// transient heap copies.
package secret
