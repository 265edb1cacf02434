// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import "errors"

// PeerIdentity is the transport-reported identity of a connected
// client, recorded at accept time and cross-checked against the pid
// the client later claims in its handshake.
type PeerIdentity struct {
	// PID is the connecting process id.
	PID int32

	// UID is the connecting user id on Unix; -1 on platforms where
	// the transport does not report one.
	UID int
}

// Identity names the launching user the secure channel admits. Only
// the platform-relevant field is consulted: UID on Unix, SID on
// Windows.
type Identity struct {
	UID int
	SID string
}

// ErrPeerRejected is returned by CheckPeer when the connecting
// process does not belong to the expected launcher identity.
var ErrPeerRejected = errors.New("endpoint: peer identity rejected")

// ErrNoPeerIdentity is returned by Peer when the transport cannot
// report who connected. Callers fail closed.
var ErrNoPeerIdentity = errors.New("endpoint: transport reported no peer identity")
