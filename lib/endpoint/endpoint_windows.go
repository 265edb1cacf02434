// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package endpoint

import (
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

// Listen creates the helper's named pipe. The security descriptor
// grants full control to SYSTEM and read/write access to the
// launching user only, so the SID is validated before it is
// interpolated into the SDDL string.
func Listen(path string, identity Identity) (net.Listener, error) {
	if err := ValidateSID(identity.SID); err != nil {
		return nil, err
	}

	config := winio.PipeConfig{
		SecurityDescriptor: fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GRGW;;;%s)", identity.SID),
	}
	listener, err := winio.ListenPipe(path, &config)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	return listener, nil
}

// Peer reports the pid of the process on the other end of a named
// pipe connection, read from the pipe handle. Windows does not
// surface a uid, so UID is -1 and the access check is carried by the
// pipe's security descriptor instead.
func Peer(conn net.Conn) (PeerIdentity, error) {
	handled, ok := conn.(interface{ Fd() uintptr })
	if !ok {
		return PeerIdentity{}, fmt.Errorf("%w: %T exposes no pipe handle", ErrNoPeerIdentity, conn)
	}

	var pid uint32
	if err := windows.GetNamedPipeClientProcessId(windows.Handle(handled.Fd()), &pid); err != nil {
		return PeerIdentity{}, fmt.Errorf("reading pipe client pid: %w", err)
	}

	return PeerIdentity{PID: int32(pid), UID: -1}, nil
}

// CheckPeer is a no-op on Windows: the pipe security descriptor has
// already restricted who can connect, and there is no uid to compare.
func CheckPeer(PeerIdentity, Identity) error {
	return nil
}
