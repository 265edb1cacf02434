// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package endpoint

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Listen creates the helper's unix socket, removing any stale socket
// file from a previous run. The socket is chmodded to 0600 before the
// listener is returned, so no connection can be accepted while the
// file is group or world accessible.
func Listen(path string, _ Identity) (net.Listener, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating socket directory %s: %w", dir, err)
	}

	// Remove stale socket file from a previous run.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		listener.Close()
		os.Remove(path)
		return nil, fmt.Errorf("restricting socket %s: %w", path, err)
	}

	return listener, nil
}

// Peer reports the pid and uid of the process on the other end of a
// unix socket connection, read from the kernel via SO_PEERCRED. The
// values are trustworthy: they come from the socket, not the client.
func Peer(conn net.Conn) (PeerIdentity, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return PeerIdentity{}, fmt.Errorf("%w: %T is not a unix socket", ErrNoPeerIdentity, conn)
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return PeerIdentity{}, fmt.Errorf("accessing socket descriptor: %w", err)
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return PeerIdentity{}, fmt.Errorf("reading peer credentials: %w", err)
	}
	if credErr != nil {
		return PeerIdentity{}, fmt.Errorf("reading peer credentials: %w", credErr)
	}

	return PeerIdentity{PID: cred.Pid, UID: int(cred.Uid)}, nil
}

// CheckPeer admits connections from the launching user or from root.
func CheckPeer(peer PeerIdentity, identity Identity) error {
	if peer.UID == identity.UID || peer.UID == 0 {
		return nil
	}
	return fmt.Errorf("%w: uid %d, expected %d", ErrPeerRejected, peer.UID, identity.UID)
}
