// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// Package endpoint provides the platform secure channel the elevated
// helper listens on: a unix socket with 0600 permissions and
// SO_PEERCRED peer identification on Unix, a named pipe with an
// SDDL-restricted security descriptor on Windows. Both platforms
// expose the same Listen/Peer/CheckPeer surface so the server above
// them is platform-neutral.
package endpoint
