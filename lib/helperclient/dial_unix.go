// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package helperclient

import (
	"context"
	"net"
)

func dialTransport(ctx context.Context, address string) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", address)
}
