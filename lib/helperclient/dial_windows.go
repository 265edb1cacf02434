// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package helperclient

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

func dialTransport(ctx context.Context, address string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, address)
}
