// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/adsamcik/wirebound/lib/wire"
)

// Stub satisfies Collector on platforms without a native table
// reader. Requests succeed at the transport level and carry the
// error inside the response payload.
type Stub struct{}

// New returns the stub collector. A Windows implementation would sit
// on GetExtendedTcpTable / GetExtendedUdpTable.
func New() *Stub {
	return &Stub{}
}

func (*Stub) Connections(context.Context) ([]wire.ConnectionStat, error) {
	return nil, fmt.Errorf("connection telemetry: %w on this platform", errors.ErrUnsupported)
}

func (*Stub) Processes(context.Context) ([]wire.ProcessStat, error) {
	return nil, fmt.Errorf("process telemetry: %w on this platform", errors.ErrUnsupported)
}
