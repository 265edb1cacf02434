// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"

	"github.com/adsamcik/wirebound/lib/wire"
)

// Collector produces the telemetry the elevated server hands to
// authenticated clients. Implementations need elevated privileges to
// attribute sockets to processes they do not own; that is the entire
// reason the helper process exists.
type Collector interface {
	// Connections lists every TCP and UDP connection on the machine
	// with its owning process, where ownership is resolvable.
	Connections(ctx context.Context) ([]wire.ConnectionStat, error)

	// Processes aggregates Connections by owning process.
	Processes(ctx context.Context) ([]wire.ProcessStat, error)
}
