// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// wirebound-stats is a diagnostic client for the WireBound elevated
// helper: it authenticates with the shared secret and prints the
// helper's connection or process telemetry.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/adsamcik/wirebound/lib/config"
	"github.com/adsamcik/wirebound/lib/helperclient"
	"github.com/adsamcik/wirebound/lib/version"
	"github.com/adsamcik/wirebound/lib/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.Default()

	var (
		address     string
		stateDir    string
		connections bool
		processes   bool
		heartbeat   bool
		shutdown    bool
		asJSON      bool
		showVersion bool
	)

	pflag.StringVar(&address, "socket", defaultAddress(defaults), "helper socket path (Unix) or pipe name (Windows)")
	pflag.StringVar(&stateDir, "state-dir", defaults.State.Dir, "directory holding the shared secret")
	pflag.BoolVar(&connections, "connections", false, "print per-connection telemetry")
	pflag.BoolVar(&processes, "processes", false, "print per-process telemetry")
	pflag.BoolVar(&heartbeat, "heartbeat", false, "probe helper liveness")
	pflag.BoolVar(&shutdown, "shutdown", false, "end the session after other requests")
	pflag.BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("wirebound-stats %s\n", version.Info())
		return nil
	}
	if !connections && !processes && !heartbeat && !shutdown {
		connections = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client := helperclient.New(helperclient.Options{
		Address:  address,
		StateDir: stateDir,
	})
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if heartbeat {
		serverTime, err := client.Heartbeat(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			printJSON(map[string]any{"server_time": serverTime.UTC()})
		} else {
			fmt.Printf("helper alive, server time %s\n", serverTime.UTC().Format(time.RFC3339))
		}
	}

	if connections {
		stats, err := client.Connections(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			printJSON(stats)
		} else {
			printConnections(stats)
		}
	}

	if processes {
		stats, err := client.Processes(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			printJSON(stats)
		} else {
			printProcesses(stats)
		}
	}

	if shutdown {
		if err := client.Shutdown(ctx); err != nil {
			return err
		}
		if !asJSON {
			fmt.Println("session shut down")
		}
	}

	return nil
}

func printJSON(value any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	encoder.Encode(value)
}

func printConnections(stats []wire.ConnectionStat) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PROTO\tLOCAL\tREMOTE\tSTATE\tPID")
	for _, stat := range stats {
		fmt.Fprintf(writer, "%s\t%s:%d\t%s:%d\t%s\t%d\n",
			stat.Protocol,
			stat.LocalAddr, stat.LocalPort,
			stat.RemoteAddr, stat.RemotePort,
			stat.State,
			stat.PID,
		)
	}
	writer.Flush()
}

func printProcesses(stats []wire.ProcessStat) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "PID\tNAME\tCONNECTIONS")
	for _, stat := range stats {
		fmt.Fprintf(writer, "%d\t%s\t%d\n", stat.PID, stat.Name, stat.ConnectionCount)
	}
	writer.Flush()
}
