// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

// wirebound-helper is the elevated helper process of the WireBound
// network monitor. It is started with elevated privileges by the
// monitor's launcher, publishes a shared secret readable only by the
// launching user, and serves authenticated telemetry requests over a
// local secure channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/adsamcik/wirebound/lib/auth"
	"github.com/adsamcik/wirebound/lib/clock"
	"github.com/adsamcik/wirebound/lib/collector"
	"github.com/adsamcik/wirebound/lib/config"
	"github.com/adsamcik/wirebound/lib/elevated"
	"github.com/adsamcik/wirebound/lib/endpoint"
	"github.com/adsamcik/wirebound/lib/ratelimit"
	"github.com/adsamcik/wirebound/lib/secret"
	"github.com/adsamcik/wirebound/lib/session"
	"github.com/adsamcik/wirebound/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		pipeName    string
		stateDir    string
		identityArg string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to wirebound.yaml (overrides WIREBOUND_CONFIG)")
	flag.StringVar(&socketPath, "socket", "", "unix socket path (Unix only); overrides config")
	flag.StringVar(&pipeName, "pipe-name", "", "named pipe path (Windows only); overrides config")
	flag.StringVar(&stateDir, "state-dir", "", "directory for the shared secret; overrides config")
	flag.StringVar(&identityArg, "identity", "", identityFlagUsage)
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("wirebound-helper %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	address := listenAddress(cfg, socketPath, pipeName)
	if stateDir == "" {
		stateDir = cfg.State.Dir
	}

	// Identity is resolved before anything is created: a helper that
	// cannot name its launcher must not listen.
	identity, err := resolveIdentity(identityArg)
	if err != nil {
		return fmt.Errorf("resolving launcher identity: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The shared secret is regenerated on every start. The launcher
	// reads the file; nothing else can.
	store := secret.NewStore(stateDir, secretOwner(identity))
	master, err := store.Generate()
	if err != nil {
		return fmt.Errorf("generating shared secret: %w", err)
	}
	defer func() {
		if err := store.Destroy(master); err != nil {
			logger.Error("destroying shared secret", "error", err)
		}
	}()

	clk := clock.Real()
	authenticator, err := auth.New(master, cfg.MaxSkew(), clk)
	if err != nil {
		return fmt.Errorf("deriving handshake key: %w", err)
	}
	defer authenticator.Close()

	listener, err := endpoint.Listen(address, identity)
	if err != nil {
		return fmt.Errorf("opening secure channel: %w", err)
	}

	server := elevated.New(elevated.Config{
		Listener:      listener,
		Identity:      identity,
		Authenticator: authenticator,
		Sessions:      session.NewManager(cfg.Session.MaxSessions, clk),
		PreAuth: ratelimit.NewPreAuth(ratelimit.PreAuthConfig{
			AttemptsPerSecond: cfg.RateLimit.PreAuth.AttemptsPerSecond,
			Burst:             cfg.RateLimit.PreAuth.Burst,
			FailureThreshold:  cfg.RateLimit.PreAuth.FailureThreshold,
		}, clk),
		Window: ratelimit.NewWindow(ratelimit.WindowConfig{
			Window: cfg.WindowInterval(),
			Quota:  cfg.RateLimit.Window.MaxRequests,
		}, clk),
		Collector:      collector.New(),
		Logger:         logger,
		Clock:          clk,
		ReceiveTimeout: cfg.ReceiveTimeout(),
		SweepInterval:  cfg.SweepInterval(),
	})

	logger.Info("wirebound-helper starting",
		"version", version.Short(),
		"address", address,
		"state_dir", stateDir,
	)

	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}

	logger.Info("wirebound-helper stopped")
	return nil
}

// loadConfig resolves the configuration source: explicit flag, then
// the WIREBOUND_CONFIG environment variable, then built-in defaults.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	if os.Getenv("WIREBOUND_CONFIG") != "" {
		return config.Load()
	}
	return config.Default(), nil
}
