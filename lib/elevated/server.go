// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package elevated

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/adsamcik/wirebound/lib/auth"
	"github.com/adsamcik/wirebound/lib/clock"
	"github.com/adsamcik/wirebound/lib/collector"
	"github.com/adsamcik/wirebound/lib/endpoint"
	"github.com/adsamcik/wirebound/lib/procinfo"
	"github.com/adsamcik/wirebound/lib/ratelimit"
	"github.com/adsamcik/wirebound/lib/session"
	"github.com/adsamcik/wirebound/lib/wire"
)

// Config assembles the collaborators the server runs on. Listener and
// Authenticator are required; everything else has a working default.
type Config struct {
	// Listener is the secure channel from endpoint.Listen. The server
	// owns it and closes it when Serve returns.
	Listener net.Listener

	// Identity is the launcher identity admitted by the channel.
	Identity endpoint.Identity

	// Authenticator verifies handshake signatures.
	Authenticator *auth.Authenticator

	// Sessions tracks authenticated clients. Defaults to a manager
	// with the standard cap.
	Sessions *session.Manager

	// PreAuth throttles handshake attempts. Defaults to standard
	// limits.
	PreAuth *ratelimit.PreAuth

	// Window bounds authenticated request volume. Defaults to
	// standard limits.
	Window *ratelimit.Window

	// Collector produces the telemetry payloads. Defaults to the
	// platform collector.
	Collector collector.Collector

	// Logger receives structured server logs. Defaults to
	// slog.Default.
	Logger *slog.Logger

	// Clock is the time source. Defaults to the real clock.
	Clock clock.Clock

	// ReceiveTimeout bounds idle time between frames on a
	// connection. Defaults to wire.DefaultReceiveTimeout.
	ReceiveTimeout time.Duration

	// SweepInterval is how often expired sessions are reaped in the
	// background. Defaults to one minute.
	SweepInterval time.Duration
}

// Server is the elevated helper's IPC server: it accepts connections
// on the secure channel, walks each through the authentication state
// machine, and answers telemetry requests for the lifetime of the
// session.
type Server struct {
	listener       net.Listener
	identity       endpoint.Identity
	auth           *auth.Authenticator
	sessions       *session.Manager
	preAuth        *ratelimit.PreAuth
	window         *ratelimit.Window
	collector      collector.Collector
	logger         *slog.Logger
	clock          clock.Clock
	receiveTimeout time.Duration
	sweepInterval  time.Duration

	// peerIdentity and verifyExecutable are the platform hooks,
	// replaceable in tests where connections are synthetic pipes.
	peerIdentity     func(net.Conn) (endpoint.PeerIdentity, error)
	verifyExecutable func(pid int32, claimedPath string) error

	active sync.WaitGroup
}

// New assembles a server from cfg, filling defaults for absent
// collaborators.
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = session.NewManager(session.DefaultMaxSessions, cfg.Clock)
	}
	if cfg.PreAuth == nil {
		cfg.PreAuth = ratelimit.NewPreAuth(ratelimit.PreAuthConfig{}, cfg.Clock)
	}
	if cfg.Window == nil {
		cfg.Window = ratelimit.NewWindow(ratelimit.WindowConfig{}, cfg.Clock)
	}
	if cfg.Collector == nil {
		cfg.Collector = collector.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = wire.DefaultReceiveTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	return &Server{
		listener:         cfg.Listener,
		identity:         cfg.Identity,
		auth:             cfg.Authenticator,
		sessions:         cfg.Sessions,
		preAuth:          cfg.PreAuth,
		window:           cfg.Window,
		collector:        cfg.Collector,
		logger:           cfg.Logger,
		clock:            cfg.Clock,
		receiveTimeout:   cfg.ReceiveTimeout,
		sweepInterval:    cfg.SweepInterval,
		peerIdentity:     endpoint.Peer,
		verifyExecutable: procinfo.VerifyExecutable,
	}
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for in-flight connection loops to finish. Each
// loop observes the cancellation through its framed reads and exits
// within the receive timeout.
func (s *Server) Serve(ctx context.Context) error {
	defer s.listener.Close()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	s.active.Add(1)
	go func() {
		defer s.active.Done()
		s.sweepLoop(sweepCtx)
	}()

	s.logger.Info("elevated server listening", "addr", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		peer, err := s.peerIdentity(conn)
		if err != nil {
			s.logger.Warn("rejecting connection without peer identity", "error", err)
			conn.Close()
			continue
		}
		if err := endpoint.CheckPeer(peer, s.identity); err != nil {
			s.logger.Warn("rejecting connection", "error", err, "peer_pid", peer.PID)
			conn.Close()
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn, peer)
		}()
	}

	s.active.Wait()
	return nil
}

// sweepLoop reaps expired sessions in the background so a session
// that is never validated again still disappears on schedule.
func (s *Server) sweepLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := s.sessions.Sweep(); reaped > 0 {
				s.logger.Debug("swept expired sessions", "count", reaped)
			}
		}
	}
}
