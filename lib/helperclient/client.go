// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package helperclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adsamcik/wirebound/lib/auth"
	"github.com/adsamcik/wirebound/lib/clock"
	"github.com/adsamcik/wirebound/lib/codec"
	"github.com/adsamcik/wirebound/lib/secret"
	"github.com/adsamcik/wirebound/lib/wire"
)

var (
	// ErrNotConnected is returned by request methods before Connect
	// succeeds or after Disconnect.
	ErrNotConnected = errors.New("helperclient: not connected")

	// ErrConnectionLost is returned when the helper's stream closes
	// or produces undecodable frames mid-request. ConnectionLost()
	// is closed at the same time.
	ErrConnectionLost = errors.New("helperclient: connection lost")

	// ErrHandshakeRejected is returned when the helper refuses the
	// authentication handshake.
	ErrHandshakeRejected = errors.New("helperclient: handshake rejected")
)

// ServerError is a structured failure the helper returned in a
// TypeError frame.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "helper: " + e.Code
	}
	return "helper: " + e.Code + ": " + e.Message
}

// Options configures a Client. Address and StateDir are required.
type Options struct {
	// Address is the unix socket path or named pipe path of the
	// helper.
	Address string

	// StateDir is where the helper wrote the shared secret.
	StateDir string

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Clock defaults to the real clock.
	Clock clock.Clock

	// ReceiveTimeout bounds each wait for a response frame. Defaults
	// to wire.DefaultReceiveTimeout.
	ReceiveTimeout time.Duration
}

// Client is the monitor-side handle to the elevated helper: it
// performs the signed handshake on Connect and then issues
// session-gated telemetry requests. One request is outstanding at a
// time; concurrent callers serialize on an internal mutex.
type Client struct {
	address        string
	stateDir       string
	logger         *slog.Logger
	clock          clock.Clock
	receiveTimeout time.Duration

	// dial is the platform transport, replaceable in tests.
	dial func(ctx context.Context, address string) (net.Conn, error)

	mu        sync.Mutex
	conn      net.Conn
	sessionID string
	lost      chan struct{}
	lostOnce  *sync.Once
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = wire.DefaultReceiveTimeout
	}
	return &Client{
		address:        opts.Address,
		stateDir:       opts.StateDir,
		logger:         opts.Logger,
		clock:          opts.Clock,
		receiveTimeout: opts.ReceiveTimeout,
		dial:           dialTransport,
	}
}

// Connect loads the shared secret, dials the helper, and performs the
// signed handshake. The secret is zeroed again before Connect
// returns, whatever the outcome. Calling Connect while connected is
// an error; Disconnect first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.New("helperclient: already connected")
	}

	// Fail closed before touching the transport: without the secret
	// there is nothing to say to the helper.
	store := secret.NewStore(c.stateDir, -1)
	master, err := store.Load()
	if err != nil {
		return fmt.Errorf("loading shared secret: %w", err)
	}
	defer master.Close()

	signer, err := auth.New(master, auth.DefaultMaxSkew, c.clock)
	if err != nil {
		return fmt.Errorf("deriving signing key: %w", err)
	}
	defer signer.Close()

	conn, err := c.dial(ctx, c.address)
	if err != nil {
		return fmt.Errorf("dialing helper: %w", err)
	}

	pid := int32(os.Getpid())
	timestamp := c.clock.Now().Unix()
	request := wire.AuthenticateRequest{
		PID:       pid,
		Timestamp: timestamp,
		Signature: signer.Sign(pid, timestamp),
	}
	if executable, err := os.Executable(); err == nil {
		request.ExecutablePath = executable
	}

	message, err := wire.NewMessage(wire.TypeAuthenticate, uuid.NewString(), request)
	if err != nil {
		conn.Close()
		return fmt.Errorf("encoding handshake: %w", err)
	}
	if err := wire.Send(conn, message); err != nil {
		conn.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}

	response, err := wire.Receive(ctx, conn, c.receiveTimeout)
	if err != nil {
		conn.Close()
		return fmt.Errorf("awaiting handshake response: %w", err)
	}
	if response == nil {
		conn.Close()
		return fmt.Errorf("%w: helper closed the connection", ErrHandshakeRejected)
	}

	if response.Type == wire.TypeError {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, decodeServerError(response.Payload))
	}
	var handshake wire.AuthenticateResponse
	if err := codec.Unmarshal(response.Payload, &handshake); err != nil {
		conn.Close()
		return fmt.Errorf("decoding handshake response: %w", err)
	}
	if !handshake.Success || handshake.SessionID == "" {
		conn.Close()
		return fmt.Errorf("%w: %s", ErrHandshakeRejected, handshake.Error)
	}

	c.conn = conn
	c.sessionID = handshake.SessionID
	c.lost = make(chan struct{})
	c.lostOnce = new(sync.Once)
	c.logger.Debug("connected to helper",
		"session_id", handshake.SessionID,
		"expires_at", handshake.ExpiresAt,
	)
	return nil
}

// Connected reports whether a session is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// ConnectionLost returns a channel closed when the helper's stream is
// lost. Returns nil before the first successful Connect.
func (c *Client) ConnectionLost() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Disconnect releases the transport. Safe to call repeatedly and
// concurrently.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.sessionID = ""
	}
	if c.lostOnce != nil {
		lost := c.lost
		c.lostOnce.Do(func() { close(lost) })
	}
}

// markLostLocked records stream loss: the transport is closed and the
// loss channel fires.
func (c *Client) markLostLocked() {
	c.logger.Warn("helper connection lost")
	c.closeLocked()
}

// Connections fetches per-connection telemetry.
func (c *Client) Connections(ctx context.Context) ([]wire.ConnectionStat, error) {
	var response wire.ConnectionStatsResponse
	if err := c.roundTrip(ctx, wire.TypeConnectionStats, &response); err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("collector: %s", response.Error)
	}
	return response.Connections, nil
}

// Processes fetches per-process telemetry.
func (c *Client) Processes(ctx context.Context) ([]wire.ProcessStat, error) {
	var response wire.ProcessStatsResponse
	if err := c.roundTrip(ctx, wire.TypeProcessStats, &response); err != nil {
		return nil, err
	}
	if !response.OK {
		return nil, fmt.Errorf("collector: %s", response.Error)
	}
	return response.Processes, nil
}

// Heartbeat probes session liveness and returns the helper's clock.
func (c *Client) Heartbeat(ctx context.Context) (time.Time, error) {
	var response wire.HeartbeatResponse
	if err := c.roundTrip(ctx, wire.TypeHeartbeat, &response); err != nil {
		return time.Time{}, err
	}
	if !response.OK {
		return time.Time{}, errors.New("helperclient: heartbeat refused")
	}
	return time.Unix(response.ServerTime, 0), nil
}

// Shutdown asks the helper to end the session, then releases the
// transport locally whatever the answer was.
func (c *Client) Shutdown(ctx context.Context) error {
	var response wire.ShutdownResponse
	err := c.roundTrip(ctx, wire.TypeShutdown, &response)
	c.Disconnect()
	if err != nil {
		return err
	}
	if !response.OK {
		return errors.New("helperclient: shutdown refused")
	}
	return nil
}

// roundTrip issues one session-gated request and decodes the
// correlated response into out. The mutex spans the whole exchange:
// the protocol has no multiplexing, so one request is in flight at a
// time.
func (c *Client) roundTrip(ctx context.Context, messageType wire.Type, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	requestID := uuid.NewString()
	message, err := wire.NewMessage(messageType, requestID, wire.SessionRequest{SessionID: c.sessionID})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", messageType, err)
	}
	if err := wire.Send(c.conn, message); err != nil {
		c.markLostLocked()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	response, err := wire.Receive(ctx, c.conn, c.receiveTimeout)
	if err != nil {
		c.markLostLocked()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if response == nil {
		c.markLostLocked()
		return fmt.Errorf("%w: no response to %s", ErrConnectionLost, messageType)
	}
	if response.RequestID != requestID {
		c.markLostLocked()
		return fmt.Errorf("%w: response for request %q, expected %q",
			ErrConnectionLost, response.RequestID, requestID)
	}

	if response.Type == wire.TypeError {
		return decodeServerError(response.Payload)
	}
	if response.Type != messageType {
		c.markLostLocked()
		return fmt.Errorf("%w: %s response to %s request", ErrConnectionLost, response.Type, messageType)
	}
	if err := codec.Unmarshal(response.Payload, out); err != nil {
		c.markLostLocked()
		return fmt.Errorf("%w: undecodable %s payload: %v", ErrConnectionLost, response.Type, err)
	}
	return nil
}

func decodeServerError(payload codec.RawMessage) error {
	var failure wire.ErrorResponse
	if err := codec.Unmarshal(payload, &failure); err != nil {
		return &ServerError{Code: wire.CodeInternal, Message: "undecodable error payload"}
	}
	return &ServerError{Code: failure.Code, Message: failure.Message}
}
