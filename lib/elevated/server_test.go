// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package elevated

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/adsamcik/wirebound/lib/auth"
	"github.com/adsamcik/wirebound/lib/clock"
	"github.com/adsamcik/wirebound/lib/codec"
	"github.com/adsamcik/wirebound/lib/endpoint"
	"github.com/adsamcik/wirebound/lib/procinfo"
	"github.com/adsamcik/wirebound/lib/ratelimit"
	"github.com/adsamcik/wirebound/lib/secret"
	"github.com/adsamcik/wirebound/lib/session"
	"github.com/adsamcik/wirebound/lib/wire"
)

const testPID int32 = 4321

var errTable = errors.New("reading socket table: permission denied")

// pipeListener feeds synthetic net.Pipe connections to the accept
// loop.
type pipeListener struct {
	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once
}

func newPipeListener() *pipeListener {
	return &pipeListener{
		conns:  make(chan net.Conn),
		closed: make(chan struct{}),
	}
}

func (l *pipeListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *pipeListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return &net.UnixAddr{Name: "pipe", Net: "unix"}
}

// dial hands the server one end of a fresh pipe and returns the
// client end.
func (l *pipeListener) dial(t *testing.T) net.Conn {
	t.Helper()
	client, server := net.Pipe()
	select {
	case l.conns <- server:
	case <-time.After(2 * time.Second):
		t.Fatal("accept loop did not pick up connection")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type fakeCollector struct {
	connections []wire.ConnectionStat
	processes   []wire.ProcessStat
	err         error
	panics      bool
}

func (f *fakeCollector) Connections(context.Context) ([]wire.ConnectionStat, error) {
	if f.panics {
		panic("collector exploded")
	}
	return f.connections, f.err
}

func (f *fakeCollector) Processes(context.Context) ([]wire.ProcessStat, error) {
	return f.processes, f.err
}

// testHarness binds a running server to a signer sharing its secret.
type testHarness struct {
	listener  *pipeListener
	server    *Server
	signer    *auth.Authenticator
	clock     *clock.FakeClock
	collector *fakeCollector
	done      chan struct{}
}

func startServer(t *testing.T, adjust func(*Config)) *testHarness {
	t.Helper()

	fc := clock.Fake(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	key := make([]byte, secret.KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}

	serverKey, err := secret.NewFromBytes(append([]byte(nil), key...))
	if err != nil {
		t.Fatalf("creating server key: %v", err)
	}
	verifier, err := auth.New(serverKey, auth.DefaultMaxSkew, fc)
	if err != nil {
		t.Fatalf("creating verifier: %v", err)
	}

	clientKey, err := secret.NewFromBytes(key)
	if err != nil {
		t.Fatalf("creating client key: %v", err)
	}
	signer, err := auth.New(clientKey, auth.DefaultMaxSkew, fc)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	t.Cleanup(func() {
		verifier.Close()
		signer.Close()
	})

	listener := newPipeListener()
	collected := &fakeCollector{
		connections: []wire.ConnectionStat{{
			Protocol:  "tcp",
			LocalAddr: "127.0.0.1",
			LocalPort: 8080,
			State:     "listen",
			PID:       testPID,
		}},
		processes: []wire.ProcessStat{{PID: testPID, Name: "monitor", ConnectionCount: 1}},
	}

	cfg := Config{
		Listener:       listener,
		Identity:       endpoint.Identity{UID: 1000},
		Authenticator:  verifier,
		Collector:      collected,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:          fc,
		ReceiveTimeout: time.Minute,
	}
	if adjust != nil {
		adjust(&cfg)
	}

	server := New(cfg)
	server.peerIdentity = func(net.Conn) (endpoint.PeerIdentity, error) {
		return endpoint.PeerIdentity{PID: testPID, UID: 1000}, nil
	}
	server.verifyExecutable = func(int32, string) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	return &testHarness{
		listener:  listener,
		server:    server,
		signer:    signer,
		clock:     fc,
		collector: collected,
		done:      done,
	}
}

// roundTrip sends one message and decodes the correlated response
// payload into out, returning the response envelope.
func roundTrip(t *testing.T, conn net.Conn, message *wire.Message, out any) *wire.Message {
	t.Helper()
	if err := wire.Send(conn, message); err != nil {
		t.Fatalf("sending %s: %v", message.Type, err)
	}
	response, err := wire.Receive(context.Background(), conn, 2*time.Second)
	if err != nil {
		t.Fatalf("receiving response to %s: %v", message.Type, err)
	}
	if response == nil {
		t.Fatalf("connection closed awaiting response to %s", message.Type)
	}
	if response.RequestID != message.RequestID {
		t.Fatalf("response request id = %q, want %q", response.RequestID, message.RequestID)
	}
	if out != nil {
		if err := codec.Unmarshal(response.Payload, out); err != nil {
			t.Fatalf("decoding %s payload: %v", response.Type, err)
		}
	}
	return response
}

// authenticate performs a valid handshake and returns the session id.
func (h *testHarness) authenticate(t *testing.T, conn net.Conn) string {
	t.Helper()
	timestamp := h.clock.Now().Unix()
	message, err := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:       testPID,
		Timestamp: timestamp,
		Signature: h.signer.Sign(testPID, timestamp),
	})
	if err != nil {
		t.Fatalf("building authenticate: %v", err)
	}

	var response wire.AuthenticateResponse
	envelope := roundTrip(t, conn, message, &response)
	if envelope.Type != wire.TypeAuthenticate {
		t.Fatalf("handshake response type = %s", envelope.Type)
	}
	if !response.Success || response.SessionID == "" {
		t.Fatalf("handshake failed: %+v", response)
	}
	return response.SessionID
}

func sessionMessage(t *testing.T, messageType wire.Type, requestID, sessionID string) *wire.Message {
	t.Helper()
	message, err := wire.NewMessage(messageType, requestID, wire.SessionRequest{SessionID: sessionID})
	if err != nil {
		t.Fatalf("building %s: %v", messageType, err)
	}
	return message
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEndToEnd(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	sessionID := h.authenticate(t, conn)
	if got := h.server.sessions.Len(); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}

	var stats wire.ConnectionStatsResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeConnectionStats, "req-1", sessionID), &stats)
	if envelope.Type != wire.TypeConnectionStats {
		t.Fatalf("response type = %s", envelope.Type)
	}
	if !stats.OK || len(stats.Connections) != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Connections[0].LocalPort != 8080 || stats.Connections[0].PID != testPID {
		t.Errorf("connection = %+v", stats.Connections[0])
	}

	// Disconnecting cleans up the session and limiter state.
	conn.Close()
	waitFor(t, "session teardown", func() bool { return h.server.sessions.Len() == 0 })
}

func TestAuthenticateReportsExpiry(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	timestamp := h.clock.Now().Unix()
	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:       testPID,
		Timestamp: timestamp,
		Signature: h.signer.Sign(testPID, timestamp),
	})

	var response wire.AuthenticateResponse
	roundTrip(t, conn, message, &response)
	if want := h.clock.Now().Add(session.Lifetime).Unix(); response.ExpiresAt != want {
		t.Errorf("expires_at = %d, want %d", response.ExpiresAt, want)
	}
}

func TestBadSignatureRejected(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	timestamp := h.clock.Now().Unix()
	forged := h.signer.Sign(testPID, timestamp)
	forged[0] ^= 0xFF

	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:       testPID,
		Timestamp: timestamp,
		Signature: forged,
	})

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, message, &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeAuthFailed {
		t.Fatalf("got %s / %+v, want error / auth-failed", envelope.Type, response)
	}
}

func TestStaleTimestampRejected(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	stale := h.clock.Now().Add(-10 * time.Minute).Unix()
	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:       testPID,
		Timestamp: stale,
		Signature: h.signer.Sign(testPID, stale),
	})

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, message, &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeAuthFailed {
		t.Fatalf("got %s / %+v, want error / auth-failed", envelope.Type, response)
	}
}

func TestClaimedPIDMustMatchPeer(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	// Valid signature, but for a pid other than the one the
	// transport reported.
	otherPID := testPID + 1
	timestamp := h.clock.Now().Unix()
	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:       otherPID,
		Timestamp: timestamp,
		Signature: h.signer.Sign(otherPID, timestamp),
	})

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, message, &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeAuthFailed {
		t.Fatalf("got %s / %+v, want error / auth-failed", envelope.Type, response)
	}
}

func TestExecutableVerificationFailsClosed(t *testing.T) {
	h := startServer(t, nil)
	h.server.verifyExecutable = func(int32, string) error {
		return procinfo.ErrProcessGone
	}
	conn := h.listener.dial(t)

	timestamp := h.clock.Now().Unix()
	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-1", wire.AuthenticateRequest{
		PID:            testPID,
		Timestamp:      timestamp,
		Signature:      h.signer.Sign(testPID, timestamp),
		ExecutablePath: "/usr/bin/monitor",
	})

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, message, &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeAuthFailed {
		t.Fatalf("got %s / %+v, want error / auth-failed", envelope.Type, response)
	}
}

func TestRequestBeforeAuthenticate(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "req-1", "nope"), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeMalformed {
		t.Fatalf("got %s / %+v, want error / malformed", envelope.Type, response)
	}
}

func TestRepeatedFailuresDisconnect(t *testing.T) {
	const threshold = 3
	h := startServer(t, func(cfg *Config) {
		cfg.PreAuth = ratelimit.NewPreAuth(ratelimit.PreAuthConfig{
			AttemptsPerSecond: 100,
			Burst:             100,
			FailureThreshold:  threshold,
		}, cfg.Clock)
	})
	conn := h.listener.dial(t)

	timestamp := h.clock.Now().Unix()
	forged := h.signer.Sign(testPID, timestamp)
	forged[0] ^= 0xFF

	for attempt := 1; attempt <= threshold; attempt++ {
		message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth", wire.AuthenticateRequest{
			PID:       testPID,
			Timestamp: timestamp,
			Signature: forged,
		})
		var response wire.ErrorResponse
		envelope := roundTrip(t, conn, message, &response)
		if envelope.Type != wire.TypeError || response.Code != wire.CodeAuthFailed {
			t.Fatalf("attempt %d: got %s / %+v", attempt, envelope.Type, response)
		}
	}

	// The threshold attempt got its error response, then the server
	// hung up.
	got, err := wire.Receive(context.Background(), conn, 2*time.Second)
	if err == nil && got != nil {
		t.Fatalf("connection still open after %d failures: got %+v", threshold, got)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	const threshold = 3
	h := startServer(t, func(cfg *Config) {
		cfg.PreAuth = ratelimit.NewPreAuth(ratelimit.PreAuthConfig{
			AttemptsPerSecond: 100,
			Burst:             100,
			FailureThreshold:  threshold,
		}, cfg.Clock)
	})
	conn := h.listener.dial(t)

	timestamp := h.clock.Now().Unix()
	forged := h.signer.Sign(testPID, timestamp)
	forged[0] ^= 0xFF

	// Two failures, one short of the threshold.
	for attempt := 0; attempt < threshold-1; attempt++ {
		message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth", wire.AuthenticateRequest{
			PID:       testPID,
			Timestamp: timestamp,
			Signature: forged,
		})
		roundTrip(t, conn, message, &wire.ErrorResponse{})
	}

	sessionID := h.authenticate(t, conn)

	// The counter reset: the connection survives further traffic.
	var heartbeat wire.HeartbeatResponse
	roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", sessionID), &heartbeat)
	if !heartbeat.OK {
		t.Fatal("heartbeat after recovered handshake failed")
	}
}

func TestSessionCap(t *testing.T) {
	h := startServer(t, func(cfg *Config) {
		cfg.Sessions = session.NewManager(1, cfg.Clock)
	})

	first := h.listener.dial(t)
	h.authenticate(t, first)

	second := h.listener.dial(t)
	timestamp := h.clock.Now().Unix()
	message, _ := wire.NewMessage(wire.TypeAuthenticate, "auth-2", wire.AuthenticateRequest{
		PID:       testPID,
		Timestamp: timestamp,
		Signature: h.signer.Sign(testPID, timestamp),
	})

	var response wire.ErrorResponse
	envelope := roundTrip(t, second, message, &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeSessionCap {
		t.Fatalf("got %s / %+v, want error / session-cap", envelope.Type, response)
	}
	// The first session was not evicted.
	if h.server.sessions.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.server.sessions.Len())
	}
}

func TestWindowRateLimit(t *testing.T) {
	h := startServer(t, func(cfg *Config) {
		cfg.Window = ratelimit.NewWindow(ratelimit.WindowConfig{
			Window: 10 * time.Second,
			Quota:  2,
		}, cfg.Clock)
	})
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	for i := 0; i < 2; i++ {
		var heartbeat wire.HeartbeatResponse
		roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", sessionID), &heartbeat)
		if !heartbeat.OK {
			t.Fatalf("heartbeat %d failed", i)
		}
	}

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb-3", sessionID), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeRateLimited {
		t.Fatalf("got %s / %+v, want error / rate-limited", envelope.Type, response)
	}

	// A new window admits requests again.
	h.clock.Advance(11 * time.Second)
	var heartbeat wire.HeartbeatResponse
	roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb-4", sessionID), &heartbeat)
	if !heartbeat.OK {
		t.Fatal("heartbeat after window reset failed")
	}
}

func TestHeartbeatReportsServerTime(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	var heartbeat wire.HeartbeatResponse
	roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", sessionID), &heartbeat)
	if !heartbeat.OK || heartbeat.ServerTime != h.clock.Now().Unix() {
		t.Fatalf("heartbeat = %+v, want server time %d", heartbeat, h.clock.Now().Unix())
	}
}

func TestShutdownEndsConnection(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	var response wire.ShutdownResponse
	roundTrip(t, conn, sessionMessage(t, wire.TypeShutdown, "bye", sessionID), &response)
	if !response.OK {
		t.Fatalf("shutdown = %+v", response)
	}

	got, err := wire.Receive(context.Background(), conn, 2*time.Second)
	if err == nil && got != nil {
		t.Fatalf("connection still open after shutdown: %+v", got)
	}
	waitFor(t, "session teardown", func() bool { return h.server.sessions.Len() == 0 })
}

func TestUnknownSessionRejected(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)
	h.authenticate(t, conn)

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", "no-such-session"), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeSessionInvalid {
		t.Fatalf("got %s / %+v, want error / session-invalid", envelope.Type, response)
	}

	// The connection fell back to unauthenticated: session requests
	// now demand a fresh handshake.
	envelope = roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb-2", "whatever"), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeMalformed {
		t.Fatalf("got %s / %+v, want error / malformed", envelope.Type, response)
	}
}

func TestExpiredSessionRejected(t *testing.T) {
	h := startServer(t, nil)
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	h.clock.Advance(session.Lifetime + time.Minute)

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", sessionID), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeSessionInvalid {
		t.Fatalf("got %s / %+v, want error / session-invalid", envelope.Type, response)
	}
}

func TestCollectorErrorStaysInPayload(t *testing.T) {
	h := startServer(t, nil)
	h.collector.err = errTable
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	var stats wire.ConnectionStatsResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeConnectionStats, "req", sessionID), &stats)
	if envelope.Type != wire.TypeConnectionStats {
		t.Fatalf("response type = %s, want connection-stats", envelope.Type)
	}
	if stats.OK || stats.Error == "" {
		t.Fatalf("stats = %+v, want OK=false with error text", stats)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	h := startServer(t, nil)
	h.collector.panics = true
	conn := h.listener.dial(t)
	sessionID := h.authenticate(t, conn)

	var response wire.ErrorResponse
	envelope := roundTrip(t, conn, sessionMessage(t, wire.TypeConnectionStats, "req", sessionID), &response)
	if envelope.Type != wire.TypeError || response.Code != wire.CodeInternal {
		t.Fatalf("got %s / %+v, want error / internal", envelope.Type, response)
	}

	// The connection survived the panic.
	h.collector.panics = false
	var heartbeat wire.HeartbeatResponse
	roundTrip(t, conn, sessionMessage(t, wire.TypeHeartbeat, "hb", sessionID), &heartbeat)
	if !heartbeat.OK {
		t.Fatal("heartbeat after panic failed")
	}
}

func TestPeerRejectionClosesConnection(t *testing.T) {
	h := startServer(t, nil)
	h.server.peerIdentity = func(net.Conn) (endpoint.PeerIdentity, error) {
		return endpoint.PeerIdentity{PID: testPID, UID: 2000}, nil
	}
	conn := h.listener.dial(t)

	// The server closes the connection before any protocol exchange.
	got, err := wire.Receive(context.Background(), conn, 2*time.Second)
	if err == nil && got != nil {
		t.Fatalf("foreign-uid connection was served: %+v", got)
	}
}
