// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package elevated

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/adsamcik/wirebound/lib/codec"
	"github.com/adsamcik/wirebound/lib/endpoint"
	"github.com/adsamcik/wirebound/lib/procinfo"
	"github.com/adsamcik/wirebound/lib/session"
	"github.com/adsamcik/wirebound/lib/wire"
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// connection is the per-client state machine. One goroutine owns it
// for the connection's lifetime, so no locking is needed.
type connection struct {
	server *Server
	conn   net.Conn
	peer   endpoint.PeerIdentity

	// key identifies this connection in the pre-auth limiter. Unix
	// socket peers have no usable remote address, so the key is
	// minted per connection.
	key string

	state   connState
	session *session.Session
	logger  *slog.Logger
}

// handleConnection runs the read-dispatch loop for one client and
// tears down its session and limiter state when the loop ends, for
// any reason.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, peer endpoint.PeerIdentity) {
	c := &connection{
		server: s,
		conn:   conn,
		peer:   peer,
		key:    uuid.NewString(),
		state:  stateUnauthenticated,
		logger: s.logger.With("peer_pid", peer.PID),
	}
	defer c.teardown()

	for c.state != stateClosed {
		message, err := wire.Receive(ctx, conn, s.receiveTimeout)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Debug("connection read failed", "error", err)
			}
			return
		}
		if message == nil {
			// Clean close or idle stall. Either way the client is
			// done talking.
			return
		}

		c.dispatch(ctx, message)
	}
}

// teardown releases everything the connection accumulated. Safe to
// run after a partial handshake: every removal is idempotent.
func (c *connection) teardown() {
	c.conn.Close()
	if c.session != nil {
		c.server.sessions.Remove(c.session.ID)
		c.server.window.Remove(c.session.ID)
	}
	c.server.preAuth.Remove(c.key)
	c.state = stateClosed
}

// dispatch routes one message through the state machine. Handler
// panics become Error responses instead of tearing down the server.
func (c *connection) dispatch(ctx context.Context, message *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", "type", message.Type, "panic", r)
			c.sendError(message.RequestID, wire.CodeInternal, "internal error")
		}
	}()

	switch c.state {
	case stateUnauthenticated:
		if message.Type != wire.TypeAuthenticate {
			c.sendError(message.RequestID, wire.CodeMalformed,
				"authentication required before "+message.Type.String())
			return
		}
		c.handleAuthenticate(message)

	case stateAuthenticated:
		switch message.Type {
		case wire.TypeConnectionStats, wire.TypeProcessStats, wire.TypeHeartbeat, wire.TypeShutdown:
			c.handleSessionRequest(ctx, message)
		default:
			c.sendError(message.RequestID, wire.CodeMalformed,
				message.Type.String()+" not valid on an authenticated connection")
		}
	}
}

// handleAuthenticate runs the handshake checks in order: throttle,
// payload decode, signature, caller identity, executable path,
// session creation. The client sees a generic failure; the specific
// check that failed is only logged.
func (c *connection) handleAuthenticate(message *wire.Message) {
	if !c.server.preAuth.TryAcquire(c.key) {
		c.sendError(message.RequestID, wire.CodeRateLimited, "authentication throttled")
		c.recordAuthFailure("throttled")
		return
	}

	var request wire.AuthenticateRequest
	if err := codec.Unmarshal(message.Payload, &request); err != nil {
		c.sendError(message.RequestID, wire.CodeMalformed, "undecodable authenticate payload")
		c.recordAuthFailure("malformed payload")
		return
	}

	if err := c.server.auth.Verify(request.PID, request.Timestamp, request.Signature); err != nil {
		c.sendError(message.RequestID, wire.CodeAuthFailed, "authentication failed")
		c.recordAuthFailure("signature rejected: " + err.Error())
		return
	}

	// The pid inside the signed payload must be the pid the transport
	// reported at accept time; a valid signature for someone else's
	// pid is a replay.
	if c.peer.PID != 0 && request.PID != c.peer.PID {
		c.sendError(message.RequestID, wire.CodeAuthFailed, "authentication failed")
		c.recordAuthFailure("claimed pid does not match transport peer")
		return
	}

	if request.ExecutablePath != "" {
		if err := c.server.verifyExecutable(request.PID, request.ExecutablePath); err != nil {
			c.sendError(message.RequestID, wire.CodeAuthFailed, "authentication failed")
			if errors.Is(err, procinfo.ErrProcessGone) {
				// Transient: the client raced its own exit. Denied
				// all the same, but not logged as a spoof attempt.
				c.logger.Info("authentication denied, process gone", "pid", request.PID)
				c.recordAuthFailure("process gone during verification")
			} else {
				c.recordAuthFailure("executable verification: " + err.Error())
			}
			return
		}
	}

	created := c.server.sessions.Create(request.PID, request.ExecutablePath)
	if created == nil {
		// Cap reached. Not an auth failure: the credentials were
		// good, the server is just full.
		c.sendError(message.RequestID, wire.CodeSessionCap, "session limit reached")
		return
	}

	c.session = created
	c.state = stateAuthenticated
	c.server.preAuth.RecordSuccess(c.key)
	c.logger.Info("session established",
		"session_id", created.ID,
		"pid", created.PID,
		"expires_at", created.ExpiresAt,
	)

	c.send(wire.TypeAuthenticate, message.RequestID, wire.AuthenticateResponse{
		Success:   true,
		SessionID: created.ID,
		ExpiresAt: created.ExpiresAt.Unix(),
	})
}

// recordAuthFailure counts one failed attempt and closes the
// connection when the consecutive-failure threshold is reached.
func (c *connection) recordAuthFailure(reason string) {
	c.logger.Warn("authentication failed", "reason", reason)
	if c.server.preAuth.RecordFailure(c.key) {
		c.logger.Warn("closing connection after repeated authentication failures")
		c.state = stateClosed
	}
}

// handleSessionRequest gates a request on the post-auth limiter and
// session validity, then hands it to the matching handler. Session
// failures drop the connection back to Unauthenticated so the client
// can re-handshake without reconnecting.
func (c *connection) handleSessionRequest(ctx context.Context, message *wire.Message) {
	if !c.server.window.TryAcquire(c.session.ID) {
		c.sendError(message.RequestID, wire.CodeRateLimited, "request rate exceeded")
		return
	}

	var request wire.SessionRequest
	if err := codec.Unmarshal(message.Payload, &request); err != nil {
		c.sendError(message.RequestID, wire.CodeMalformed, "undecodable session payload")
		return
	}

	if request.SessionID != c.session.ID || c.server.sessions.Validate(request.SessionID) == nil {
		c.sendError(message.RequestID, wire.CodeSessionInvalid, "unknown or expired session")
		c.server.window.Remove(c.session.ID)
		c.session = nil
		c.state = stateUnauthenticated
		return
	}

	switch message.Type {
	case wire.TypeConnectionStats:
		response := wire.ConnectionStatsResponse{OK: true}
		connections, err := c.server.collector.Connections(ctx)
		if err != nil {
			response = wire.ConnectionStatsResponse{OK: false, Error: err.Error()}
		} else {
			response.Connections = connections
		}
		c.send(wire.TypeConnectionStats, message.RequestID, response)

	case wire.TypeProcessStats:
		response := wire.ProcessStatsResponse{OK: true}
		processes, err := c.server.collector.Processes(ctx)
		if err != nil {
			response = wire.ProcessStatsResponse{OK: false, Error: err.Error()}
		} else {
			response.Processes = processes
		}
		c.send(wire.TypeProcessStats, message.RequestID, response)

	case wire.TypeHeartbeat:
		c.send(wire.TypeHeartbeat, message.RequestID, wire.HeartbeatResponse{
			OK:         true,
			ServerTime: c.server.clock.Now().Unix(),
		})

	case wire.TypeShutdown:
		c.send(wire.TypeShutdown, message.RequestID, wire.ShutdownResponse{OK: true})
		c.logger.Info("session shut down by client", "session_id", c.session.ID)
		c.state = stateClosed
	}
}

// send encodes and writes one response frame. Write failures are
// logged and otherwise ignored: the read loop will observe the broken
// connection on its next receive.
func (c *connection) send(messageType wire.Type, requestID string, payload any) {
	message, err := wire.NewMessage(messageType, requestID, payload)
	if err != nil {
		c.logger.Error("encoding response", "type", messageType, "error", err)
		return
	}
	if err := wire.Send(c.conn, message); err != nil {
		c.logger.Debug("writing response", "type", messageType, "error", err)
	}
}

func (c *connection) sendError(requestID, code, detail string) {
	c.send(wire.TypeError, requestID, wire.ErrorResponse{Code: code, Message: detail})
}
