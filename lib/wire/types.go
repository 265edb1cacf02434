// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/adsamcik/wirebound/lib/codec"

// Type is the message type discriminator. The set is closed: the
// helper protocol is not a general RPC framework, and every dispatch
// site switches exhaustively over these values.
type Type uint8

const (
	// TypeInvalid is the zero value. A frame decoding to TypeInvalid
	// is malformed.
	TypeInvalid Type = iota

	// TypeAuthenticate carries AuthenticateRequest / AuthenticateResponse.
	TypeAuthenticate

	// TypeConnectionStats requests per-connection telemetry.
	TypeConnectionStats

	// TypeProcessStats requests per-process telemetry.
	TypeProcessStats

	// TypeHeartbeat is a session-gated liveness probe.
	TypeHeartbeat

	// TypeShutdown ends the session and the per-connection loop.
	TypeShutdown

	// TypeError carries ErrorResponse. Server-to-client only.
	TypeError
)

// String returns the lower-case wire name of the type, for logging.
func (t Type) String() string {
	switch t {
	case TypeAuthenticate:
		return "authenticate"
	case TypeConnectionStats:
		return "connection-stats"
	case TypeProcessStats:
		return "process-stats"
	case TypeHeartbeat:
		return "heartbeat"
	case TypeShutdown:
		return "shutdown"
	case TypeError:
		return "error"
	default:
		return "invalid"
	}
}

// Message is one wire frame: a type discriminator, a caller-supplied
// request id echoed on the response for correlation, and the
// type-specific payload as raw CBOR. Messages are constructed per call
// and discarded after dispatch.
type Message struct {
	Type      Type             `cbor:"1,keyasint"`
	RequestID string           `cbor:"2,keyasint"`
	Payload   codec.RawMessage `cbor:"3,keyasint,omitempty"`
}

// Error codes carried in ErrorResponse. Closed set.
const (
	// CodeAuthFailed covers bad signatures, stale timestamps,
	// executable-path mismatches, and caller-identity mismatches.
	// Deliberately unspecific: the client learns that authentication
	// failed, not which check caught it.
	CodeAuthFailed = "auth-failed"

	// CodeRateLimited is returned when either limiter rejects the
	// request. The connection stays open.
	CodeRateLimited = "rate-limited"

	// CodeSessionInvalid is returned for an unknown or expired
	// session id.
	CodeSessionInvalid = "session-invalid"

	// CodeSessionCap is returned when authentication succeeds but the
	// active-session cap is reached. No existing session is evicted.
	CodeSessionCap = "session-cap"

	// CodeMalformed is returned for payloads that fail to decode or
	// message types that are not meaningful in the current state.
	CodeMalformed = "malformed"

	// CodeInternal is returned when a handler fails unexpectedly.
	CodeInternal = "internal"
)

// AuthenticateRequest is the handshake payload. The signature binds
// the claimed pid and timestamp to the shared secret; the server
// cross-checks the pid against the transport-reported peer identity.
type AuthenticateRequest struct {
	PID            int32  `cbor:"1,keyasint"`
	Timestamp      int64  `cbor:"2,keyasint"`
	Signature      []byte `cbor:"3,keyasint"`
	ExecutablePath string `cbor:"4,keyasint,omitempty"`
}

// AuthenticateResponse reports handshake outcome. On success the
// client stores SessionID and presents it on every later request.
type AuthenticateResponse struct {
	Success   bool   `cbor:"1,keyasint"`
	SessionID string `cbor:"2,keyasint,omitempty"`
	ExpiresAt int64  `cbor:"3,keyasint,omitempty"`
	Error     string `cbor:"4,keyasint,omitempty"`
}

// SessionRequest is the shared payload of every session-gated request
// (ConnectionStats, ProcessStats, Heartbeat, Shutdown).
type SessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// ConnectionStat describes one network connection owned by a process.
// This is the contract the platform data collector fulfills; collector
// internals are not part of the IPC layer.
type ConnectionStat struct {
	Protocol   string `cbor:"1,keyasint"`
	LocalAddr  string `cbor:"2,keyasint"`
	LocalPort  uint16 `cbor:"3,keyasint"`
	RemoteAddr string `cbor:"4,keyasint"`
	RemotePort uint16 `cbor:"5,keyasint"`
	State      string `cbor:"6,keyasint,omitempty"`
	PID        int32  `cbor:"7,keyasint"`
	Inode      uint64 `cbor:"8,keyasint,omitempty"`
}

// ProcessStat aggregates connection ownership per process.
type ProcessStat struct {
	PID             int32  `cbor:"1,keyasint"`
	Name            string `cbor:"2,keyasint"`
	ConnectionCount int    `cbor:"3,keyasint"`
}

// ConnectionStatsResponse carries the collector result. Collector
// failures travel inside the payload (OK=false plus Error), never as
// transport-level errors.
type ConnectionStatsResponse struct {
	OK          bool             `cbor:"1,keyasint"`
	Error       string           `cbor:"2,keyasint,omitempty"`
	Connections []ConnectionStat `cbor:"3,keyasint,omitempty"`
}

// ProcessStatsResponse carries the per-process collector result.
type ProcessStatsResponse struct {
	OK        bool          `cbor:"1,keyasint"`
	Error     string        `cbor:"2,keyasint,omitempty"`
	Processes []ProcessStat `cbor:"3,keyasint,omitempty"`
}

// HeartbeatResponse answers a liveness probe with the server's clock.
type HeartbeatResponse struct {
	OK         bool  `cbor:"1,keyasint"`
	ServerTime int64 `cbor:"2,keyasint"`
}

// ShutdownResponse acknowledges a session shutdown request.
type ShutdownResponse struct {
	OK bool `cbor:"1,keyasint"`
}

// ErrorResponse is the payload of a TypeError message.
type ErrorResponse struct {
	Code    string `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint,omitempty"`
}

// NewMessage encodes payload and wraps it in a Message envelope.
func NewMessage(messageType Type, requestID string, payload any) (*Message, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		RequestID: requestID,
		Payload:   encoded,
	}, nil
}
