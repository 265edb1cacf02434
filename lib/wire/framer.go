// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/adsamcik/wirebound/lib/codec"
)

// MaxMessageSize is the maximum total encoded size of one message.
// Frames declaring a larger length are rejected before the body is
// read, so an attacker cannot make the helper allocate on demand.
const MaxMessageSize = 1 << 20 // 1 MiB

// lengthPrefixSize is the fixed size of the big-endian length prefix.
const lengthPrefixSize = 4

// DefaultReceiveTimeout bounds how long Receive waits for a complete
// frame. The same bound governs how quickly per-connection loops
// notice a shutdown signal.
const DefaultReceiveTimeout = 30 * time.Second

// writeTimeout bounds Send. Local IPC writes complete immediately
// unless the peer has stopped draining its end.
const writeTimeout = 10 * time.Second

var (
	// ErrMessageTooLarge is returned by Send when the encoded message
	// exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("wire: encoded message exceeds maximum size")

	// ErrFrameTooLarge is returned by Receive when the declared frame
	// length exceeds MaxMessageSize. The body is never read.
	ErrFrameTooLarge = errors.New("wire: declared frame length exceeds maximum size")

	// ErrEmptyFrame is returned by Receive for a zero-length frame.
	ErrEmptyFrame = errors.New("wire: zero-length frame")
)

// Send encodes message and writes it as one frame: a 4-byte big-endian
// length prefix followed by the CBOR body. Fails with
// ErrMessageTooLarge before writing anything if the encoding is
// oversized.
func Send(conn net.Conn, message *Message) error {
	body, err := codec.Marshal(message)
	if err != nil {
		return fmt.Errorf("wire: encoding message: %w", err)
	}
	if len(body) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(body))
	}

	frame := make([]byte, lengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[lengthPrefixSize:], body)

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("wire: setting write deadline: %w", err)
	}
	if _, err := conn.Write(frame); err != nil {
		return fmt.Errorf("wire: writing frame: %w", err)
	}
	return nil
}

// Receive reads one frame from conn and decodes it with the hardened
// decode mode. Pass timeout <= 0 for DefaultReceiveTimeout.
//
// Returns (nil, nil) — no message, no error — when the stream closes
// cleanly before a frame starts, and likewise when no complete frame
// arrives within the timeout. A timeout caused by the caller's context
// being cancelled is reported as ctx.Err() instead, so shutdown is
// distinguishable from a stalled or silent peer.
//
// Frames that violate the length bounds or fail to decode return an
// error; callers must treat such a connection as unusable.
func Receive(ctx context.Context, conn net.Conn, timeout time.Duration) (*Message, error) {
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("wire: setting read deadline: %w", err)
	}

	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
			// Clean closure before a frame started.
			return nil, nil
		}
		if isTimeout(err) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Genuine stall: no message within the bound.
			return nil, nil
		}
		return nil, fmt.Errorf("wire: reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		return nil, ErrEmptyFrame
	}
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(conn, body); err != nil {
		if isTimeout(err) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A partial frame — whether truncated or stalled — means the
		// stream can no longer be trusted to frame correctly.
		return nil, fmt.Errorf("wire: reading %d-byte frame body: %w", length, err)
	}

	var message Message
	if err := codec.Unmarshal(body, &message); err != nil {
		return nil, fmt.Errorf("wire: decoding frame: %w", err)
	}
	return &message, nil
}

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netError net.Error
	return errors.As(err, &netError) && netError.Timeout()
}
