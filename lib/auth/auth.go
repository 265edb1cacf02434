// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"

	"github.com/adsamcik/wirebound/lib/clock"
	"github.com/adsamcik/wirebound/lib/secret"
)

// SignatureSize is the size of a handshake signature in bytes.
const SignatureSize = 32

// DefaultMaxSkew is the accepted distance between the signed timestamp
// and the verifier's clock. A captured signature replayed outside this
// window is rejected regardless of rate limiting.
const DefaultMaxSkew = 5 * time.Minute

// handshakeInfo is the HKDF info string for the handshake signing key.
// Domain separation: if the master secret is ever used to derive other
// keys, a handshake signature can never collide with them.
const handshakeInfo = "wirebound.handshake.v1"

var (
	// ErrBadSignature is returned by Verify when the signature does
	// not match the claimed pid and timestamp.
	ErrBadSignature = errors.New("auth: signature mismatch")

	// ErrStaleTimestamp is returned by Verify when the signed
	// timestamp falls outside the freshness window.
	ErrStaleTimestamp = errors.New("auth: timestamp outside freshness window")
)

// Authenticator signs and verifies the handshake binding a client's
// claimed process id and timestamp to the shared secret. Both ends of
// the channel construct one from the same master secret.
//
// The signing key is derived from the master secret with HKDF-SHA256
// and held in protected memory; Close releases it. The master secret
// buffer stays owned by the caller.
type Authenticator struct {
	key     *secret.Buffer
	maxSkew time.Duration
	clock   clock.Clock
}

// New derives the handshake signing key from the master secret.
// maxSkew <= 0 selects DefaultMaxSkew.
func New(master *secret.Buffer, maxSkew time.Duration, clk clock.Clock) (*Authenticator, error) {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	// Nil salt is appropriate per RFC 5869: the input key material is
	// already uniformly random.
	reader := hkdf.New(sha256.New, master.Bytes(), nil, []byte(handshakeInfo))
	derived := make([]byte, secret.KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("auth: deriving signing key: %w", err)
	}

	key, err := secret.NewFromBytes(derived)
	if err != nil {
		return nil, err
	}

	return &Authenticator{
		key:     key,
		maxSkew: maxSkew,
		clock:   clk,
	}, nil
}

// Sign computes the handshake signature for the given process id and
// unix timestamp (seconds).
func (a *Authenticator) Sign(pid int32, timestamp int64) []byte {
	hasher, err := blake3.NewKeyed(a.key.Bytes())
	if err != nil {
		// NewKeyed only fails for a key that is not 32 bytes, and the
		// derived key is always secret.KeySize.
		panic("auth: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	hasher.Write([]byte(strconv.FormatInt(int64(pid), 10)))
	hasher.Write([]byte{'|'})
	hasher.Write([]byte(strconv.FormatInt(timestamp, 10)))

	return hasher.Sum(nil)[:SignatureSize]
}

// Verify checks a claimed (pid, timestamp, signature) triple. The
// signature comparison is constant time. The timestamp must fall
// within the freshness window around the verifier's clock; outside it
// the signature is rejected even if otherwise valid.
func (a *Authenticator) Verify(pid int32, timestamp int64, signature []byte) error {
	now := a.clock.Now().Unix()
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > a.maxSkew {
		return ErrStaleTimestamp
	}

	expected := a.Sign(pid, timestamp)
	if subtle.ConstantTimeCompare(expected, signature) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Close releases the derived signing key, zeroing it. Idempotent.
func (a *Authenticator) Close() error {
	return a.key.Close()
}
