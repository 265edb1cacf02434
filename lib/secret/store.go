// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeySize is the size of the shared handshake secret in bytes.
const KeySize = 32

// secretFileName is the file under the store directory holding the
// raw secret bytes.
const secretFileName = "helper.secret"

// ErrNoSecret is returned by Load when no secret file exists — the
// helper process is not running or has not yet written one.
var ErrNoSecret = errors.New("secret: no shared secret found")

// Store persists the shared handshake secret in a per-user application
// data directory. The helper process generates and writes the secret at
// startup; the monitoring client loads it at connect time. Access to
// the file is restricted to the owning user (0600, directory 0700).
type Store struct {
	dir string

	// ownerUID, when >= 0, is applied to the directory and secret
	// file with chown after writing. The helper runs elevated but the
	// client runs as the launching user, so the file must be owned by
	// that user to be readable. No-op on platforms without chown.
	ownerUID int
}

// NewStore creates a store rooted at dir. Pass ownerUID >= 0 to chown
// the secret file to the launching user (required when the helper runs
// as root on Unix), or -1 to leave ownership alone.
func NewStore(dir string, ownerUID int) *Store {
	return &Store{dir: dir, ownerUID: ownerUID}
}

// Path returns the full path of the secret file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, secretFileName)
}

// Generate creates a fresh random secret, persists it for client
// discovery, and returns it in a protected Buffer. Called once per
// helper process start; any previous secret file is overwritten so a
// stale secret from a crashed run cannot authenticate clients.
func (s *Store) Generate() (*Buffer, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("secret: generating key material: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		Zero(raw)
		return nil, fmt.Errorf("secret: creating store directory %s: %w", s.dir, err)
	}

	path := s.Path()
	if err := os.WriteFile(path, raw, 0600); err != nil {
		Zero(raw)
		return nil, fmt.Errorf("secret: writing secret to %s: %w", path, err)
	}

	if err := chownToOwner(s.dir, path, s.ownerUID); err != nil {
		Zero(raw)
		os.Remove(path)
		return nil, err
	}

	// NewFromBytes copies into protected memory and zeros raw.
	return NewFromBytes(raw)
}

// Load reads the persisted secret into a protected Buffer. The heap
// copy from the file read is zeroed before returning. Returns
// ErrNoSecret when the file does not exist — callers must fail closed,
// never fall back to an unauthenticated connection.
func (s *Store) Load() (*Buffer, error) {
	path := s.Path()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w (looked in %s)", ErrNoSecret, path)
		}
		return nil, fmt.Errorf("secret: reading %s: %w", path, err)
	}

	if len(raw) != KeySize {
		Zero(raw)
		return nil, fmt.Errorf("secret: file %s is %d bytes, want %d", path, len(raw), KeySize)
	}

	return NewFromBytes(raw)
}

// Destroy removes the secret file and closes the buffer, zeroing the
// in-memory secret. Safe to call with a nil buffer and safe to call
// more than once — a missing file is not an error.
func (s *Store) Destroy(buffer *Buffer) error {
	var firstError error

	if err := os.Remove(s.Path()); err != nil && !os.IsNotExist(err) {
		firstError = fmt.Errorf("secret: removing %s: %w", s.Path(), err)
	}

	if buffer != nil {
		if err := buffer.Close(); err != nil && firstError == nil {
			firstError = err
		}
	}

	return firstError
}
