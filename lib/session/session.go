// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adsamcik/wirebound/lib/clock"
)

// Lifetime is the fixed absolute lifetime of a session. There is no
// renewal: a busy client re-authenticates when its session expires.
const Lifetime = 8 * time.Hour

// DefaultMaxSessions caps concurrently active sessions.
const DefaultMaxSessions = 16

// Session is one authenticated client. Immutable after creation.
type Session struct {
	// ID is the opaque token the client presents on every request.
	ID string

	// PID is the authenticated owning process.
	PID int32

	// ExecutablePath is the verified executable of the owning
	// process, when the client supplied one. Informational.
	ExecutablePath string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager is the thread-safe session table. Creation enforces the
// concurrency cap, validation atomically removes expired entries it
// discovers, and removal is idempotent. Every connection handler
// shares one Manager.
type Manager struct {
	clock       clock.Clock
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session table. maxSessions <= 0 selects
// DefaultMaxSessions.
func NewManager(maxSessions int, clk clock.Clock) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		clock:       clk,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a new session for pid. Returns nil — not an error —
// when the active-session cap is reached; existing sessions are never
// evicted to make room. The expiry is unconditionally now + Lifetime.
func (m *Manager) Create(pid int32, executablePath string) *Session {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop expired sessions before judging the cap, so dead entries
	// cannot starve new clients.
	m.expireLocked(now)

	if len(m.sessions) >= m.maxSessions {
		return nil
	}

	session := &Session{
		ID:             uuid.NewString(),
		PID:            pid,
		ExecutablePath: executablePath,
		CreatedAt:      now,
		ExpiresAt:      now.Add(Lifetime),
	}
	m.sessions[session.ID] = session
	return session
}

// Validate looks up id and checks expiry in a single critical section.
// Returns nil for an unknown or expired id; an expired entry is
// removed before the lock is released, so no concurrent caller can
// observe it as valid.
func (m *Manager) Validate(id string) *Session {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil
	}
	if now.After(session.ExpiresAt) {
		delete(m.sessions, id)
		return nil
	}
	return session
}

// Remove deletes a session. Idempotent: removing an unknown id is not
// an error.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sweep removes all expired sessions and reports how many were
// dropped. The server calls this periodically so sessions whose
// owners vanished without a Shutdown do not linger until their next
// (never-arriving) validation.
func (m *Manager) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireLocked(now)
}

// Len returns the number of active sessions, counting entries that
// have expired but not yet been swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// expireLocked removes entries past their expiry. Caller holds mu.
func (m *Manager) expireLocked(now time.Time) int {
	removed := 0
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}
