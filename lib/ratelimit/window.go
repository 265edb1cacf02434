// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"
	"time"

	"github.com/adsamcik/wirebound/lib/clock"
)

// WindowConfig tunes the post-authentication request limiter.
type WindowConfig struct {
	// Window is the fixed throttling window. <= 0 selects the
	// default (10 seconds).
	Window time.Duration

	// Quota is the number of requests allowed per window per
	// session. <= 0 selects the default (100).
	Quota int
}

func (c WindowConfig) withDefaults() WindowConfig {
	if c.Window <= 0 {
		c.Window = 10 * time.Second
	}
	if c.Quota <= 0 {
		c.Quota = 100
	}
	return c
}

// windowEntry is the per-key throttle state.
type windowEntry struct {
	windowStart time.Time
	count       int
}

// Window throttles requests from already-authenticated sessions with
// a fixed window and fixed quota. Exceeding the quota yields an
// explicit rate-limit error response upstream, never a silent drop.
// Safe for concurrent use.
type Window struct {
	config WindowConfig
	clock  clock.Clock

	mu      sync.Mutex
	entries map[string]*windowEntry
}

// NewWindow creates a post-authentication request limiter.
func NewWindow(config WindowConfig, clk clock.Clock) *Window {
	return &Window{
		config:  config.withDefaults(),
		clock:   clk,
		entries: make(map[string]*windowEntry),
	}
}

// TryAcquire reports whether key may make another request. The first
// request after a window elapses starts a fresh window with a full
// quota.
func (w *Window) TryAcquire(key string) bool {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[key]
	if !ok {
		entry = &windowEntry{windowStart: now}
		w.entries[key] = entry
	}

	if now.Sub(entry.windowStart) >= w.config.Window {
		entry.windowStart = now
		entry.count = 0
	}

	if entry.count >= w.config.Quota {
		return false
	}
	entry.count++
	return true
}

// Remove drops all state for key. Called when the session ends.
// Idempotent.
func (w *Window) Remove(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, key)
}
