// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/adsamcik/wirebound/lib/clock"
)

// PreAuthConfig tunes the pre-authentication limiter.
type PreAuthConfig struct {
	// AttemptsPerSecond is the sustained authentication attempt rate
	// allowed per client key. <= 0 selects the default (1).
	AttemptsPerSecond float64

	// Burst is the number of attempts allowed to arrive at once
	// before throttling engages. <= 0 selects the default (5).
	Burst int

	// FailureThreshold is the number of consecutive failed
	// authentications after which RecordFailure signals disconnect.
	// <= 0 selects the default (5).
	FailureThreshold int
}

func (c PreAuthConfig) withDefaults() PreAuthConfig {
	if c.AttemptsPerSecond <= 0 {
		c.AttemptsPerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	return c
}

// preAuthClient is the per-client state: a token bucket for attempt
// frequency plus a consecutive-failure counter for the disconnect
// threshold.
type preAuthClient struct {
	limiter             *rate.Limiter
	consecutiveFailures int
}

// PreAuth throttles authentication attempts per unauthenticated client
// key and tracks consecutive failures so the server can cut off a
// brute-forcing client rather than answering it forever. Safe for
// concurrent use by every connection handler.
type PreAuth struct {
	config PreAuthConfig
	clock  clock.Clock

	mu      sync.Mutex
	clients map[string]*preAuthClient
}

// NewPreAuth creates a pre-authentication limiter.
func NewPreAuth(config PreAuthConfig, clk clock.Clock) *PreAuth {
	return &PreAuth{
		config:  config.withDefaults(),
		clock:   clk,
		clients: make(map[string]*preAuthClient),
	}
}

// TryAcquire reports whether key may make another authentication
// attempt right now. Client state is created lazily on first contact.
func (p *PreAuth) TryAcquire(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.clientLocked(key).limiter.AllowN(p.clock.Now(), 1)
}

// RecordFailure counts a failed authentication. The return value is
// true when the consecutive-failure count has reached the threshold —
// the caller must terminate the connection. The count keeps rising on
// further failures, so the signal repeats if the caller ignores it.
func (p *PreAuth) RecordFailure(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	client := p.clientLocked(key)
	client.consecutiveFailures++
	return client.consecutiveFailures >= p.config.FailureThreshold
}

// RecordSuccess resets the consecutive-failure count for key.
func (p *PreAuth) RecordSuccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[key]; ok {
		client.consecutiveFailures = 0
	}
}

// Remove drops all state for key. Called on disconnect. Idempotent.
func (p *PreAuth) Remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, key)
}

// clientLocked returns the state for key, creating it if needed.
// Caller holds mu.
func (p *PreAuth) clientLocked(key string) *preAuthClient {
	client, ok := p.clients[key]
	if !ok {
		client = &preAuthClient{
			limiter: rate.NewLimiter(rate.Limit(p.config.AttemptsPerSecond), p.config.Burst),
		}
		p.clients[key] = client
	}
	return client
}
