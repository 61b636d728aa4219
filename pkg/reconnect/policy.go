package reconnect

import (
	"time"

	"github.com/harun/afkd/pkg/kick"
)

const (
	// DefaultMaxAttempts is the number of standard reconnects before a session gives up.
	DefaultMaxAttempts = 5
	// DefaultKickDelay is the wait after the server explicitly kicked the bot.
	DefaultKickDelay = 10 * time.Second
	// DefaultDisconnectDelay is the wait after an abrupt or unexplained disconnect.
	DefaultDisconnectDelay = 15 * time.Second
)

// Cause describes how a connection ended
type Cause string

const (
	CauseKick           Cause = "kick"
	CauseDisconnect     Cause = "disconnect"
	CauseConnectError   Cause = "connect_error"
	CauseConnectTimeout Cause = "connect_timeout"
)

// Policy decides whether and when a session reconnects. Delays are fixed
// per cause; a Policy holds no state between calls.
type Policy struct {
	MaxAttempts     int           `json:"maxAttempts"`
	KickDelay       time.Duration `json:"kickDelay"`
	DisconnectDelay time.Duration `json:"disconnectDelay"`
}

// DefaultPolicy returns the canonical reconnect policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		KickDelay:       DefaultKickDelay,
		DisconnectDelay: DefaultDisconnectDelay,
	}
}

// WithDefaults fills zero fields from DefaultPolicy
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.KickDelay <= 0 {
		p.KickDelay = d.KickDelay
	}
	if p.DisconnectDelay <= 0 {
		p.DisconnectDelay = d.DisconnectDelay
	}
	return p
}

// ShouldRetry reports whether another reconnect may be scheduled after
// attemptsSoFar standard attempts ended with the given classification.
func (p Policy) ShouldRetry(c kick.Classification, attemptsSoFar int) bool {
	if !kick.Retryable(c) {
		return false
	}
	return attemptsSoFar < p.maxAttempts()
}

// NextDelay returns how long to wait before reconnecting after cause
func (p Policy) NextDelay(cause Cause) time.Duration {
	if cause == CauseKick {
		if p.KickDelay > 0 {
			return p.KickDelay
		}
		return DefaultKickDelay
	}
	if p.DisconnectDelay > 0 {
		return p.DisconnectDelay
	}
	return DefaultDisconnectDelay
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return DefaultMaxAttempts
}
