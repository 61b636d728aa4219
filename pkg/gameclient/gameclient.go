// Package gameclient defines the boundary between a session and the library
// that actually speaks the game protocol.
//
// A Dialer starts a connection attempt and returns a Conn right away; whether
// the bot made it into the world is reported later through the Conn's event
// channel. Implementations close the channel once the connection is gone for
// good and send no further events after that.
package gameclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	DefaultPort    = 25565
	DefaultVersion = "1.21.4"
	AuthOffline    = "offline"
)

// ErrInvalidConfig is returned when a connection config fails validation
var ErrInvalidConfig = errors.New("invalid connection config")

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)

// Config describes how to reach a remote world
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Version  string `json:"version"`
	Auth     string `json:"auth"`
}

// Address returns host:port
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WithDefaults fills in the port, version and auth mode when unset
func (c Config) WithDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Auth == "" {
		c.Auth = AuthOffline
	}
	return c
}

// Validate checks the config after defaults have been applied
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if !usernamePattern.MatchString(c.Username) {
		return fmt.Errorf("%w: username %q must be 3-16 letters, digits or underscores", ErrInvalidConfig, c.Username)
	}
	if _, err := semver.NewVersion(c.Version); err != nil {
		return fmt.Errorf("%w: version %q: %v", ErrInvalidConfig, c.Version, err)
	}
	if c.Auth != AuthOffline {
		return fmt.Errorf("%w: unsupported auth mode %q", ErrInvalidConfig, c.Auth)
	}
	return nil
}

// DefaultUsername derives a legal bot name from an identity. Characters
// outside [A-Za-z0-9_] become underscores and the base is cut so the
// "_Bot" suffix still fits the 16 character limit.
func DefaultUsername(identity string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, identity)
	if len(base) > 12 {
		base = base[:12]
	}
	return base + "_Bot"
}

// ParseServerAddress splits "host" or "host:port" into its parts. A missing
// port yields DefaultPort.
func ParseServerAddress(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, fmt.Errorf("%w: server address is required", ErrInvalidConfig)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port present.
		if strings.Contains(err.Error(), "missing port") {
			return strings.Trim(addr, "[]"), DefaultPort, nil
		}
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrInvalidConfig, portStr)
	}
	return host, port, nil
}

// Dialer starts connections to a remote world
type Dialer interface {
	Connect(ctx context.Context, cfg Config) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface
type DialerFunc func(ctx context.Context, cfg Config) (Conn, error)

// Connect calls f
func (f DialerFunc) Connect(ctx context.Context, cfg Config) (Conn, error) {
	return f(ctx, cfg)
}

// Control is a movement control that can be held down
type Control string

const (
	ControlJump    Control = "jump"
	ControlForward Control = "forward"
)

// Conn is a live handle to one connection attempt
type Conn interface {
	// Events delivers asynchronous notifications. It is closed when the
	// connection is gone.
	Events() <-chan Event
	SendChat(text string) error
	SetControlState(control Control, active bool) error
	Look(yaw, pitch float64) error
	SwingArm() error
	// Disconnect ends the connection and releases its resources. It is safe
	// to call more than once.
	Disconnect() error
}
