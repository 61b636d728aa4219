package session

import (
	"context"
	"time"

	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/kick"
	"github.com/harun/afkd/pkg/reconnect"
)

// State is a session lifecycle state.
type State string

const (
	StateConnecting    State = "connecting"
	StateOnline        State = "online"
	StateDisconnecting State = "disconnecting"
	StateDisconnected  State = "disconnected"
	StateReconnecting  State = "reconnecting"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transitions can leave s.
func (s State) Terminal() bool {
	return s == StateDisconnected || s == StateFailed
}

// Defaults for Config.
const (
	DefaultConnectTimeout      = 20 * time.Second
	DefaultPositionLogInterval = time.Minute
	MaxCommandLength           = 256
	MaxIdentityLength          = 64
)

// Config tunes session timing. Zero fields fall back to defaults.
type Config struct {
	ConnectTimeout time.Duration
	// StartTimeout bounds how long StartSession waits for Online. Defaults
	// to ConnectTimeout.
	StartTimeout        time.Duration
	Policy              reconnect.Policy
	LogCapacity         int
	PositionLogInterval time.Duration
	Safety              SafetyConfig
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      DefaultConnectTimeout,
		StartTimeout:        DefaultConnectTimeout,
		Policy:              reconnect.DefaultPolicy(),
		LogCapacity:         eventlog.DefaultCapacity,
		PositionLogInterval: DefaultPositionLogInterval,
		Safety:              DefaultSafetyConfig(),
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = c.ConnectTimeout
	}
	c.Policy = c.Policy.WithDefaults()
	if c.LogCapacity <= 0 {
		c.LogCapacity = eventlog.DefaultCapacity
	}
	if c.PositionLogInterval <= 0 {
		c.PositionLogInterval = DefaultPositionLogInterval
	}
	c.Safety = c.Safety.WithDefaults()
	return c
}

// Status is an immutable snapshot of a session.
type Status struct {
	Identity          string              `json:"identity"`
	RunID             string              `json:"runId"`
	Active            bool                `json:"active"`
	State             State               `json:"state"`
	Health            float64             `json:"health"`
	Food              float64             `json:"food"`
	Position          gameclient.Position `json:"position"`
	Dimension         string              `json:"dimension,omitempty"`
	Server            string              `json:"server"`
	Version           string              `json:"version"`
	BotName           string              `json:"botName"`
	UptimeSeconds     int64               `json:"uptimeSeconds"`
	ReconnectAttempts int                 `json:"reconnectAttempts"`
	Reconnected       bool                `json:"reconnected"`
	StartedAt         time.Time           `json:"startedAt"`
	LastActivityAt    time.Time           `json:"lastActivityAt"`
	EndedAt           *time.Time          `json:"endedAt,omitempty"`
	Error             string              `json:"error,omitempty"`
	Logs              []eventlog.Entry    `json:"logs"`
	Cursor            eventlog.Cursor     `json:"cursor"`
}

// Recorder receives lifecycle measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	SessionStarted()
	SessionEnded()
	Transition(state State)
	ReconnectScheduled(cause reconnect.Cause)
	Kicked(classification kick.Classification)
	SafetyAction(action Action)
	CommandSent()
	StartDuration(d time.Duration, online bool)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted() {}
func (nopRecorder) SessionEnded() {}
func (nopRecorder) Transition(State) {}
func (nopRecorder) ReconnectScheduled(reconnect.Cause) {}
func (nopRecorder) Kicked(kick.Classification) {}
func (nopRecorder) SafetyAction(Action) {}
func (nopRecorder) CommandSent() {}
func (nopRecorder) StartDuration(time.Duration, bool) {}

// RunRecord describes one ended session run.
type RunRecord struct {
	RunID             string
	Identity          string
	Server            string
	BotName           string
	Version           string
	FinalState        State
	Reason            string
	ReconnectAttempts int
	StartedAt         time.Time
	EndedAt           time.Time
	Logs              []eventlog.Entry
}

// Archiver persists ended runs.
type Archiver interface {
	ArchiveRun(ctx context.Context, run RunRecord) error
}
