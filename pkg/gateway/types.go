package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/history"
	"github.com/harun/afkd/pkg/session"
)

// Sessions is the part of session.Registry the gateway drives
type Sessions interface {
	StartSession(ctx context.Context, identity string, cfg gameclient.Config) (session.Status, error)
	StopSession(ctx context.Context, identity string) error
	SendCommand(ctx context.Context, identity, text string) error
	GetStatus(identity string, since eventlog.Cursor) (session.Status, error)
	List() []session.Status
}

// History serves archived runs
type History interface {
	RecentRuns(ctx context.Context, identity string, limit int) ([]history.Run, error)
}

// StartRequest is the body of POST /api/bots/start
type StartRequest struct {
	Identity string `json:"identity"`
	Server   string `json:"server"`
	Port     int    `json:"port,omitempty"`
	BotName  string `json:"botName,omitempty"`
	Version  string `json:"version,omitempty"`
}

// ConnectionConfig builds the game connection config. An explicit port
// overrides one embedded in the server address.
func (r StartRequest) ConnectionConfig() (gameclient.Config, error) {
	host, port, err := gameclient.ParseServerAddress(r.Server)
	if err != nil {
		return gameclient.Config{}, fmt.Errorf("%w: %w", session.ErrValidation, err)
	}
	if r.Port != 0 {
		port = r.Port
	}
	return gameclient.Config{
		Host:     host,
		Port:     port,
		Username: r.BotName,
		Version:  r.Version,
	}, nil
}

// StopRequest is the body of POST /api/bots/stop
type StopRequest struct {
	Identity string `json:"identity"`
}

// CommandRequest is the body of POST /api/bots/command
type CommandRequest struct {
	Identity string `json:"identity"`
	Command  string `json:"command"`
}

// BlockPosition is a position floored to whole blocks
type BlockPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// LogView is one activity log entry as returned to pollers
type LogView struct {
	Seq       eventlog.Cursor    `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Type      eventlog.EntryType `json:"type"`
	Message   string             `json:"message"`
}

// StatusView is the wire form of a session status
type StatusView struct {
	Identity          string        `json:"identity"`
	RunID             string        `json:"runId,omitempty"`
	Active            bool          `json:"active"`
	State             session.State `json:"state,omitempty"`
	Health            float64       `json:"health"`
	Food              float64       `json:"food"`
	Position          BlockPosition `json:"position"`
	Dimension         string        `json:"dimension,omitempty"`
	Server            string        `json:"server,omitempty"`
	Version           string        `json:"version,omitempty"`
	BotName           string        `json:"botName,omitempty"`
	UptimeSeconds     int64         `json:"uptimeSeconds"`
	ReconnectAttempts int           `json:"reconnectAttempts"`
	Reconnected       bool          `json:"reconnected"`
	Error             string        `json:"error,omitempty"`
	Logs              []LogView     `json:"logs"`
	Cursor            uint64        `json:"cursor"`
}

func newStatusView(st session.Status) *StatusView {
	v := &StatusView{
		Identity: st.Identity,
		RunID:    st.RunID,
		Active:   st.Active,
		State:    st.State,
		Health:   st.Health,
		Food:     st.Food,
		Position: BlockPosition{
			X: int(math.Floor(st.Position.X)),
			Y: int(math.Floor(st.Position.Y)),
			Z: int(math.Floor(st.Position.Z)),
		},
		Dimension:         st.Dimension,
		Server:            st.Server,
		Version:           st.Version,
		BotName:           st.BotName,
		UptimeSeconds:     st.UptimeSeconds,
		ReconnectAttempts: st.ReconnectAttempts,
		Reconnected:       st.Reconnected,
		Error:             st.Error,
		Logs:              make([]LogView, 0, len(st.Logs)),
		Cursor:            uint64(st.Cursor),
	}
	for _, e := range st.Logs {
		v.Logs = append(v.Logs, LogView{Seq: e.Seq, Timestamp: e.Timestamp, Type: e.Type, Message: e.Message})
	}
	return v
}

// inactiveView is returned for identities the registry has never seen
func inactiveView(identity string) *StatusView {
	return &StatusView{Identity: identity, Logs: []LogView{}}
}
