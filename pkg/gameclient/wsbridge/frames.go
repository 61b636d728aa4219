package wsbridge

import (
	"errors"

	"github.com/harun/afkd/pkg/gameclient"
)

// Ops sent to the bridge.
const (
	OpConnect = "connect"
	OpChat    = "chat"
	OpControl = "control"
	OpLook    = "look"
	OpSwing   = "swing"
	OpQuit    = "quit"
)

// Command is an outbound frame. Only the fields relevant to Op are set.
type Command struct {
	Op       string   `json:"op"`
	Host     string   `json:"host,omitempty"`
	Port     int      `json:"port,omitempty"`
	Username string   `json:"username,omitempty"`
	Version  string   `json:"version,omitempty"`
	Auth     string   `json:"auth,omitempty"`
	Text     string   `json:"text,omitempty"`
	Control  string   `json:"control,omitempty"`
	State    *bool    `json:"state,omitempty"`
	Yaw      *float64 `json:"yaw,omitempty"`
	Pitch    *float64 `json:"pitch,omitempty"`
}

// Frame is an inbound event frame.
type Frame struct {
	Event     string                `json:"event"`
	Reason    string                `json:"reason,omitempty"`
	Sender    string                `json:"sender,omitempty"`
	Text      string                `json:"text,omitempty"`
	Player    string                `json:"player,omitempty"`
	Error     string                `json:"error,omitempty"`
	Telemetry *gameclient.Telemetry `json:"telemetry,omitempty"`
}

func connectCommand(cfg gameclient.Config) Command {
	return Command{
		Op:       OpConnect,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Version:  cfg.Version,
		Auth:     cfg.Auth,
	}
}

// toEvent maps a frame to a game event. Unknown event names report false.
func (f Frame) toEvent() (gameclient.Event, bool) {
	switch gameclient.EventKind(f.Event) {
	case gameclient.EventConnected:
		return gameclient.Connected(f.Telemetry), true
	case gameclient.EventDisconnected:
		return gameclient.Disconnected(f.Reason), true
	case gameclient.EventKicked:
		return gameclient.Kicked(f.Reason), true
	case gameclient.EventChat:
		return gameclient.Chat(f.Sender, f.Text), true
	case gameclient.EventError:
		msg := f.Error
		if msg == "" {
			msg = "bridge reported an error"
		}
		return gameclient.Failure(errors.New(msg)), true
	case gameclient.EventTelemetry:
		if f.Telemetry == nil {
			return gameclient.Event{}, false
		}
		return gameclient.Update(*f.Telemetry), true
	case gameclient.EventDeath, gameclient.EventRespawn:
		return gameclient.Event{Kind: gameclient.EventKind(f.Event)}, true
	case gameclient.EventPlayerJoined, gameclient.EventPlayerLeft:
		return gameclient.Event{Kind: gameclient.EventKind(f.Event), Player: f.Player}, true
	}
	return gameclient.Event{}, false
}
