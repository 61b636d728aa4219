// Package wsbridge implements gameclient.Dialer on top of a WebSocket bridge
// process that owns the actual game protocol. Each Connect opens one socket;
// the bridge receives JSON commands ({"op":...}) and answers with JSON event
// frames ({"event":...}).
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/rs/zerolog"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	writeWait               = 10 * time.Second
	pongWait                = 60 * time.Second
	pingPeriod              = (pongWait * 9) / 10
	eventBuffer             = 64
)

// ErrClosed is returned by Conn methods after Disconnect.
var ErrClosed = errors.New("bridge connection closed")

// Config holds dialer configuration
type Config struct {
	URL              string
	Secret           string
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Dialer opens bridge connections.
type Dialer struct {
	url    string
	header http.Header
	ws     *websocket.Dialer
	logger zerolog.Logger
}

var _ gameclient.Dialer = (*Dialer)(nil)

// NewDialer creates a dialer for the bridge at cfg.URL (ws:// or wss://).
func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("bridge url is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}

	header := http.Header{}
	if cfg.Secret != "" {
		header.Set("Authorization", "Bearer "+cfg.Secret)
	}

	return &Dialer{
		url:    cfg.URL,
		header: header,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger.With().Str("component", "wsbridge").Logger(),
	}, nil
}

// Connect dials the bridge and asks it to join the server described by cfg.
// Success of the join is reported later as a Connected event.
func (d *Dialer) Connect(ctx context.Context, cfg gameclient.Config) (gameclient.Conn, error) {
	ws, resp, err := d.ws.DialContext(ctx, d.url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial bridge (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial bridge: %w", err)
	}

	c := newConn(ws, d.logger.With().Str("server", cfg.Address()).Str("username", cfg.Username).Logger())
	if err := c.write(connectCommand(cfg)); err != nil {
		c.Disconnect()
		return nil, fmt.Errorf("failed to send connect: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Conn is one bridge socket.
type Conn struct {
	ws     *websocket.Conn
	logger zerolog.Logger
	events chan gameclient.Event

	writeMu   sync.Mutex
	closing   chan struct{}
	closeOnce sync.Once
}

var _ gameclient.Conn = (*Conn)(nil)

func newConn(ws *websocket.Conn, logger zerolog.Logger) *Conn {
	return &Conn{
		ws:      ws,
		logger:  logger,
		events:  make(chan gameclient.Event, eventBuffer),
		closing: make(chan struct{}),
	}
}

// Events implements gameclient.Conn. The channel is closed when the socket
// ends.
func (c *Conn) Events() <-chan gameclient.Event {
	return c.events
}

// SendChat implements gameclient.Conn
func (c *Conn) SendChat(text string) error {
	return c.write(Command{Op: OpChat, Text: text})
}

// SetControlState implements gameclient.Conn
func (c *Conn) SetControlState(control gameclient.Control, active bool) error {
	return c.write(Command{Op: OpControl, Control: string(control), State: &active})
}

// Look implements gameclient.Conn
func (c *Conn) Look(yaw, pitch float64) error {
	return c.write(Command{Op: OpLook, Yaw: &yaw, Pitch: &pitch})
}

// SwingArm implements gameclient.Conn
func (c *Conn) SwingArm() error {
	return c.write(Command{Op: OpSwing})
}

// Disconnect asks the bridge to quit the server and closes the socket. It is
// safe to call more than once.
func (c *Conn) Disconnect() error {
	var err error
	c.closeOnce.Do(func() {
		if werr := c.write(Command{Op: OpQuit}); werr != nil && !errors.Is(werr, ErrClosed) {
			c.logger.Debug().Err(werr).Msg("Failed to send quit")
		}

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quit"),
			time.Now().Add(writeWait))
		close(c.closing)
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *Conn) write(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", cmd.Op, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closing:
		return ErrClosed
	default:
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", cmd.Op, err)
	}
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.events)

	c.ws.SetReadLimit(1 << 20)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			reason := ""
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				reason = closeErr.Text
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("Bridge connection lost")
			}
			c.deliver(gameclient.Disconnected(reason))
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed bridge frame")
			continue
		}
		ev, ok := frame.toEvent()
		if !ok {
			c.logger.Debug().Str("event", frame.Event).Msg("Ignoring unknown bridge event")
			continue
		}
		if !c.deliver(ev) {
			return
		}
	}
}

// deliver blocks until the event is consumed or the connection is closing.
func (c *Conn) deliver(ev gameclient.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closing:
		return false
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-c.closing:
			return
		}
	}
}
