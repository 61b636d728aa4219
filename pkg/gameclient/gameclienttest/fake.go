// Package gameclienttest provides a scripted in-memory game client for tests.
package gameclienttest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harun/afkd/pkg/gameclient"
)

// ErrClosed is returned by Conn methods after Disconnect
var ErrClosed = errors.New("connection closed")

// ControlChange records one SetControlState call
type ControlChange struct {
	Control gameclient.Control
	Active  bool
}

// Dialer hands out fake connections and lets tests observe every attempt
type Dialer struct {
	// OnConnect runs for every attempt after the Conn is created. Returning
	// an error makes Connect fail with it.
	OnConnect func(c *Conn) error

	mu     sync.Mutex
	conns  []*Conn
	dialed chan *Conn
}

// NewDialer creates a fake dialer
func NewDialer() *Dialer {
	return &Dialer{dialed: make(chan *Conn, 64)}
}

// AutoConnect makes every attempt report Connected immediately
func (d *Dialer) AutoConnect() *Dialer {
	d.OnConnect = func(c *Conn) error {
		c.Emit(gameclient.Connected(&gameclient.Telemetry{Health: 20, Food: 20}))
		return nil
	}
	return d
}

// Connect implements gameclient.Dialer
func (d *Dialer) Connect(ctx context.Context, cfg gameclient.Config) (gameclient.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Conn{
		Config: cfg,
		events: make(chan gameclient.Event, 256),
	}

	d.mu.Lock()
	d.conns = append(d.conns, c)
	hook := d.OnConnect
	d.mu.Unlock()

	if hook != nil {
		if err := hook(c); err != nil {
			c.Disconnect()
			d.announce(c)
			return nil, err
		}
	}

	d.announce(c)
	return c, nil
}

// announce queues c for NextConn. Once the queue is full further attempts
// are only visible through Conns.
func (d *Dialer) announce(c *Conn) {
	select {
	case d.dialed <- c:
	default:
	}
}

// NextConn waits for the next connection attempt, returning nil on timeout
func (d *Dialer) NextConn(timeout time.Duration) *Conn {
	select {
	case c := <-d.dialed:
		return c
	case <-time.After(timeout):
		return nil
	}
}

// Attempts returns how many times Connect was called
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Conns returns every connection created so far
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Conn is a fake connection whose events are pushed by the test
type Conn struct {
	Config gameclient.Config

	mu          sync.Mutex
	events      chan gameclient.Event
	closed      bool
	chats       []string
	controls    []ControlChange
	looks       int
	swings      int
	disconnects int
	controlErr  error
}

// Events implements gameclient.Conn
func (c *Conn) Events() <-chan gameclient.Event {
	return c.events
}

// Emit delivers an event to the session. It reports false once the
// connection has been closed.
func (c *Conn) Emit(ev gameclient.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// Drop simulates the remote side ending the connection with an event
// (usually Disconnected or Kicked) followed by channel close.
func (c *Conn) Drop(ev gameclient.Event) {
	c.Emit(ev)
	c.close()
}

// FailControls makes subsequent SetControlState calls return err
func (c *Conn) FailControls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controlErr = err
}

// SendChat implements gameclient.Conn
func (c *Conn) SendChat(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.chats = append(c.chats, text)
	return nil
}

// SetControlState implements gameclient.Conn
func (c *Conn) SetControlState(control gameclient.Control, active bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, ControlChange{Control: control, Active: active})
	if c.closed {
		return ErrClosed
	}
	return c.controlErr
}

// Look implements gameclient.Conn
func (c *Conn) Look(yaw, pitch float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.looks++
	return nil
}

// SwingArm implements gameclient.Conn
func (c *Conn) SwingArm() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.swings++
	return nil
}

// Disconnect implements gameclient.Conn
func (c *Conn) Disconnect() error {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
	c.close()
	return nil
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}

// Chats returns every chat line sent through the connection
func (c *Conn) Chats() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chats...)
}

// Controls returns every control state change, in order
func (c *Conn) Controls() []ControlChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ControlChange(nil), c.controls...)
}

// Looks returns the number of Look calls
func (c *Conn) Looks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.looks
}

// Swings returns the number of SwingArm calls
func (c *Conn) Swings() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.swings
}

// Disconnects returns the number of Disconnect calls
func (c *Conn) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

// Closed reports whether the connection has ended
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
