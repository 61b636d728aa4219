package daemon

import (
	"context"
	"time"

	"github.com/harun/afkd/pkg/session"
)

const defaultMaintenanceInterval = 30 * time.Second

// EventLoop runs periodic maintenance while the daemon is up
type EventLoop struct {
	daemon   *Daemon
	interval time.Duration
}

// NewEventLoop creates a new event loop. A zero interval uses the default.
func NewEventLoop(d *Daemon, interval time.Duration) *EventLoop {
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}
	return &EventLoop{
		daemon:   d,
		interval: interval,
	}
}

// Run ticks until ctx is cancelled
func (e *EventLoop) Run(ctx context.Context) {
	e.daemon.log.Info().Msg("Event loop started")

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.daemon.log.Info().Msg("Event loop stopping")
			return

		case <-ticker.C:
			e.processTasks()
		}
	}
}

// processTasks logs a per-state summary of live sessions
func (e *EventLoop) processTasks() map[session.State]int {
	counts := make(map[session.State]int)
	for _, st := range e.daemon.registry.List() {
		counts[st.State]++
	}
	if len(counts) == 0 {
		return counts
	}

	event := e.daemon.log.Debug()
	for state, n := range counts {
		event = event.Int(string(state), n)
	}
	event.Msg("Session stats")
	return counts
}
