package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameclientConfig() gameclient.Config {
	return gameclient.Config{Host: "mc.example.net"}
}

func TestNewEventLoop(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))
	defer d.closeResources()

	assert.Equal(t, defaultMaintenanceInterval, NewEventLoop(d, 0).interval)
	assert.Equal(t, time.Second, NewEventLoop(d, time.Second).interval)
}

func TestEventLoopProcessTasks(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))
	defer d.closeResources()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.registry.Shutdown(ctx)
	})

	loop := NewEventLoop(d, time.Hour)
	assert.Empty(t, loop.processTasks())

	for _, id := range []string{"alice", "bob"} {
		_, err := d.registry.StartSession(context.Background(), id, gameclientConfig())
		require.NoError(t, err)
	}
	assert.Equal(t, map[session.State]int{session.StateOnline: 2}, loop.processTasks())
}

func TestEventLoopRunStopsOnCancel(t *testing.T) {
	d, _ := createTestDaemon(t, testConfig(t))
	defer d.closeResources()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewEventLoop(d, 5*time.Millisecond).Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop")
	}
}
