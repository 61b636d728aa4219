package gameclienttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/afkd/pkg/gameclient"
)

func TestDialer_UnreadAttemptsDoNotBlock(t *testing.T) {
	d := NewDialer()
	refused := errors.New("refused")
	d.OnConnect = func(c *Conn) error { return refused }

	const attempts = 200
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < attempts; i++ {
			_, err := d.Connect(context.Background(), gameclient.Config{Host: "mc.local"})
			assert.ErrorIs(t, err, refused)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect blocked on unread attempts")
	}

	assert.Equal(t, attempts, d.Attempts())
	assert.Len(t, d.Conns(), attempts)
	require.NotNil(t, d.NextConn(10*time.Millisecond))
}

func TestDialer_NextConn(t *testing.T) {
	d := NewDialer().AutoConnect()

	assert.Nil(t, d.NextConn(10*time.Millisecond))

	conn, err := d.Connect(context.Background(), gameclient.Config{Host: "mc.local"})
	require.NoError(t, err)

	got := d.NextConn(time.Second)
	require.NotNil(t, got)
	assert.Same(t, conn, got)
}
