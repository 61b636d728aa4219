package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/gameclient/gameclienttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *gameclienttest.Conn {
	t.Helper()
	conn, err := gameclienttest.NewDialer().Connect(context.Background(), gameclient.Config{Host: "localhost"})
	require.NoError(t, err)
	return conn.(*gameclienttest.Conn)
}

func TestSafetyConfig_WithDefaults(t *testing.T) {
	cfg := SafetyConfig{}.WithDefaults()
	assert.Equal(t, DefaultSafetyInterval, cfg.Interval)
	assert.Equal(t, DefaultIdleThreshold, cfg.IdleThreshold)
	assert.Equal(t, DefaultPulseDuration, cfg.Pulse)

	cfg = SafetyConfig{Interval: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, cfg.Interval)
}

func TestSafetyLoop_ArmDisarm(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{Interval: 5 * time.Millisecond}, nil)
	assert.False(t, loop.Armed())
	assert.Nil(t, loop.C())

	loop.Arm()
	require.True(t, loop.Armed())

	select {
	case <-loop.C():
	case <-time.After(time.Second):
		t.Fatal("armed loop did not tick")
	}

	loop.Disarm()
	assert.False(t, loop.Armed())
	assert.Nil(t, loop.C())

	// Disarming twice is harmless.
	loop.Disarm()
}

func TestSafetyLoop_DisabledNeverArms(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{Disabled: true}, nil)
	loop.Arm()
	assert.False(t, loop.Armed())
}

func TestSafetyLoop_Due(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{IdleThreshold: 5 * time.Minute}, nil)
	now := time.Now()

	assert.False(t, loop.Due(now.Add(-time.Minute), now))
	assert.False(t, loop.Due(now.Add(-5*time.Minute), now))
	assert.True(t, loop.Due(now.Add(-6*time.Minute), now))
}

func TestSafetyLoop_PickIsDeterministicWithSeed(t *testing.T) {
	a := NewSafetyLoop(SafetyConfig{}, rand.New(rand.NewSource(7)))
	b := NewSafetyLoop(SafetyConfig{}, rand.New(rand.NewSource(7)))

	seen := map[Action]bool{}
	for i := 0; i < 50; i++ {
		action := a.Pick()
		assert.Equal(t, action, b.Pick())
		seen[action] = true
	}
	assert.Len(t, seen, len(safetyActions))
}

func TestSafetyLoop_PerformPulsesControls(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{Pulse: time.Millisecond}, nil)

	tests := []struct {
		action  Action
		control gameclient.Control
	}{
		{ActionJump, gameclient.ControlJump},
		{ActionStepForward, gameclient.ControlForward},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			conn := newTestConn(t)
			require.NoError(t, loop.Perform(context.Background(), conn, tt.action))
			assert.Equal(t, []gameclienttest.ControlChange{
				{Control: tt.control, Active: true},
				{Control: tt.control, Active: false},
			}, conn.Controls())
		})
	}
}

func TestSafetyLoop_PerformLookAndSwing(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{}, rand.New(rand.NewSource(1)))
	conn := newTestConn(t)

	require.NoError(t, loop.Perform(context.Background(), conn, ActionLookAround))
	require.NoError(t, loop.Perform(context.Background(), conn, ActionSwingArm))

	assert.Equal(t, 1, conn.Looks())
	assert.Equal(t, 1, conn.Swings())
	assert.Empty(t, conn.Controls())
}

func TestSafetyLoop_ControlClearedWhenPressFails(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{Pulse: time.Millisecond}, nil)
	conn := newTestConn(t)
	conn.FailControls(errors.New("no movement"))

	err := loop.Perform(context.Background(), conn, ActionJump)
	require.Error(t, err)

	controls := conn.Controls()
	require.Len(t, controls, 2)
	assert.Equal(t, gameclienttest.ControlChange{Control: gameclient.ControlJump, Active: false}, controls[1])
}

func TestSafetyLoop_ControlClearedWhenCancelled(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{Pulse: time.Hour}, nil)
	conn := newTestConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	require.NoError(t, loop.Perform(ctx, conn, ActionStepForward))
	assert.Less(t, time.Since(start), time.Second)

	controls := conn.Controls()
	require.Len(t, controls, 2)
	assert.False(t, controls[1].Active)
}

func TestSafetyLoop_UnknownAction(t *testing.T) {
	loop := NewSafetyLoop(SafetyConfig{}, nil)
	assert.Error(t, loop.Perform(context.Background(), newTestConn(t), Action("dance")))
}
