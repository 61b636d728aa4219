package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/harun/afkd/pkg/gameclient"
)

// Action is an idle-prevention gesture.
type Action string

const (
	ActionJump        Action = "jump"
	ActionStepForward Action = "step_forward"
	ActionLookAround  Action = "look_around"
	ActionSwingArm    Action = "swing_arm"
)

var safetyActions = []Action{ActionJump, ActionStepForward, ActionLookAround, ActionSwingArm}

const (
	DefaultSafetyInterval = 30 * time.Second
	DefaultIdleThreshold  = 5 * time.Minute
	DefaultPulseDuration  = 500 * time.Millisecond
)

// SafetyConfig controls the anti-idle loop.
type SafetyConfig struct {
	Disabled      bool
	Interval      time.Duration
	IdleThreshold time.Duration
	Pulse         time.Duration
}

// DefaultSafetyConfig returns the production anti-idle timings.
func DefaultSafetyConfig() SafetyConfig {
	return SafetyConfig{
		Interval:      DefaultSafetyInterval,
		IdleThreshold: DefaultIdleThreshold,
		Pulse:         DefaultPulseDuration,
	}
}

// WithDefaults fills zero durations.
func (c SafetyConfig) WithDefaults() SafetyConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSafetyInterval
	}
	if c.IdleThreshold <= 0 {
		c.IdleThreshold = DefaultIdleThreshold
	}
	if c.Pulse <= 0 {
		c.Pulse = DefaultPulseDuration
	}
	return c
}

// SafetyLoop keeps an online bot from being idle-kicked. It holds a ticker
// only while armed, and it is driven by the owning session goroutine, so it
// is not safe for concurrent use.
type SafetyLoop struct {
	cfg    SafetyConfig
	rng    *rand.Rand
	ticker *time.Ticker
}

// NewSafetyLoop creates a disarmed loop. A nil rng is seeded from the clock.
func NewSafetyLoop(cfg SafetyConfig, rng *rand.Rand) *SafetyLoop {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &SafetyLoop{cfg: cfg.WithDefaults(), rng: rng}
}

// Arm starts the ticker. Arming an armed or disabled loop does nothing.
func (l *SafetyLoop) Arm() {
	if l.cfg.Disabled || l.ticker != nil {
		return
	}
	l.ticker = time.NewTicker(l.cfg.Interval)
}

// Disarm stops and releases the ticker.
func (l *SafetyLoop) Disarm() {
	if l.ticker == nil {
		return
	}
	l.ticker.Stop()
	l.ticker = nil
}

// Armed reports whether the ticker is running.
func (l *SafetyLoop) Armed() bool {
	return l.ticker != nil
}

// C returns the tick channel, or nil while disarmed so a select on it blocks.
func (l *SafetyLoop) C() <-chan time.Time {
	if l.ticker == nil {
		return nil
	}
	return l.ticker.C
}

// Due reports whether the bot has been idle longer than the threshold.
func (l *SafetyLoop) Due(lastActivity, now time.Time) bool {
	return now.Sub(lastActivity) > l.cfg.IdleThreshold
}

// Pick chooses the next action.
func (l *SafetyLoop) Pick() Action {
	return safetyActions[l.rng.Intn(len(safetyActions))]
}

// Perform runs one action on conn. Held controls are always released before
// it returns, including when ctx is cancelled mid-pulse.
func (l *SafetyLoop) Perform(ctx context.Context, conn gameclient.Conn, action Action) error {
	switch action {
	case ActionJump:
		return l.pulse(ctx, conn, gameclient.ControlJump)
	case ActionStepForward:
		return l.pulse(ctx, conn, gameclient.ControlForward)
	case ActionLookAround:
		yaw := l.rng.Float64() * 2 * math.Pi
		pitch := (l.rng.Float64() - 0.5) * math.Pi / 2
		if err := conn.Look(yaw, pitch); err != nil {
			return fmt.Errorf("failed to look around: %w", err)
		}
		return nil
	case ActionSwingArm:
		if err := conn.SwingArm(); err != nil {
			return fmt.Errorf("failed to swing arm: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown safety action %q", action)
	}
}

func (l *SafetyLoop) pulse(ctx context.Context, conn gameclient.Conn, control gameclient.Control) (err error) {
	defer func() {
		if clearErr := conn.SetControlState(control, false); clearErr != nil && err == nil {
			err = fmt.Errorf("failed to release %s: %w", control, clearErr)
		}
	}()

	if err := conn.SetControlState(control, true); err != nil {
		return fmt.Errorf("failed to press %s: %w", control, err)
	}

	timer := time.NewTimer(l.cfg.Pulse)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return nil
}
