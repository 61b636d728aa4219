package session

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/afkd/internal/tracing"
	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/harun/afkd/pkg/kick"
	"github.com/harun/afkd/pkg/reconnect"
	"github.com/rs/zerolog"
)

type commandRequest struct {
	text  string
	reply chan error
}

// Session drives one identity's connection through its lifecycle. All
// mutable state below the marker is owned by the run goroutine.
type Session struct {
	identity  string
	runID     string
	dialer    gameclient.Dialer
	opts      Config
	activity  *eventlog.Log
	logger    zerolog.Logger
	recorder  Recorder
	safety    *SafetyLoop
	startedAt time.Time
	onExit    func(*Session)

	ctx    context.Context
	cancel context.CancelFunc

	commands    chan commandRequest
	done        chan struct{}
	resolved    chan struct{}
	resolveOnce sync.Once
	startErr    error
	snapshot    atomic.Pointer[Status]

	// owned by run
	cfg             gameclient.Config
	state           State
	conn            gameclient.Conn
	connEvents      <-chan gameclient.Event
	attempts        int
	reconnected     bool
	versionRetried  bool
	telemetry       gameclient.Telemetry
	lastActivity    time.Time
	lastPositionLog time.Time
	lastError       string
	err             error
	endedAt         time.Time
	connectTimer    *time.Timer
	reconnectTimer  *time.Timer
}

type sessionParams struct {
	parent   context.Context
	identity string
	cfg      gameclient.Config
	opts     Config
	dialer   gameclient.Dialer
	logger   zerolog.Logger
	recorder Recorder
	rng      *rand.Rand
	onExit   func(*Session)
}

func newSession(p sessionParams) *Session {
	runID := tracing.NewRunID()
	ctx, cancel := context.WithCancel(tracing.NewSessionContext(p.parent, p.identity, runID))
	now := time.Now()

	s := &Session{
		identity:     p.identity,
		runID:        runID,
		dialer:       p.dialer,
		opts:         p.opts,
		activity:     eventlog.New(p.opts.LogCapacity),
		logger:       tracing.LoggerFromContext(ctx, p.logger).With().Str("component", "session").Logger(),
		recorder:     p.recorder,
		safety:       NewSafetyLoop(p.opts.Safety, p.rng),
		startedAt:    now,
		onExit:       p.onExit,
		ctx:          ctx,
		cancel:       cancel,
		commands:     make(chan commandRequest),
		done:         make(chan struct{}),
		resolved:     make(chan struct{}),
		cfg:          p.cfg,
		state:        StateConnecting,
		lastActivity: now,
	}
	s.publish()
	return s
}

// Identity returns the owning identity.
func (s *Session) Identity() string { return s.identity }

// RunID returns the unique id of this run.
func (s *Session) RunID() string { return s.runID }

// Done is closed once the session has released every resource.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error. It is only meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Session) start() {
	s.recorder.SessionStarted()
	go s.run()
}

// Stop requests shutdown and waits until the session has released its
// connection, timers and safety ticker.
func (s *Session) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to stop session %s: %w", s.identity, ctx.Err())
	}
}

// Send delivers text as a chat message. It fails with ErrNotOnline unless the
// session is Online when the request is processed.
func (s *Session) Send(ctx context.Context, text string) error {
	req := commandRequest{text: text, reply: make(chan error, 1)}

	select {
	case s.commands <- req:
	case <-s.done:
		return fmt.Errorf("%w: %w", ErrNotOnline, ErrStopped)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the latest snapshot with log entries newer than since.
func (s *Session) Status(since eventlog.Cursor) Status {
	st := *s.snapshot.Load()

	end := time.Now()
	if st.EndedAt != nil {
		end = *st.EndedAt
	}
	st.UptimeSeconds = int64(end.Sub(st.StartedAt).Seconds())

	st.Logs, st.Cursor = s.activity.ReadSince(since)
	if st.Logs == nil {
		st.Logs = []eventlog.Entry{}
	}
	return st
}

func (s *Session) run() {
	defer s.exit()

	s.connect(fmt.Sprintf("connecting to %s as %s (version %s)", s.cfg.Address(), s.cfg.Username, s.cfg.Version))
	s.publish()

	for !s.state.Terminal() {
		select {
		case <-s.ctx.Done():
			s.shutdown()
		case ev, ok := <-s.connEvents:
			if !ok {
				s.connEvents = nil
				ev = gameclient.Disconnected("")
			}
			s.handleEvent(ev)
		case <-timerC(s.connectTimer):
			s.connectTimer = nil
			s.attemptFailed(reconnect.CauseConnectTimeout, kick.Result{Classification: kick.Unknown},
				fmt.Sprintf("connection to %s timed out after %s", s.cfg.Address(), s.opts.ConnectTimeout),
				ErrConnectTimeout)
		case <-timerC(s.reconnectTimer):
			s.reconnectTimer = nil
			s.attempts++
			s.connect(fmt.Sprintf("reconnecting to %s (attempt %d/%d)", s.cfg.Address(), s.attempts, s.opts.Policy.MaxAttempts))
		case <-s.safety.C():
			s.safetyTick()
		case req := <-s.commands:
			req.reply <- s.handleCommand(req.text)
		}
		s.publish()
	}
}

func (s *Session) exit() {
	s.release()
	s.endedAt = time.Now()
	if s.err == nil && !s.state.Terminal() {
		s.err = ErrStopped
	}
	s.publish()
	s.resolve(s.err)
	s.cancel()

	s.recorder.SessionEnded()
	s.logger.Info().Str("state", string(s.state)).Int("reconnect_attempts", s.attempts).Msg("Session ended")

	if s.onExit != nil {
		s.onExit(s)
	}
	close(s.done)
}

func (s *Session) shutdown() {
	s.transition(StateDisconnecting, eventlog.TypeInfo, fmt.Sprintf("disconnecting from %s", s.cfg.Address()))
	s.release()
	s.err = ErrStopped
	s.transition(StateDisconnected, eventlog.TypeInfo, "session stopped")
}

// resolve unblocks StartSession with the outcome of the first Online or
// terminal state. Later calls are ignored.
func (s *Session) resolve(err error) {
	s.resolveOnce.Do(func() {
		s.startErr = err
		close(s.resolved)
	})
}

func (s *Session) connect(msg string) {
	s.transition(StateConnecting, eventlog.TypeInfo, msg)

	conn, err := s.dialer.Connect(s.ctx, s.cfg)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.attemptFailed(reconnect.CauseConnectError, kick.Classify(err.Error()),
			fmt.Sprintf("failed to connect to %s: %v", s.cfg.Address(), err),
			fmt.Errorf("%w: %w", ErrConnection, err))
		return
	}

	s.conn = conn
	s.connEvents = conn.Events()
	s.connectTimer = time.NewTimer(s.opts.ConnectTimeout)
}

// attemptFailed handles the end of a connection or connection attempt and
// decides between the version retry, a scheduled reconnect and failure.
func (s *Session) attemptFailed(cause reconnect.Cause, res kick.Result, what string, err error) {
	stopTimer(&s.connectTimer)
	s.safety.Disarm()
	s.releaseConn()
	s.lastError = what

	if res.Classification == kick.VersionMismatch && res.TargetVersion != "" &&
		!s.versionRetried && res.TargetVersion != s.cfg.Version {
		s.versionRetried = true
		s.cfg.Version = res.TargetVersion
		s.connect(fmt.Sprintf("%s; server wants version %s, retrying once with it", what, res.TargetVersion))
		return
	}

	if !kick.Retryable(res.Classification) {
		s.fail(fmt.Sprintf("%s; not reconnecting: %s", what, kick.Describe(res.Classification)),
			fmt.Errorf("%w (%s): %w", ErrNonRetryableDisconnect, res.Classification, err))
		return
	}

	if !s.opts.Policy.ShouldRetry(res.Classification, s.attempts) {
		s.fail(fmt.Sprintf("%s; giving up after %d reconnect attempts", what, s.attempts),
			fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, s.attempts, err))
		return
	}

	delay := s.opts.Policy.NextDelay(cause)
	s.recorder.ReconnectScheduled(cause)
	s.transition(StateReconnecting, eventlog.TypeWarning,
		fmt.Sprintf("%s; reconnecting in %s (attempt %d/%d)", what, delay, s.attempts+1, s.opts.Policy.MaxAttempts))
	s.reconnectTimer = time.NewTimer(delay)
}

func (s *Session) fail(msg string, err error) {
	s.err = err
	s.lastError = msg
	s.transition(StateFailed, eventlog.TypeError, msg)
	s.resolve(err)
}

func (s *Session) handleEvent(ev gameclient.Event) {
	addr := s.cfg.Address()

	switch ev.Kind {
	case gameclient.EventConnected:
		s.handleConnected(ev)

	case gameclient.EventKicked:
		res := kick.Classify(ev.Reason)
		s.recorder.Kicked(res.Classification)
		s.connectionEnded(reconnect.CauseKick, res,
			fmt.Sprintf("kicked from %s: %s", addr, orNone(res.Reason)),
			fmt.Errorf("%w: kicked: %s", ErrConnection, orNone(res.Reason)))

	case gameclient.EventDisconnected:
		res := kick.Classify(ev.Reason)
		what := fmt.Sprintf("disconnected from %s", addr)
		if res.Reason != "" {
			what += ": " + res.Reason
		}
		s.connectionEnded(reconnect.CauseDisconnect, res, what,
			fmt.Errorf("%w: connection lost", ErrConnection))

	case gameclient.EventError:
		text := errText(ev.Err)
		if s.state == StateConnecting {
			s.attemptFailed(reconnect.CauseConnectError, kick.Classify(text),
				fmt.Sprintf("connection error on %s: %s", addr, text),
				fmt.Errorf("%w: %s", ErrConnection, text))
			return
		}
		s.activity.Append(eventlog.TypeError, "error: "+text)
		s.logger.Warn().Str("error", text).Msg("Game client error")

	case gameclient.EventChat:
		s.activity.Append(eventlog.TypeChat, fmt.Sprintf("<%s> %s", ev.Sender, ev.Text))
		s.touch()

	case gameclient.EventTelemetry:
		if ev.Telemetry != nil {
			s.applyTelemetry(*ev.Telemetry)
		}
		s.touch()

	case gameclient.EventDeath:
		s.activity.Append(eventlog.TypeWarning, "bot died")

	case gameclient.EventRespawn:
		s.activity.Append(eventlog.TypeInfo, "bot respawned")
		s.touch()

	case gameclient.EventPlayerJoined:
		if ev.Player != s.cfg.Username {
			s.activity.Append(eventlog.TypeEvent, ev.Player+" joined the game")
		}

	case gameclient.EventPlayerLeft:
		if ev.Player != s.cfg.Username {
			s.activity.Append(eventlog.TypeEvent, ev.Player+" left the game")
		}

	default:
		s.logger.Debug().Str("kind", string(ev.Kind)).Msg("Ignoring unknown game event")
	}
}

func (s *Session) handleConnected(ev gameclient.Event) {
	if s.state != StateConnecting {
		return
	}
	stopTimer(&s.connectTimer)

	if ev.Telemetry != nil {
		s.telemetry = *ev.Telemetry
	}
	if s.attempts > 0 {
		s.reconnected = true
	}
	s.lastError = ""
	s.touch()
	s.lastPositionLog = time.Now()

	s.transition(StateOnline, eventlog.TypeInfo,
		fmt.Sprintf("connected to %s as %s (version %s)", s.cfg.Address(), s.cfg.Username, s.cfg.Version))
	s.safety.Arm()
	s.resolve(nil)
}

func (s *Session) connectionEnded(cause reconnect.Cause, res kick.Result, what string, err error) {
	if s.state != StateOnline && s.state != StateConnecting {
		return
	}
	s.attemptFailed(cause, res, what, err)
}

func (s *Session) applyTelemetry(t gameclient.Telemetry) {
	s.telemetry = t
	if s.state != StateOnline {
		return
	}

	now := time.Now()
	if now.Sub(s.lastPositionLog) < s.opts.PositionLogInterval {
		return
	}
	s.lastPositionLog = now

	msg := fmt.Sprintf("position %.0f, %.0f, %.0f", math.Floor(t.Position.X), math.Floor(t.Position.Y), math.Floor(t.Position.Z))
	if t.Dimension != "" {
		msg += " in " + t.Dimension
	}
	s.activity.Append(eventlog.TypeInfo, msg)
}

func (s *Session) safetyTick() {
	if s.state != StateOnline || s.conn == nil {
		return
	}
	if !s.safety.Due(s.lastActivity, time.Now()) {
		return
	}

	action := s.safety.Pick()
	if err := s.safety.Perform(s.ctx, s.conn, action); err != nil {
		s.activity.Append(eventlog.TypeWarning, fmt.Sprintf("anti-idle %s failed: %v", action, err))
		s.logger.Warn().Err(err).Str("action", string(action)).Msg("Anti-idle action failed")
	} else {
		s.activity.Append(eventlog.TypeDebug, fmt.Sprintf("anti-idle %s", action))
	}
	s.recorder.SafetyAction(action)
	s.touch()
}

func (s *Session) handleCommand(text string) error {
	if s.state != StateOnline || s.conn == nil {
		return fmt.Errorf("%w: session is %s", ErrNotOnline, s.state)
	}
	if err := s.conn.SendChat(text); err != nil {
		s.activity.Append(eventlog.TypeError, fmt.Sprintf("failed to send %q: %v", text, err))
		return fmt.Errorf("%w: failed to send command: %w", ErrConnection, err)
	}

	s.activity.Append(eventlog.TypeCommand, text)
	s.recorder.CommandSent()
	s.touch()
	return nil
}

func (s *Session) transition(to State, typ eventlog.EntryType, msg string) {
	from := s.state
	s.state = to
	s.activity.Append(typ, msg)
	s.recorder.Transition(to)

	s.logger.WithLevel(levelFor(typ)).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("reconnect_attempts", s.attempts).
		Msg(msg)
}

func (s *Session) touch() {
	s.lastActivity = time.Now()
}

func (s *Session) release() {
	stopTimer(&s.connectTimer)
	stopTimer(&s.reconnectTimer)
	s.safety.Disarm()
	s.releaseConn()
}

func (s *Session) releaseConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Disconnect(); err != nil {
		s.logger.Debug().Err(err).Msg("Disconnect returned an error")
	}
	s.conn = nil
	s.connEvents = nil
}

func (s *Session) publish() {
	st := &Status{
		Identity:          s.identity,
		RunID:             s.runID,
		Active:            !s.state.Terminal(),
		State:             s.state,
		Health:            s.telemetry.Health,
		Food:              s.telemetry.Food,
		Position:          s.telemetry.Position,
		Dimension:         s.telemetry.Dimension,
		Server:            s.cfg.Address(),
		Version:           s.cfg.Version,
		BotName:           s.cfg.Username,
		ReconnectAttempts: s.attempts,
		Reconnected:       s.reconnected,
		StartedAt:         s.startedAt,
		LastActivityAt:    s.lastActivity,
		Error:             s.lastError,
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		st.EndedAt = &ended
	}
	s.snapshot.Store(st)
}

func (s *Session) record() RunRecord {
	st := s.snapshot.Load()
	logs, _ := s.activity.ReadSince(0)
	return RunRecord{
		RunID:             s.runID,
		Identity:          s.identity,
		Server:            st.Server,
		BotName:           st.BotName,
		Version:           st.Version,
		FinalState:        st.State,
		Reason:            st.Error,
		ReconnectAttempts: st.ReconnectAttempts,
		StartedAt:         st.StartedAt,
		EndedAt:           s.endedAt,
		Logs:              logs,
	}
}

func levelFor(typ eventlog.EntryType) zerolog.Level {
	switch typ {
	case eventlog.TypeError:
		return zerolog.ErrorLevel
	case eventlog.TypeWarning:
		return zerolog.WarnLevel
	case eventlog.TypeDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func orNone(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "no reason given"
	}
	return reason
}
