package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/harun/afkd/internal/tracing"
	"github.com/harun/afkd/pkg/eventlog"
	"github.com/harun/afkd/pkg/gameclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const archiveTimeout = 5 * time.Second

// RegistryOptions configures a Registry. Only Dialer is required.
type RegistryOptions struct {
	Dialer   gameclient.Dialer
	Config   Config
	Logger   *zerolog.Logger
	Recorder Recorder
	Archiver Archiver
	// Rand, if set, seeds each session's anti-idle action choice.
	Rand func() *rand.Rand
}

// Registry owns every live Session, keyed by identity, and remembers the
// final snapshot of the last ended session per identity.
type Registry struct {
	dialer   gameclient.Dialer
	cfg      Config
	logger   zerolog.Logger
	recorder Recorder
	archiver Archiver
	rng      func() *rand.Rand

	mu         sync.Mutex
	sessions   map[string]*Session
	tombstones map[string]Status
	closed     bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrValidation)
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Registry{
		dialer:     opts.Dialer,
		cfg:        opts.Config.WithDefaults(),
		logger:     logger,
		recorder:   recorder,
		archiver:   opts.Archiver,
		rng:        opts.Rand,
		sessions:   make(map[string]*Session),
		tombstones: make(map[string]Status),
	}, nil
}

// ValidateIdentity checks that identity is usable as a registry key.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: identity cannot be empty", ErrValidation)
	}
	if len(identity) > MaxIdentityLength {
		return fmt.Errorf("%w: identity longer than %d characters", ErrValidation, MaxIdentityLength)
	}
	if strings.ContainsAny(identity, "/\\\x00") {
		return fmt.Errorf("%w: identity cannot contain path separators", ErrValidation)
	}
	if strings.IndexFunc(identity, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: identity cannot contain whitespace", ErrValidation)
	}
	return nil
}

// ValidateCommand checks chat command text.
func ValidateCommand(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: command cannot be empty", ErrValidation)
	}
	if len([]rune(text)) > MaxCommandLength {
		return fmt.Errorf("%w: command longer than %d characters", ErrValidation, MaxCommandLength)
	}
	return nil
}

// StartSession creates and starts a session for identity, then waits until it
// is Online or has failed. A session that is not Online within StartTimeout
// is stopped and removed.
func (r *Registry) StartSession(ctx context.Context, identity string, cfg gameclient.Config) (st Status, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSession, "session.start",
		attribute.String("identity", identity),
		attribute.String("server", cfg.Address()),
	)
	defer func() { tracing.EndSpan(span, err) }()

	if err := ValidateIdentity(identity); err != nil {
		return Status{}, err
	}
	if cfg.Username == "" {
		cfg.Username = gameclient.DefaultUsername(identity)
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Status{}, fmt.Errorf("registry is shut down: %w", ErrStopped)
	}
	if _, exists := r.sessions[identity]; exists {
		r.mu.Unlock()
		return Status{}, fmt.Errorf("%w: %s", ErrAlreadyActive, identity)
	}

	var rng *rand.Rand
	if r.rng != nil {
		rng = r.rng()
	}
	s := newSession(sessionParams{
		parent:   ctx,
		identity: identity,
		cfg:      cfg,
		opts:     r.cfg,
		dialer:   r.dialer,
		logger:   r.logger,
		recorder: r.recorder,
		rng:      rng,
		onExit:   r.sessionEnded,
	})
	r.sessions[identity] = s
	delete(r.tombstones, identity)
	r.mu.Unlock()

	span.SetAttributes(attribute.String("run_id", s.RunID()))
	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Info().Str("identity", identity).Str("server", cfg.Address()).Str("run_id", s.RunID()).Msg("Starting session")

	began := time.Now()
	s.start()

	wait := time.NewTimer(r.cfg.StartTimeout)
	defer wait.Stop()

	select {
	case <-s.resolved:
		if s.startErr != nil {
			r.recorder.StartDuration(time.Since(began), false)
			<-s.done
			return Status{}, s.startErr
		}
		r.recorder.StartDuration(time.Since(began), true)
		return s.Status(0), nil

	case <-wait.C:
		err = fmt.Errorf("%w: %s not online within %s", ErrConnectTimeout, identity, r.cfg.StartTimeout)
	case <-ctx.Done():
		err = fmt.Errorf("%w: %w", ErrConnectTimeout, ctx.Err())
	}

	if last := s.snapshot.Load().Error; last != "" {
		err = fmt.Errorf("%w (last error: %s)", err, last)
	}
	r.recorder.StartDuration(time.Since(began), false)

	stopCtx, cancel := context.WithTimeout(context.Background(), r.cfg.ConnectTimeout)
	defer cancel()
	if stopErr := s.Stop(stopCtx); stopErr != nil {
		logger.Warn().Err(stopErr).Str("identity", identity).Msg("Session did not stop cleanly after start timeout")
	}
	r.remove(s)

	return Status{}, err
}

// StopSession stops the identity's session and removes it from the registry.
// The entry is removed even if the session fails to stop in time.
func (r *Registry) StopSession(ctx context.Context, identity string) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSession, "session.stop", attribute.String("identity", identity))
	defer func() { tracing.EndSpan(span, err) }()

	s, ok := r.lookup(identity)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}

	err = s.Stop(ctx)
	r.remove(s)

	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Info().Str("identity", identity).Str("run_id", s.RunID()).Msg("Session stopped")
	return err
}

// SendCommand sends text as chat from the identity's bot.
func (r *Registry) SendCommand(ctx context.Context, identity, text string) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.TracerSession, "session.command", attribute.String("identity", identity))
	defer func() { tracing.EndSpan(span, err) }()

	if err := ValidateCommand(text); err != nil {
		return err
	}
	s, ok := r.lookup(identity)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return s.Send(ctx, text)
}

// GetStatus returns the identity's live status, or the final status of its
// last ended session with Active false. Only log entries after since are
// included.
func (r *Registry) GetStatus(identity string, since eventlog.Cursor) (Status, error) {
	r.mu.Lock()
	s, live := r.sessions[identity]
	tomb, ended := r.tombstones[identity]
	r.mu.Unlock()

	switch {
	case live:
		return s.Status(since), nil
	case ended:
		return tomb.since(since), nil
	default:
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
}

// List returns the status of every live session ordered by identity,
// without log entries.
func (r *Registry) List() []Status {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		st := s.Status(s.activity.Cursor())
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every session and rejects new starts.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			r.remove(s)
		}(s)
	}
	wg.Wait()

	r.logger.Info().Int("sessions", len(sessions)).Msg("Session registry shut down")
	return errors.Join(errs...)
}

func (r *Registry) lookup(identity string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[identity]
	return s, ok
}

// remove drops s from the live map if it is still the registered session for
// its identity.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.identity]; ok && cur == s {
		delete(r.sessions, s.identity)
	}
}

// sessionEnded runs on the session goroutine after all resources are
// released and before Done is closed.
func (r *Registry) sessionEnded(s *Session) {
	final := s.Status(0)

	r.mu.Lock()
	if cur, ok := r.sessions[s.identity]; ok && cur == s {
		delete(r.sessions, s.identity)
	}
	r.tombstones[s.identity] = final
	r.mu.Unlock()

	if r.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(tracing.MergeContext(context.Background(), s.ctx), archiveTimeout)
	defer cancel()
	if err := r.archiver.ArchiveRun(ctx, s.record()); err != nil {
		s.logger.Error().Err(err).Msg("Failed to archive session run")
	}
}

func (st Status) since(cursor eventlog.Cursor) Status {
	logs := make([]eventlog.Entry, 0, len(st.Logs))
	for _, e := range st.Logs {
		if e.Seq > cursor {
			logs = append(logs, e)
		}
	}
	st.Logs = logs
	if st.Cursor < cursor {
		st.Cursor = cursor
	}
	return st
}
