package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultPruneSchedule runs retention hourly at minute 17.
	DefaultPruneSchedule = "17 * * * *"
	DefaultRetention     = 30 * 24 * time.Hour
	pruneTimeout         = time.Minute
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule checks a 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := scheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Pruner periodically removes runs older than the retention window.
type Pruner struct {
	store     *Store
	retention time.Duration
	schedule  string
	logger    zerolog.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// NewPruner creates a pruner. Empty schedule and zero retention use defaults.
func NewPruner(store *Store, schedule string, retention time.Duration, logger zerolog.Logger) (*Pruner, error) {
	if store == nil {
		return nil, errors.New("history store is required")
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := ValidateSchedule(schedule); err != nil {
		return nil, err
	}

	return &Pruner{
		store:     store,
		retention: retention,
		schedule:  schedule,
		logger:    logger.With().Str("component", "history_pruner").Logger(),
		now:       time.Now,
	}, nil
}

// Start registers the prune job and starts the scheduler
func (p *Pruner) Start() error {
	if p.cron != nil {
		return fmt.Errorf("pruner is already running")
	}

	c := cron.New(cron.WithParser(scheduleParser))
	if _, err := c.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error().Err(err).Msg("Failed to prune history")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron = c
	c.Start()

	p.logger.Info().
		Str("schedule", p.schedule).
		Dur("retention", p.retention).
		Msg("History pruner started")
	return nil
}

// Stop stops the scheduler and waits for a running prune to finish or ctx
// to expire.
func (p *Pruner) Stop(ctx context.Context) error {
	if p.cron == nil {
		return fmt.Errorf("pruner is not running")
	}

	done := p.cron.Stop()
	p.cron = nil

	select {
	case <-done.Done():
		p.logger.Info().Msg("History pruner stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info().Int64("pruned", n).Time("cutoff", cutoff).Msg("Pruned archived runs")
	}
	return n, nil
}
