// Package background runs scheduled maintenance outside the request cycle.
package background

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	codeSweepSchedule  = "@every 1m"
	tokenSweepSchedule = "@every 10m"
	sweepTimeout       = 30 * time.Second
)

// CodeStore clears one-time codes past their expiry.
type CodeStore interface {
	ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenStore deletes reset tokens past their expiry.
type ResetTokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically removes expired one-time codes and reset tokens.
type Sweeper struct {
	cron   *cron.Cron
	codes  CodeStore
	tokens ResetTokenStore
	logger logrus.FieldLogger
	now    func() time.Time

	codeSchedule  string
	tokenSchedule string
}

// NewSweeper creates a Sweeper. Call Start to schedule it.
func NewSweeper(codes CodeStore, tokens ResetTokenStore, logger logrus.FieldLogger) *Sweeper {
	return &Sweeper{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		codes:         codes,
		tokens:        tokens,
		logger:        logger.WithField("component", "sweeper"),
		now:           time.Now,
		codeSchedule:  codeSweepSchedule,
		tokenSchedule: tokenSweepSchedule,
	}
}

// Start schedules the sweeps and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.codeSchedule, s.sweepCodes); err != nil {
		return fmt.Errorf("schedule code sweep: %w", err)
	}
	if _, err := s.cron.AddFunc(s.tokenSchedule, s.sweepTokens); err != nil {
		return fmt.Errorf("schedule reset token sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info("sweeper started")
	return nil
}

// Stop stops scheduling and waits for running sweeps or for ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) sweepCodes() {
	s.run("one-time codes", s.codes.ClearExpiredCodes)
}

func (s *Sweeper) sweepTokens() {
	s.run("reset tokens", s.tokens.DeleteExpired)
}

func (s *Sweeper) run(what string, sweep func(context.Context, time.Time) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := sweep(ctx, s.now())
	entry := s.logger.WithField("target", what)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		entry.Errorf("sweep timed out after %v", sweepTimeout)
	case err != nil:
		entry.WithError(err).Error("sweep failed")
	case n > 0:
		entry.WithField("removed", n).Info("expired entries removed")
	default:
		entry.Debug("nothing to sweep")
	}
}
