// Package jobs contains the background jobs run by the worker scheduler.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-hub/internal/application/session"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/logger"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADJUST WEEK JOB
// ══════════════════════════════════════════════════════════════════════════════

// Adjuster plans and applies one account's week.
type Adjuster interface {
	AdjustWeek(ctx context.Context, account shared.AccountID, today timeutil.Date, pullEarlier []string) (session.AdjustReport, error)
}

// AccountSource lists the accounts to adjust on each run.
type AccountSource func() []shared.AccountID

// StaticAccounts returns a source yielding the given ids.
func StaticAccounts(ids ...string) AccountSource {
	accounts := make([]shared.AccountID, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			accounts = append(accounts, shared.AccountID(id))
		}
	}
	return func() []shared.AccountID { return accounts }
}

// AdjustWeekConfig contains configuration for the job.
type AdjustWeekConfig struct {
	// Concurrency is the number of accounts adjusted in parallel.
	Concurrency int

	// Timeout bounds the whole run.
	Timeout time.Duration

	Location *time.Location
	Clock    timeutil.Clock
	Logger   *logger.Logger
}

// DefaultAdjustWeekConfig returns sensible defaults.
func DefaultAdjustWeekConfig() AdjustWeekConfig {
	return AdjustWeekConfig{
		Concurrency: 4,
		Timeout:     2 * time.Minute,
		Location:    time.UTC,
		Clock:       timeutil.SystemClock{},
		Logger:      logger.Default(),
	}
}

// AdjustRunStats summarises one run.
type AdjustRunStats struct {
	StartedAt time.Time
	Accounts  int
	Applied   int
	Failed    int
	Planned   int
}

// AdjustWeekJob moves missed events forward for every account.
type AdjustWeekJob struct {
	adjuster Adjuster
	accounts AccountSource
	config   AdjustWeekConfig
	log      *logger.Logger

	mu   sync.Mutex
	last AdjustRunStats
}

// NewAdjustWeekJob creates the job.
func NewAdjustWeekJob(adjuster Adjuster, accounts AccountSource, config AdjustWeekConfig) *AdjustWeekJob {
	def := DefaultAdjustWeekConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	if config.Clock == nil {
		config.Clock = def.Clock
	}
	if config.Logger == nil {
		config.Logger = def.Logger
	}

	return &AdjustWeekJob{
		adjuster: adjuster,
		accounts: accounts,
		config:   config,
		log:      config.Logger.Named("adjust_week"),
	}
}

// Name returns the job name.
func (j *AdjustWeekJob) Name() string { return "adjust_week" }

// Description returns a human-readable description.
func (j *AdjustWeekJob) Description() string {
	return "Moves missed events to next Monday and flagged events to the lightest remaining day of this week"
}

// Run adjusts each account. One account's failure does not stop the others;
// all failures are returned together.
func (j *AdjustWeekJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	accounts := j.accounts()
	today := timeutil.Today(j.config.Clock, j.config.Location)
	stats := AdjustRunStats{StartedAt: j.config.Clock.Now(), Accounts: len(accounts)}

	var (
		mu       sync.Mutex
		combined error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, account := range accounts {
		g.Go(func() error {
			report, err := j.adjuster.AdjustWeek(gctx, account, today, nil)

			mu.Lock()
			defer mu.Unlock()
			stats.Applied += len(report.Applied)
			stats.Failed += len(report.Failed)
			stats.Planned += len(report.Plan.MovedMissed)
			if err == nil {
				err = report.Err()
			}
			if err != nil {
				combined = multierr.Append(combined, fmt.Errorf("account %s: %w", account, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	j.mu.Lock()
	j.last = stats
	j.mu.Unlock()

	j.log.Info("week adjusted",
		logger.Int("accounts", stats.Accounts),
		logger.Int("applied", stats.Applied),
		logger.Int("failed", stats.Failed),
		logger.Int("planned", stats.Planned),
		logger.Stringer("today", today),
	)

	return combined
}

// LastRun returns statistics from the most recent run.
func (j *AdjustWeekJob) LastRun() AdjustRunStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
