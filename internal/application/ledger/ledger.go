// Package ledger owns the in-process progress state of each account.
//
// A Ledger applies transactions to a local cache cell, tells observers about
// the new state and queues the remote write. Writes for one account are sent
// by a single goroutine, so they reach the store in call order. A write that
// keeps failing is reported and dropped; the local state is never rolled back.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/pkg/logger"
	"github.com/alem-hub/study-hub/pkg/retry"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// Operation names used in logs, metrics and events.
const (
	OpAddStudyMinutes = "add_study_minutes"
	OpUpdateCoins     = "update_coins"
	OpAddPoints       = "add_points"
	OpSetWeeklyGoal   = "set_weekly_goal"
	OpAddReward       = "add_reward"
	OpInitialize      = "initialize"
)

// ErrLedgerClosed is returned by transactions on a closed ledger.
var ErrLedgerClosed = shared.NewDomainError("ledger", "Apply", shared.ErrClosed, "ledger is closed")

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains ledger settings and collaborators.
type Config struct {
	// SyncMaxAttempts is the number of tries for one remote write.
	SyncMaxAttempts int

	// SyncInitialDelay is the first backoff delay between tries.
	SyncInitialDelay time.Duration

	// QueueSize bounds pending remote writes per account.
	// Transactions block when the queue is full.
	QueueSize int

	// Location defines the calendar day boundary.
	Location *time.Location

	// Clock provides "now". SystemClock when nil.
	Clock timeutil.Clock

	// Logger for structured logging.
	Logger *logger.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		SyncMaxAttempts:  4,
		SyncInitialDelay: 200 * time.Millisecond,
		QueueSize:        64,
		Location:         time.UTC,
		Clock:            timeutil.SystemClock{},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SyncMaxAttempts <= 0 {
		c.SyncMaxAttempts = def.SyncMaxAttempts
	}
	if c.SyncInitialDelay <= 0 {
		c.SyncInitialDelay = def.SyncInitialDelay
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Location == nil {
		c.Location = def.Location
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// syncJob is one queued remote write, or a flush barrier when done is set.
type syncJob struct {
	op       string
	stats    progress.ProgressStats
	queuedAt time.Time
	done     chan struct{}
}

// Ledger is the single writer of one account's progress.
type Ledger struct {
	account   shared.AccountID
	repo      progress.Repository
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	clock     timeutil.Clock
	loc       *time.Location
	log       *logger.Logger
	metrics   *metrics.Metrics

	mu      sync.Mutex
	state   progress.ProgressStats
	subs    map[int]chan progress.ProgressStats
	nextSub int
	closed  bool

	queue      chan syncJob
	syncCtx    context.Context
	syncCancel context.CancelFunc
	stopped    chan struct{}
}

// New creates a ledger over an already loaded state and starts its sync loop.
func New(account shared.AccountID, initial progress.ProgressStats, repo progress.Repository, publisher shared.EventPublisher, config Config) *Ledger {
	config = config.withDefaults()
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	log := config.Logger.With(logger.Component("ledger"), logger.AccountID(account.String()))
	l := &Ledger{
		account:   account,
		repo:      repo,
		publisher: publisher,
		retrier: retry.SyncRetrier(config.SyncMaxAttempts, config.SyncInitialDelay,
			retry.WithRetryIf(shared.IsRetryable),
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("progress sync attempt failed",
					logger.Int("attempt", attempt),
					logger.Duration("retry_in", delay),
					logger.Err(err),
				)
			}),
		),
		clock:      config.Clock,
		loc:        config.Location,
		log:        log,
		metrics:    config.Metrics,
		state:      initial.Clone(),
		subs:       make(map[int]chan progress.ProgressStats),
		queue:      make(chan syncJob, config.QueueSize),
		syncCtx:    ctx,
		syncCancel: cancel,
		stopped:    make(chan struct{}),
	}

	go l.syncLoop()
	return l
}

// Account returns the owning account.
func (l *Ledger) Account() shared.AccountID {
	return l.account
}

// Today returns the current date in the ledger's time zone.
func (l *Ledger) Today() timeutil.Date {
	return timeutil.Today(l.clock, l.loc)
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactions
// ─────────────────────────────────────────────────────────────────────────────

// AddStudyMinutes records study time for today. Non-positive minutes are a no-op.
func (l *Ledger) AddStudyMinutes(minutes int) (progress.ProgressStats, bool, error) {
	return l.apply(OpAddStudyMinutes, func(s progress.ProgressStats, today timeutil.Date) (progress.ProgressStats, bool) {
		return s.WithStudyMinutes(minutes, today)
	})
}

// UpdateCoins adds delta coins; the balance never drops below zero.
func (l *Ledger) UpdateCoins(delta int) (progress.ProgressStats, bool, error) {
	return l.apply(OpUpdateCoins, func(s progress.ProgressStats, _ timeutil.Date) (progress.ProgressStats, bool) {
		return s.WithCoins(delta)
	})
}

// AddPoints adds delta points; the balance never drops below zero.
func (l *Ledger) AddPoints(delta int) (progress.ProgressStats, bool, error) {
	return l.apply(OpAddPoints, func(s progress.ProgressStats, _ timeutil.Date) (progress.ProgressStats, bool) {
		return s.WithPoints(delta)
	})
}

// SetWeeklyGoal replaces the weekly goal.
func (l *Ledger) SetWeeklyGoal(minutes int) (progress.ProgressStats, bool, error) {
	return l.apply(OpSetWeeklyGoal, func(s progress.ProgressStats, _ timeutil.Date) (progress.ProgressStats, bool) {
		return s.WithWeeklyGoal(minutes)
	})
}

// AddReward applies minutes, points and coins as one transaction with one remote write.
func (l *Ledger) AddReward(minutes, points, coins int) (progress.ProgressStats, bool, error) {
	return l.apply(OpAddReward, func(s progress.ProgressStats, today timeutil.Date) (progress.ProgressStats, bool) {
		return s.WithReward(minutes, points, coins, today)
	})
}

// apply computes the next state, swaps it in, notifies observers and queues
// the write while holding the lock, so queue order equals transaction order.
func (l *Ledger) apply(op string, fn func(progress.ProgressStats, timeutil.Date) (progress.ProgressStats, bool)) (progress.ProgressStats, bool, error) {
	l.mu.Lock()
	if l.closed {
		s := l.state.Clone()
		l.mu.Unlock()
		return s, false, ErrLedgerClosed
	}

	next, changed := fn(l.state, l.Today())
	if !changed {
		s := l.state.Clone()
		l.mu.Unlock()
		l.metrics.RecordTransaction(op, false)
		return s, false, nil
	}

	l.state = next
	l.notifyLocked()
	l.enqueueLocked(syncJob{op: op, stats: next.Clone(), queuedAt: time.Now()})
	out := next.Clone()
	l.mu.Unlock()

	l.metrics.RecordTransaction(op, true)
	l.log.Debug("progress updated",
		logger.Operation(op),
		logger.Uint32("total_minutes", out.TotalStudyMinutes),
		logger.Uint32("streak", out.Streak),
	)
	_ = l.publisher.Publish(shared.NewProgressUpdatedEvent(
		l.account.String(), op,
		out.TotalStudyMinutes, out.TodayStudyMinutes, out.Streak, out.Points, out.Coins,
	))
	return out, true, nil
}

func (l *Ledger) enqueueLocked(job syncJob) {
	if job.done == nil {
		l.metrics.QueueDelta(1)
	}
	l.queue <- job
}

// ─────────────────────────────────────────────────────────────────────────────
// Read side
// ─────────────────────────────────────────────────────────────────────────────

// Snapshot returns the current stored-form state.
func (l *Ledger) Snapshot() progress.ProgressStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// Display returns the state as shown to the user for today.
func (l *Ledger) Display() progress.ProgressStats {
	return l.Snapshot().ForDisplay(l.Today())
}

// Subscribe returns a channel that always holds the latest state.
// The current state is delivered immediately. Slow readers miss intermediate
// states, never the latest one. The channel is closed by cancel or Close.
func (l *Ledger) Subscribe() (<-chan progress.ProgressStats, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan progress.ProgressStats, 1)
	ch <- l.state.Clone()
	if l.closed {
		close(ch)
		return ch, func() {}
	}

	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if c, ok := l.subs[id]; ok {
				delete(l.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (l *Ledger) notifyLocked() {
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- l.state.Clone()
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Remote sync
// ─────────────────────────────────────────────────────────────────────────────

func (l *Ledger) syncLoop() {
	defer close(l.stopped)

	for job := range l.queue {
		if job.done != nil {
			close(job.done)
			continue
		}
		l.metrics.QueueDelta(-1)
		l.write(job)
	}
}

func (l *Ledger) write(job syncJob) {
	start := time.Now()
	attempts := 0
	err := l.retrier.Do(l.syncCtx, func(ctx context.Context) error {
		attempts++
		return l.repo.Save(ctx, l.account, job.stats)
	})
	l.metrics.RecordSync(job.op, time.Since(start), err)

	if err == nil {
		l.log.Debug("progress synced",
			logger.Operation(job.op),
			logger.Int("attempts", attempts),
			logger.Latency(time.Since(job.queuedAt)),
		)
		return
	}

	l.log.Error("progress sync failed",
		logger.Operation(job.op),
		logger.Int("attempts", attempts),
		logger.Err(err),
	)
	_ = l.publisher.Publish(shared.NewProgressSyncFailedEvent(l.account.String(), job.op, attempts, err))
}

// Flush blocks until every write queued before the call has finished.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return l.wait(ctx, l.stopped)
	}
	done := make(chan struct{})
	l.enqueueLocked(syncJob{done: done})
	l.mu.Unlock()

	return l.wait(ctx, done)
}

// Close refuses new transactions, drains the queue and stops the sync loop.
// When ctx expires first, in-flight retries are abandoned.
func (l *Ledger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
		for id, ch := range l.subs {
			delete(l.subs, id)
			close(ch)
		}
	}
	l.mu.Unlock()

	if err := l.wait(ctx, l.stopped); err != nil {
		l.syncCancel()
		<-l.stopped
		return err
	}
	l.syncCancel()
	return nil
}

func (l *Ledger) wait(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsClosed reports whether err came from a closed ledger.
func IsClosed(err error) bool {
	return errors.Is(err, shared.ErrClosed)
}
