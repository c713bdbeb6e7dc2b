// Package session coordinates the progress ledger and the week planner on
// behalf of user actions: marking class attendance, running focus intervals
// and rebalancing the week.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/alem-hub/study-hub/internal/application/ledger"
	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/planner"
	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/study-hub/pkg/logger"
	"github.com/alem-hub/study-hub/pkg/retry"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// LedgerSource hands out the single ledger of an account.
type LedgerSource interface {
	Get(ctx context.Context, account shared.AccountID) (*ledger.Ledger, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains orchestrator settings.
type Config struct {
	// Rewards are the fixed weights for attendance and focus rewards.
	Rewards RewardWeights

	// Focus configures timers created by NewFocusTimer.
	Focus FocusConfig

	// Missed overrides the planner's missed predicate when set.
	Missed planner.MissedFunc

	// MoveRetrier retries transient calendar move failures.
	// When nil, three attempts from 50ms up to 1s, retryable errors only.
	MoveRetrier *retry.Retrier

	// Logger for structured logging.
	Logger *logger.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Rewards: DefaultRewardWeights(),
		Focus:   DefaultFocusConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Orchestrator composes the ledger with the calendar store and the planner.
type Orchestrator struct {
	ledgers    LedgerSource
	store      calendar.Store
	classes    calendar.ClassLookup
	attendance progress.AttendanceRepository
	publisher  shared.EventPublisher

	rewards     RewardWeights
	focus       FocusConfig
	missed      planner.MissedFunc
	moveRetrier *retry.Retrier
	log         *logger.Logger
	metrics     *metrics.Metrics

	noticesMu sync.RWMutex
	notices   map[shared.AccountID]Notice
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	ledgers LedgerSource,
	store calendar.Store,
	classes calendar.ClassLookup,
	attendance progress.AttendanceRepository,
	publisher shared.EventPublisher,
	config Config,
) *Orchestrator {
	if config.Rewards.IsZero() {
		config.Rewards = DefaultRewardWeights()
	}
	if config.MoveRetrier == nil {
		config.MoveRetrier = retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(50*time.Millisecond),
			retry.WithMaxDelay(time.Second),
			retry.WithRetryIf(shared.IsRetryable),
		)
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	return &Orchestrator{
		ledgers:     ledgers,
		store:       store,
		classes:     classes,
		attendance:  attendance,
		publisher:   publisher,
		rewards:     config.Rewards,
		focus:       config.Focus.withDefaults(),
		missed:      config.Missed,
		moveRetrier: config.MoveRetrier,
		log:         config.Logger.With(logger.Component("session")),
		metrics:     config.Metrics,
		notices:     make(map[shared.AccountID]Notice),
	}
}

// Rewards returns the weights in use.
func (o *Orchestrator) Rewards() RewardWeights {
	return o.rewards
}

// NewFocusTimer returns a stopped timer using the configured cycle.
func (o *Orchestrator) NewFocusTimer() *FocusTimer {
	return NewFocusTimer(o.focus)
}

// ledgerFor returns nil without error when no account is signed in.
func (o *Orchestrator) ledgerFor(ctx context.Context, account shared.AccountID) (*ledger.Ledger, error) {
	l, err := o.ledgers.Get(ctx, account)
	if shared.IsUnauthenticated(err) {
		return nil, nil
	}
	return l, err
}

// ─────────────────────────────────────────────────────────────────────────────
// Attendance
// ─────────────────────────────────────────────────────────────────────────────

// AttendanceResult is the outcome of MarkAttendance.
type AttendanceResult struct {
	Record  progress.AttendanceRecord
	Reward  Reward
	Stats   progress.ProgressStats
	Changed bool
}

// MarkAttendance stores the attendance record for (classID, date) and pays
// each flag the first time it is marked yes for that class and date.
// Clearing a flag keeps what it paid, and setting it again pays nothing,
// so toggling cannot mint coins. The ledger is resolved before the record
// is written, so a ledger failure leaves nothing half done and the call can
// be retried. The ledger sees at most one reward transaction.
// Without a signed-in account the result is empty and no error is returned.
func (o *Orchestrator) MarkAttendance(ctx context.Context, account shared.AccountID, classID string, date timeutil.Date, attended, completed bool) (AttendanceResult, error) {
	if account.IsEmpty() {
		return AttendanceResult{}, nil
	}
	log := o.log.With(logger.AccountID(account.String()), logger.ClassID(classID), logger.Date(date))

	exists, err := o.classes.ClassExists(ctx, account, classID)
	if err != nil {
		return AttendanceResult{}, shared.PersistenceError("session", "MarkAttendance", err)
	}
	if !exists {
		return AttendanceResult{}, calendar.ErrClassNotFound
	}

	l, err := o.ledgerFor(ctx, account)
	if err != nil {
		return AttendanceResult{}, err
	}
	if l == nil {
		return AttendanceResult{}, nil
	}

	record := progress.NewAttendanceRecord(classID, date, attended, completed)
	prev, err := o.attendance.Get(ctx, account, classID, date)
	switch {
	case err == nil:
		record = record.WithRewardsFrom(prev)
	case shared.IsNotFound(err):
	default:
		return AttendanceResult{}, shared.PersistenceError("session", "MarkAttendance", err)
	}

	payAttendance, payCompletion := record.Unrewarded()
	reward := AttendanceReward(payAttendance, payCompletion, o.rewards)
	record.AttendanceRewarded = record.AttendanceRewarded || payAttendance
	record.CompletionRewarded = record.CompletionRewarded || payCompletion

	if err := o.attendance.Upsert(ctx, account, record); err != nil {
		log.Error("failed to store attendance", logger.Err(err))
		return AttendanceResult{}, shared.PersistenceError("session", "MarkAttendance", err)
	}

	result := AttendanceResult{Record: record, Reward: reward}
	result.Stats, result.Changed, err = l.AddReward(0, reward.Points, reward.Coins)
	if err != nil {
		return result, err
	}

	_ = o.publisher.Publish(shared.NewAttendanceMarkedEvent(
		account.String(), classID, date.String(), attended, completed, reward.Points, reward.Coins,
	))
	log.Info("attendance marked",
		logger.Bool("attended", attended),
		logger.Bool("completed", completed),
		logger.Int("points", reward.Points),
		logger.Int("coins", reward.Coins),
	)
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Focus
// ─────────────────────────────────────────────────────────────────────────────

// TickResult is the outcome of Tick.
type TickResult struct {
	Completed []Completion
	Rewarded  int
	Stats     progress.ProgressStats
}

// Tick advances the timer to now and rewards every work interval that ended,
// one ledger transaction per interval. The timer advances even when no
// account is signed in; nothing is rewarded then.
func (o *Orchestrator) Tick(ctx context.Context, account shared.AccountID, timer *FocusTimer, now time.Time) (TickResult, error) {
	result := TickResult{Completed: timer.Advance(now)}

	var l *ledger.Ledger
	for _, c := range result.Completed {
		if c.Phase != PhaseWork {
			continue
		}
		if l == nil {
			var err error
			if l, err = o.ledgerFor(ctx, account); err != nil || l == nil {
				return result, err
			}
		}

		reward := FocusReward(c.Minutes(), o.rewards)
		stats, _, err := l.AddReward(reward.Minutes, reward.Points, reward.Coins)
		if err != nil {
			return result, err
		}
		result.Stats = stats
		result.Rewarded++
		o.metrics.RecordFocusInterval()
	}

	if result.Rewarded > 0 {
		o.log.Info("focus intervals rewarded",
			logger.AccountID(account.String()),
			logger.Int("intervals", result.Rewarded),
		)
	}
	return result, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Week rebalancing
// ─────────────────────────────────────────────────────────────────────────────

// AppliedMove is a move that reached the store.
type AppliedMove struct {
	planner.Move
	Reason string
}

// MoveFailure is a move the store rejected.
type MoveFailure struct {
	planner.Move
	Reason string
	Err    error
}

// AdjustReport lists what AdjustWeek did.
type AdjustReport struct {
	Plan    planner.Plan
	Applied []AppliedMove
	Failed  []MoveFailure
}

// Err combines the per-move failures, nil when every move was applied.
func (r AdjustReport) Err() error {
	var err error
	for _, f := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("move %s to %s: %w", f.Event.ID, f.To, f.Err))
	}
	return err
}

// AdjustWeek rebalances the week containing today. pullEarlier names the
// events the user is ahead of schedule on. Each planned move is applied on
// its own; a failed move is reported in the result and does not stop the rest.
// The returned error is set only when the week could not be read.
func (o *Orchestrator) AdjustWeek(ctx context.Context, account shared.AccountID, today timeutil.Date, pullEarlier []string) (AdjustReport, error) {
	if account.IsEmpty() {
		return AdjustReport{}, nil
	}
	log := o.log.With(logger.AccountID(account.String()), logger.Operation("adjust_week"))

	week := timeutil.WeekOf(today)
	next := week.Next()

	current, err := o.store.EventsBetween(ctx, account, week.Start, week.End)
	if err != nil {
		return AdjustReport{}, shared.PersistenceError("session", "AdjustWeek", err)
	}
	upcoming, err := o.store.EventsBetween(ctx, account, next.Start, next.End)
	if err != nil {
		return AdjustReport{}, shared.PersistenceError("session", "AdjustWeek", err)
	}

	opts := []planner.Option{planner.WithPullEarlier(pullEarlier...)}
	if o.missed != nil {
		opts = append(opts, planner.WithMissedFunc(o.missed))
	}
	plan := planner.PlanAdjustments(today, current, upcoming, opts...)
	report := AdjustReport{Plan: plan}

	o.applyMoves(ctx, account, plan.MovedMissed, shared.MoveReasonMissed, &report)
	o.applyMoves(ctx, account, plan.PulledEarlier, shared.MoveReasonPullEarlier, &report)

	if len(report.Failed) > 0 {
		log.Warn("week adjusted with failures",
			logger.Int("applied", len(report.Applied)),
			logger.Int("failed", len(report.Failed)),
			logger.Err(report.Err()),
		)
	} else if !plan.IsEmpty() {
		log.Info("week adjusted", logger.Int("applied", len(report.Applied)))
	}
	return report, nil
}

func (o *Orchestrator) applyMoves(ctx context.Context, account shared.AccountID, moves []planner.Move, reason string, report *AdjustReport) {
	for _, m := range moves {
		err := o.moveRetrier.Do(ctx, func(ctx context.Context) error {
			return o.store.MoveEventDate(ctx, account, m.Event.ID, m.To)
		})
		o.metrics.RecordMove(reason, err)

		if err != nil {
			report.Failed = append(report.Failed, MoveFailure{Move: m, Reason: reason, Err: err})
			continue
		}
		report.Applied = append(report.Applied, AppliedMove{Move: m, Reason: reason})
		_ = o.publisher.Publish(shared.NewCalendarEventMovedEvent(
			account.String(), m.Event.ID, m.From.String(), m.To.String(), reason,
		))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Week report
// ─────────────────────────────────────────────────────────────────────────────

// WeekReport summarises the current week against the weekly goal.
type WeekReport struct {
	Week             timeutil.WeekWindow
	Stats            progress.ProgressStats
	StudyMinutes     int
	GoalMet          bool
	GoalRemaining    uint32
	ClassesAttended  int
	ClassesCompleted int
}

// WeekReport builds the report for the week containing today. Minutes are
// summed from completed study events; the ledger keeps no per-week history.
func (o *Orchestrator) WeekReport(ctx context.Context, account shared.AccountID, today timeutil.Date) (WeekReport, error) {
	week := timeutil.WeekOf(today)
	if account.IsEmpty() {
		return WeekReport{Week: week}, nil
	}

	l, err := o.ledgerFor(ctx, account)
	if err != nil || l == nil {
		return WeekReport{Week: week}, err
	}

	events, err := o.store.EventsBetween(ctx, account, week.Start, week.End)
	if err != nil {
		return WeekReport{Week: week}, shared.PersistenceError("session", "WeekReport", err)
	}
	records, err := o.attendance.ListBetween(ctx, account, week.Start, week.End)
	if err != nil {
		return WeekReport{Week: week}, shared.PersistenceError("session", "WeekReport", err)
	}

	stats := l.Snapshot().ForDisplay(today)
	minutes := calendar.CompletedStudyMinutes(events, week)
	report := WeekReport{
		Week:          week,
		Stats:         stats,
		StudyMinutes:  minutes,
		GoalMet:       stats.GoalMet(minutes),
		GoalRemaining: stats.GoalRemaining(minutes),
	}
	for _, r := range records {
		if r.Attended() {
			report.ClassesAttended++
		}
		if r.Completed() {
			report.ClassesCompleted++
		}
	}
	return report, nil
}
