package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-hub/internal/application/ledger"
	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/messaging"
	"github.com/alem-hub/study-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-hub/pkg/retry"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

const acc = shared.AccountID("acc-1")

var (
	thu = timeutil.MustParseDate("2025-10-16")
	mon = timeutil.MustParseDate("2025-10-13")
)

type fixture struct {
	store      *memory.CalendarStore
	progress   *memory.ProgressRepository
	attendance *memory.AttendanceRepository
	bus        *messaging.InMemoryEventBus
	registry   *ledger.Registry
	orch       *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      memory.NewCalendarStore(),
		progress:   memory.NewProgressRepository(),
		attendance: memory.NewAttendanceRepository(),
		bus:        messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false}),
	}
	clock := &timeutil.FixedClock{T: time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)}
	f.registry = ledger.NewRegistry(f.progress, f.bus, ledger.Config{
		SyncMaxAttempts:  2,
		SyncInitialDelay: time.Millisecond,
		Clock:            clock,
		Location:         time.UTC,
	})
	f.orch = NewOrchestrator(f.registry, f.store, f.store, f.attendance, f.bus, Config{
		Rewards:     RewardWeights{AttendancePoints: 10, AttendanceCoins: 2, CompletionPoints: 5, CompletionCoins: 1, FocusPoints: 3, FocusCoins: 1},
		MoveRetrier: retry.New(retry.WithMaxAttempts(2), retry.WithInitialDelay(time.Millisecond), retry.WithRetryIf(shared.IsRetryable)),
	})
	t.Cleanup(func() {
		_ = f.registry.Close(context.Background())
		_ = f.bus.Close()
	})
	return f
}

func (f *fixture) add(t *testing.T, id string, date timeutil.Date, kind calendar.EventKind) {
	t.Helper()
	require.NoError(t, f.store.Add(context.Background(), acc, calendar.Event{ID: id, Date: date, Title: id, Kind: kind, DurationMinutes: 30}))
}

// ─────────────────────────────────────────────────────────────────────────────
// MarkAttendance
// ─────────────────────────────────────────────────────────────────────────────

func TestMarkAttendance_RewardsAndStores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "math", thu, calendar.KindClass)

	var marked []shared.Event
	require.NoError(t, f.bus.Subscribe(shared.EventAttendanceMarked, func(e shared.Event) error {
		marked = append(marked, e)
		return nil
	}))

	res, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.NoError(t, err)
	assert.Equal(t, Reward{Points: 15, Coins: 3}, res.Reward)
	assert.True(t, res.Changed)
	assert.Equal(t, uint32(15), res.Stats.Points)
	assert.Equal(t, uint32(3), res.Stats.Coins)
	assert.Equal(t, uint32(0), res.Stats.TotalStudyMinutes)

	rec, err := f.attendance.Get(ctx, acc, "math", thu)
	require.NoError(t, err)
	assert.Equal(t, shared.Yes, rec.Attendance)
	assert.Equal(t, shared.Yes, rec.Completion)
	require.Len(t, marked, 1)

	require.NoError(t, f.registry.Flush(ctx))
	// defaults on first access, then exactly one reward write
	assert.Len(t, f.progress.History(acc), 2)
}

func TestMarkAttendance_CompletionWithoutAttendance(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterClass(acc, "art")

	res, err := f.orch.MarkAttendance(context.Background(), acc, "art", thu, false, true)
	require.NoError(t, err)
	assert.Equal(t, Reward{Points: 5, Coins: 1}, res.Reward)
}

func TestMarkAttendance_RemarkingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")

	_, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, false)
	require.NoError(t, err)

	res, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, false)
	require.NoError(t, err)
	assert.True(t, res.Reward.IsZero())
	assert.False(t, res.Changed)
	assert.Equal(t, uint32(10), res.Stats.Points)

	res, err = f.orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.NoError(t, err)
	assert.Equal(t, Reward{Points: 5, Coins: 1}, res.Reward, "only the completion bonus is new")
	assert.Equal(t, uint32(15), res.Stats.Points)

	res, err = f.orch.MarkAttendance(ctx, acc, "math", thu.AddDays(1), true, false)
	require.NoError(t, err)
	assert.Equal(t, Reward{Points: 10, Coins: 2}, res.Reward, "another date is another record")
}

func TestMarkAttendance_UnmarkingKeepsReward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")

	_, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.NoError(t, err)

	res, err := f.orch.MarkAttendance(ctx, acc, "math", thu, false, false)
	require.NoError(t, err)
	assert.True(t, res.Reward.IsZero())
	assert.Equal(t, uint32(15), res.Stats.Points)
	assert.Equal(t, uint32(3), res.Stats.Coins)

	rec, err := f.attendance.Get(ctx, acc, "math", thu)
	require.NoError(t, err)
	assert.Equal(t, shared.No, rec.Attendance)
	assert.True(t, rec.AttendanceRewarded)
	assert.True(t, rec.CompletionRewarded)

	res, err = f.orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.NoError(t, err)
	assert.True(t, res.Reward.IsZero(), "a flag pays once per class and date")
}

func TestMarkAttendance_TogglingDoesNotMintCoins(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")
	l, err := f.registry.Get(ctx, acc)
	require.NoError(t, err)

	granted := 0
	for i := 0; i < 3; i++ {
		res, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, false)
		require.NoError(t, err)
		granted += res.Reward.Coins

		_, _, err = l.UpdateCoins(-1000)
		require.NoError(t, err)

		res, err = f.orch.MarkAttendance(ctx, acc, "math", thu, false, false)
		require.NoError(t, err)
		granted += res.Reward.Coins
	}

	assert.Equal(t, 2, granted)
	assert.Equal(t, uint32(0), l.Snapshot().Coins)
	assert.Equal(t, uint32(10), l.Snapshot().Points)
}

// flakyLedgers fails the first n loads.
type flakyLedgers struct {
	LedgerSource
	failures int
}

func (s *flakyLedgers) Get(ctx context.Context, account shared.AccountID) (*ledger.Ledger, error) {
	if s.failures > 0 {
		s.failures--
		return nil, shared.PersistenceError("progress", "Load", errors.New("connection reset"))
	}
	return s.LedgerSource.Get(ctx, account)
}

func TestMarkAttendance_LedgerFailureCanBeRetried(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")
	orch := NewOrchestrator(&flakyLedgers{LedgerSource: f.registry, failures: 1},
		f.store, f.store, f.attendance, f.bus, Config{Rewards: f.orch.Rewards()})

	_, err := orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.Error(t, err)
	assert.True(t, shared.IsPersistence(err))

	_, err = f.attendance.Get(ctx, acc, "math", thu)
	assert.True(t, shared.IsNotFound(err), "nothing stored before the ledger is ready")

	res, err := orch.MarkAttendance(ctx, acc, "math", thu, true, true)
	require.NoError(t, err)
	assert.Equal(t, Reward{Points: 15, Coins: 3}, res.Reward)
	assert.Equal(t, uint32(15), res.Stats.Points)
	assert.Equal(t, uint32(3), res.Stats.Coins)
}

func TestMarkAttendance_UnknownClass(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.MarkAttendance(context.Background(), acc, "ghost", thu, true, true)
	assert.ErrorIs(t, err, calendar.ErrClassNotFound)
	assert.True(t, shared.IsNotFound(err))
	assert.Empty(t, f.progress.History(acc))
}

func TestMarkAttendance_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")
	f.attendance.FailWrites(errors.New("disk full"))

	_, err := f.orch.MarkAttendance(context.Background(), acc, "math", thu, true, true)
	assert.True(t, shared.IsPersistence(err))

	l, err := f.registry.Get(context.Background(), acc)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), l.Snapshot().Points, "nothing rewarded")
}

func TestMarkAttendance_NoAccountIsNeutral(t *testing.T) {
	f := newFixture(t)
	f.store.RegisterClass(acc, "math")

	res, err := f.orch.MarkAttendance(context.Background(), "", "math", thu, true, true)
	require.NoError(t, err)
	assert.Equal(t, AttendanceResult{}, res)
}

// ─────────────────────────────────────────────────────────────────────────────
// Tick
// ─────────────────────────────────────────────────────────────────────────────

func TestTick_RewardsEachCompletedWorkInterval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	timer := NewFocusTimer(FocusConfig{Work: 25 * time.Minute, ShortBreak: 5 * time.Minute, LongBreak: 15 * time.Minute, LongBreakEvery: 4, AutoStartWork: true})
	start := time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, timer.Start(start))

	res, err := f.orch.Tick(ctx, acc, timer, start.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rewarded)

	res, err = f.orch.Tick(ctx, acc, timer, start.Add(60*time.Minute))
	require.NoError(t, err)
	assert.Len(t, res.Completed, 4, "work, break, work, break")
	assert.Equal(t, 2, res.Rewarded)
	assert.Equal(t, uint32(50), res.Stats.TotalStudyMinutes)
	assert.Equal(t, uint32(6), res.Stats.Points)
	assert.Equal(t, uint32(2), res.Stats.Coins)
	assert.Equal(t, uint32(1), res.Stats.Streak)
}

func TestTick_NoAccountAdvancesWithoutReward(t *testing.T) {
	f := newFixture(t)
	timer := NewFocusTimer(DefaultFocusConfig())
	start := time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, timer.Start(start))

	res, err := f.orch.Tick(context.Background(), "", timer, start.Add(27*time.Minute))
	require.NoError(t, err)
	assert.Len(t, res.Completed, 1)
	assert.Equal(t, 0, res.Rewarded)
	assert.Equal(t, 1, timer.CompletedWork())
}

// ─────────────────────────────────────────────────────────────────────────────
// AdjustWeek
// ─────────────────────────────────────────────────────────────────────────────

func TestAdjustWeek_MovesMissedToNextMonday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "E1", mon, calendar.KindStudy)
	f.add(t, "E2", mon.AddDays(1), calendar.KindStudy)
	f.add(t, "E3", mon.AddDays(4), calendar.KindStudy)

	var moved []shared.Event
	require.NoError(t, f.bus.Subscribe(shared.EventCalendarEventMoved, func(e shared.Event) error {
		moved = append(moved, e)
		return nil
	}))

	report, err := f.orch.AdjustWeek(ctx, acc, thu, nil)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	require.Len(t, report.Applied, 2)

	for _, id := range []string{"E1", "E2"} {
		e, _ := f.store.Event(acc, id)
		assert.Equal(t, "2025-10-20", e.Date.String(), id)
	}
	e3, _ := f.store.Event(acc, "E3")
	assert.Equal(t, "2025-10-17", e3.Date.String(), "future events stay put")
	assert.Len(t, moved, 2)
	assert.Equal(t, shared.MoveReasonMissed, moved[0].Payload()["reason"])
}

func TestAdjustWeek_PullsFlaggedToLeastLoadedDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "T1", thu, calendar.KindStudy)
	f.add(t, "T2", thu, calendar.KindStudy)
	f.add(t, "S1", thu.AddDays(2), calendar.KindStudy)

	report, err := f.orch.AdjustWeek(ctx, acc, thu, []string{"S1"})
	require.NoError(t, err)
	require.Len(t, report.Applied, 1)
	assert.Equal(t, shared.MoveReasonPullEarlier, report.Applied[0].Reason)

	s1, _ := f.store.Event(acc, "S1")
	assert.Equal(t, "2025-10-17", s1.Date.String())
}

func TestAdjustWeek_FailuresDoNotAbortSiblings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "E1", mon, calendar.KindStudy)
	f.add(t, "E2", mon.AddDays(1), calendar.KindStudy)
	f.add(t, "E3", mon.AddDays(2), calendar.KindStudy)
	f.store.FailMove("E2", errors.New("timeout"))

	report, err := f.orch.AdjustWeek(ctx, acc, thu, nil)
	require.NoError(t, err)
	require.Len(t, report.Applied, 2)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "E2", report.Failed[0].Event.ID)
	assert.True(t, shared.IsPersistence(report.Failed[0].Err))
	assert.Error(t, report.Err())

	e3, _ := f.store.Event(acc, "E3")
	assert.Equal(t, "2025-10-20", e3.Date.String())
}

func TestAdjustWeek_ReadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailReads(errors.New("offline"))

	_, err := f.orch.AdjustWeek(context.Background(), acc, thu, nil)
	assert.True(t, shared.IsPersistence(err))
}

func TestAdjustWeek_NoAccountIsNeutral(t *testing.T) {
	f := newFixture(t)
	report, err := f.orch.AdjustWeek(context.Background(), "", thu, nil)
	require.NoError(t, err)
	assert.True(t, report.Plan.IsEmpty())
	assert.Nil(t, report.Err())
}

// ─────────────────────────────────────────────────────────────────────────────
// Week report and notices
// ─────────────────────────────────────────────────────────────────────────────

func TestWeekReport_GoalProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "a", mon, calendar.KindStudy)
	f.add(t, "b", mon.AddDays(1), calendar.KindClass)
	f.add(t, "c", mon.AddDays(2), calendar.KindTask)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.store.SetCompleted(ctx, acc, id, true))
	}
	f.store.RegisterClass(acc, "math")
	_, err := f.orch.MarkAttendance(ctx, acc, "math", thu, true, false)
	require.NoError(t, err)

	l, err := f.registry.Get(ctx, acc)
	require.NoError(t, err)
	_, _, err = l.SetWeeklyGoal(90)
	require.NoError(t, err)

	report, err := f.orch.WeekReport(ctx, acc, thu)
	require.NoError(t, err)
	assert.Equal(t, 60, report.StudyMinutes, "tasks do not count as study time")
	assert.False(t, report.GoalMet)
	assert.Equal(t, uint32(30), report.GoalRemaining)
	assert.Equal(t, 1, report.ClassesAttended)
	assert.Equal(t, 0, report.ClassesCompleted)
	assert.Equal(t, "2025-10-13..2025-10-19", report.Week.String())
}

func TestWatchSyncFailures_RecordsNotice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.orch.WatchSyncFailures(f.bus))

	l, err := f.registry.Get(ctx, acc)
	require.NoError(t, err)
	require.NoError(t, l.Flush(ctx))

	f.progress.FailNextSaves(-1, nil)
	_, _, err = l.AddPoints(3)
	require.NoError(t, err)
	require.NoError(t, l.Flush(ctx))

	n, ok := f.orch.Notices(acc)
	require.True(t, ok)
	assert.Equal(t, ledger.OpAddPoints, n.Operation)
	assert.NotEmpty(t, n.Message)
	assert.Equal(t, uint32(3), l.Snapshot().Points)

	f.orch.DismissNotice(acc)
	_, ok = f.orch.Notices(acc)
	assert.False(t, ok)
}

func TestNewFocusTimer_UsesConfiguredCycle(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultFocusConfig(), f.orch.NewFocusTimer().Config(), "zero config falls back to defaults")

	orch := NewOrchestrator(f.registry, f.store, f.store, f.attendance, f.bus, Config{
		Focus: FocusConfig{Work: 50 * time.Minute, ShortBreak: 10 * time.Minute},
	})
	cfg := orch.NewFocusTimer().Config()
	assert.Equal(t, 50*time.Minute, cfg.Work)
	assert.Equal(t, 10*time.Minute, cfg.ShortBreak)
	assert.Equal(t, 15*time.Minute, cfg.LongBreak)
	assert.Equal(t, 4, cfg.LongBreakEvery)
}
