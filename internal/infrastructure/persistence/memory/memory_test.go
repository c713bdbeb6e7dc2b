package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

const acc = shared.AccountID("acc-1")

func ev(id, date string, kind calendar.EventKind) calendar.Event {
	return calendar.Event{ID: id, Date: timeutil.MustParseDate(date), Title: id, Kind: kind}
}

func TestCalendarStore_EventsBetweenAndMove(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore()
	require.NoError(t, s.Add(ctx, acc, ev("b", "2025-10-15", calendar.KindStudy)))
	require.NoError(t, s.Add(ctx, acc, ev("a", "2025-10-13", calendar.KindStudy)))
	require.NoError(t, s.Add(ctx, acc, ev("c", "2025-10-20", calendar.KindTask)))
	require.NoError(t, s.Add(ctx, "other", ev("x", "2025-10-14", calendar.KindStudy)))

	got, err := s.EventsBetween(ctx, acc, timeutil.MustParseDate("2025-10-13"), timeutil.MustParseDate("2025-10-19"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	require.NoError(t, s.MoveEventDate(ctx, acc, "a", timeutil.MustParseDate("2025-10-20")))
	moved, ok := s.Event(acc, "a")
	require.True(t, ok)
	assert.Equal(t, "2025-10-20", moved.Date.String())
	assert.Equal(t, 1, s.MoveCount())

	err = s.MoveEventDate(ctx, acc, "missing", timeutil.MustParseDate("2025-10-20"))
	assert.True(t, shared.IsNotFound(err))

	err = s.MoveEventDate(ctx, "other", "a", timeutil.MustParseDate("2025-10-20"))
	assert.True(t, shared.IsNotFound(err), "accounts are isolated")
}

func TestCalendarStore_AddDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore()
	require.NoError(t, s.Add(ctx, acc, ev("a", "2025-10-13", calendar.KindStudy)))
	assert.True(t, shared.IsAlreadyExists(s.Add(ctx, acc, ev("a", "2025-10-14", calendar.KindStudy))))
}

func TestCalendarStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore()
	require.NoError(t, s.Add(ctx, acc, ev("a", "2025-10-13", calendar.KindStudy)))

	s.FailMove("a", errors.New("timeout"))
	err := s.MoveEventDate(ctx, acc, "a", timeutil.MustParseDate("2025-10-20"))
	assert.True(t, shared.IsPersistence(err))

	s.FailMove("a", nil)
	assert.NoError(t, s.MoveEventDate(ctx, acc, "a", timeutil.MustParseDate("2025-10-20")))

	s.FailReads(errors.New("offline"))
	_, err = s.EventsBetween(ctx, acc, 0, 100000)
	assert.True(t, shared.IsPersistence(err))
}

func TestCalendarStore_ClassExists(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore()
	require.NoError(t, s.Add(ctx, acc, ev("math", "2025-10-16", calendar.KindClass)))
	require.NoError(t, s.Add(ctx, acc, ev("read", "2025-10-16", calendar.KindStudy)))
	s.RegisterClass(acc, "physics")

	for id, want := range map[string]bool{"math": true, "physics": true, "read": false, "art": false} {
		got, err := s.ClassExists(ctx, acc, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestCalendarStore_SetCompleted(t *testing.T) {
	ctx := context.Background()
	s := NewCalendarStore()
	require.NoError(t, s.Add(ctx, acc, ev("a", "2025-10-13", calendar.KindStudy)))

	require.NoError(t, s.SetCompleted(ctx, acc, "a", true))
	e, _ := s.Event(acc, "a")
	assert.True(t, e.Completed)
	assert.True(t, shared.IsNotFound(s.SetCompleted(ctx, acc, "zzz", true)))
}

func TestProgressRepository_LoadSave(t *testing.T) {
	ctx := context.Background()
	r := NewProgressRepository()

	_, err := r.Load(ctx, acc)
	assert.ErrorIs(t, err, progress.ErrStatsNotFound)

	d := timeutil.MustParseDate("2025-10-16")
	stats := progress.ProgressStats{TotalStudyMinutes: 30, TodayStudyMinutes: 30, Streak: 1, LastStudyDate: &d}
	require.NoError(t, r.Save(ctx, acc, stats))

	back, err := r.Load(ctx, acc)
	require.NoError(t, err)
	assert.True(t, stats.Equal(back))
	assert.Len(t, r.History(acc), 1)
}

func TestProgressRepository_FailNextSaves(t *testing.T) {
	ctx := context.Background()
	r := NewProgressRepository()
	r.FailNextSaves(2, nil)

	assert.True(t, shared.IsPersistence(r.Save(ctx, acc, progress.Defaults())))
	assert.True(t, shared.IsPersistence(r.Save(ctx, acc, progress.Defaults())))
	assert.NoError(t, r.Save(ctx, acc, progress.Defaults()))

	r.FailNextSaves(-1, errors.New("down"))
	for i := 0; i < 5; i++ {
		assert.Error(t, r.Save(ctx, acc, progress.Defaults()))
	}
	r.FailNextSaves(0, nil)
	assert.NoError(t, r.Save(ctx, acc, progress.Defaults()))
	assert.Len(t, r.History(acc), 2)
}

func TestAttendanceRepository_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	r := NewAttendanceRepository()
	d := timeutil.MustParseDate("2025-10-16")

	_, err := r.Get(ctx, acc, "math", d)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, r.Upsert(ctx, acc, progress.NewAttendanceRecord("math", d, true, false)))
	require.NoError(t, r.Upsert(ctx, acc, progress.NewAttendanceRecord("math", d, true, true)))
	require.NoError(t, r.Upsert(ctx, acc, progress.NewAttendanceRecord("art", d.AddDays(-1), false, false)))

	rec, err := r.Get(ctx, acc, "math", d)
	require.NoError(t, err)
	assert.True(t, rec.Completed())

	list, err := r.ListBetween(ctx, acc, d.AddDays(-7), d)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "art", list[0].ClassID)
	assert.Equal(t, "math", list[1].ClassID)
}

func TestAttendanceRepository_RewardMarkersStick(t *testing.T) {
	ctx := context.Background()
	r := NewAttendanceRepository()
	d := timeutil.MustParseDate("2025-10-16")

	paid := progress.NewAttendanceRecord("math", d, true, false)
	paid.AttendanceRewarded = true
	require.NoError(t, r.Upsert(ctx, acc, paid))
	require.NoError(t, r.Upsert(ctx, acc, progress.NewAttendanceRecord("math", d, false, false)))

	rec, err := r.Get(ctx, acc, "math", d)
	require.NoError(t, err)
	assert.False(t, rec.Attended())
	assert.True(t, rec.AttendanceRewarded)
	assert.False(t, rec.CompletionRewarded)
}
