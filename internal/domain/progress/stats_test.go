package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-hub/pkg/timeutil"
)

var (
	mon = timeutil.MustParseDate("2025-10-13")
	tue = timeutil.MustParseDate("2025-10-14")
	thu = timeutil.MustParseDate("2025-10-16")
)

func datePtr(d timeutil.Date) *timeutil.Date { return &d }

func TestClassify(t *testing.T) {
	assert.Equal(t, FirstEver, Classify(nil, thu))
	assert.Equal(t, SameDay, Classify(datePtr(thu), thu))
	assert.Equal(t, ConsecutiveDay, Classify(datePtr(thu.AddDays(-1)), thu))
	assert.Equal(t, AfterGap, Classify(datePtr(mon), thu))
	assert.Equal(t, SameDay, Classify(datePtr(thu.AddDays(1)), thu), "clock skew")
}

func TestWithStudyMinutes_NonPositiveIsNoop(t *testing.T) {
	start := ProgressStats{TotalStudyMinutes: 40, TodayStudyMinutes: 40, Streak: 3, LastStudyDate: datePtr(tue)}

	for _, delta := range []int{0, -1, -500, math.MinInt32} {
		next, changed := start.WithStudyMinutes(delta, thu)
		assert.False(t, changed)
		assert.True(t, next.Equal(start))
	}
}

func TestWithStudyMinutes_FirstEver(t *testing.T) {
	for _, today := range []timeutil.Date{0, mon, thu, timeutil.MustParseDate("2099-12-31")} {
		next, changed := Defaults().WithStudyMinutes(25, today)
		assert.True(t, changed)
		assert.Equal(t, uint32(1), next.Streak)
		assert.Equal(t, uint32(25), next.TodayStudyMinutes)
		assert.Equal(t, uint32(25), next.TotalStudyMinutes)
		assert.Equal(t, today, *next.LastStudyDate)
	}
}

func TestWithStudyMinutes_SameDayAccumulates(t *testing.T) {
	s := Defaults()
	s, _ = s.WithStudyMinutes(10, thu)
	s, _ = s.WithStudyMinutes(15, thu)
	s, _ = s.WithStudyMinutes(5, thu)

	assert.Equal(t, uint32(1), s.Streak)
	assert.Equal(t, uint32(30), s.TodayStudyMinutes)
	assert.Equal(t, uint32(30), s.TotalStudyMinutes)
}

func TestWithStudyMinutes_ConsecutiveDay(t *testing.T) {
	s := ProgressStats{TotalStudyMinutes: 100, TodayStudyMinutes: 45, Streak: 4, LastStudyDate: datePtr(thu.AddDays(-1))}

	next, changed := s.WithStudyMinutes(20, thu)

	assert.True(t, changed)
	assert.Equal(t, uint32(5), next.Streak)
	assert.Equal(t, uint32(20), next.TodayStudyMinutes)
	assert.Equal(t, uint32(120), next.TotalStudyMinutes)
	assert.Equal(t, thu, *next.LastStudyDate)
	assert.Equal(t, uint32(4), s.Streak, "receiver is not mutated")
}

func TestWithStudyMinutes_AfterGapResetsToOne(t *testing.T) {
	s := ProgressStats{TotalStudyMinutes: 100, TodayStudyMinutes: 45, Streak: 9, LastStudyDate: datePtr(mon)}

	next, _ := s.WithStudyMinutes(20, thu)

	assert.Equal(t, uint32(1), next.Streak)
	assert.Equal(t, uint32(20), next.TodayStudyMinutes)
}

func TestWithStudyMinutes_ClaimedEmptyDayBreaksStreak(t *testing.T) {
	// Yesterday was recorded but holds no minutes.
	s := ProgressStats{TotalStudyMinutes: 100, TodayStudyMinutes: 0, Streak: 6, LastStudyDate: datePtr(thu.AddDays(-1))}

	next, _ := s.WithStudyMinutes(20, thu)

	assert.Equal(t, uint32(1), next.Streak)
}

func TestWithStudyMinutes_ClockSkewKeepsLaterDate(t *testing.T) {
	later := thu.AddDays(1)
	s := ProgressStats{TotalStudyMinutes: 10, TodayStudyMinutes: 10, Streak: 2, LastStudyDate: datePtr(later)}

	next, _ := s.WithStudyMinutes(5, thu)

	assert.Equal(t, uint32(2), next.Streak)
	assert.Equal(t, uint32(15), next.TodayStudyMinutes)
	assert.Equal(t, later, *next.LastStudyDate)
}

func TestWithStudyMinutes_Saturates(t *testing.T) {
	s := ProgressStats{TotalStudyMinutes: math.MaxUint32 - 1, TodayStudyMinutes: 1, Streak: 1, LastStudyDate: datePtr(thu)}

	next, changed := s.WithStudyMinutes(10, thu)
	assert.True(t, changed)
	assert.Equal(t, uint32(math.MaxUint32), next.TotalStudyMinutes)
}

func TestClampAdd(t *testing.T) {
	assert.Equal(t, uint32(0), ClampAdd(5, -10))
	assert.Equal(t, uint32(0), ClampAdd(0, math.MinInt32))
	assert.Equal(t, uint32(15), ClampAdd(5, 10))
	assert.Equal(t, uint32(math.MaxUint32), ClampAdd(math.MaxUint32, 1))
}

func TestWithCoinsAndPoints_NeverNegative(t *testing.T) {
	s := ProgressStats{Points: 10, Coins: 3}

	for _, delta := range []int{-1, -3, -4, -1000, math.MinInt32} {
		c, _ := s.WithCoins(delta)
		p, _ := s.WithPoints(delta)
		assert.GreaterOrEqual(t, c.Coins, uint32(0))
		assert.LessOrEqual(t, c.Coins, uint32(3))
		assert.LessOrEqual(t, p.Points, uint32(10))
	}

	c, changed := s.WithCoins(-1000)
	assert.True(t, changed)
	assert.Equal(t, uint32(0), c.Coins)

	_, changed = c.WithCoins(-1)
	assert.False(t, changed, "already at the floor")

	_, changed = s.WithPoints(0)
	assert.False(t, changed)
}

func TestWithWeeklyGoal(t *testing.T) {
	s, changed := Defaults().WithWeeklyGoal(300)
	assert.True(t, changed)
	assert.Equal(t, uint32(300), s.WeeklyGoalMinutes)

	_, changed = s.WithWeeklyGoal(300)
	assert.False(t, changed)

	s, _ = s.WithWeeklyGoal(-5)
	assert.Equal(t, uint32(0), s.WeeklyGoalMinutes)
}

func TestWithReward(t *testing.T) {
	s := ProgressStats{Points: 5, Coins: 5}

	same, changed := s.WithReward(0, 0, 0, thu)
	assert.False(t, changed)
	assert.True(t, same.Equal(s))

	next, changed := s.WithReward(25, 10, 2, thu)
	assert.True(t, changed)
	assert.Equal(t, uint32(25), next.TodayStudyMinutes)
	assert.Equal(t, uint32(1), next.Streak)
	assert.Equal(t, uint32(15), next.Points)
	assert.Equal(t, uint32(7), next.Coins)

	// Negative minutes are ignored while points still apply.
	next, changed = s.WithReward(-10, 3, 0, thu)
	assert.True(t, changed)
	assert.Nil(t, next.LastStudyDate)
	assert.Equal(t, uint32(8), next.Points)
}

func TestForDisplay(t *testing.T) {
	s := ProgressStats{TotalStudyMinutes: 90, TodayStudyMinutes: 30, Streak: 3, LastStudyDate: datePtr(tue)}

	shown := s.ForDisplay(thu)
	assert.Equal(t, uint32(0), shown.TodayStudyMinutes)
	assert.Equal(t, uint32(3), shown.Streak)
	assert.Equal(t, uint32(30), s.TodayStudyMinutes, "source untouched")

	assert.Equal(t, uint32(30), s.ForDisplay(tue).TodayStudyMinutes)
	assert.Equal(t, uint32(0), Defaults().ForDisplay(thu).TodayStudyMinutes)
}

func TestGoal(t *testing.T) {
	s := ProgressStats{WeeklyGoalMinutes: 120}
	assert.False(t, s.GoalMet(119))
	assert.True(t, s.GoalMet(120))
	assert.Equal(t, uint32(20), s.GoalRemaining(100))
	assert.Equal(t, uint32(0), s.GoalRemaining(500))
	assert.False(t, Defaults().GoalMet(1000))
}

func TestEqual(t *testing.T) {
	a := ProgressStats{Streak: 1, LastStudyDate: datePtr(thu)}
	b := ProgressStats{Streak: 1, LastStudyDate: datePtr(thu)}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(ProgressStats{Streak: 1}))
}
