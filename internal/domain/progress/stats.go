// Package progress содержит доменную модель учебного прогресса:
// учебные минуты, серию дней, недельную цель, очки и монеты.
// Все переходы состояния - чистые функции над значением ProgressStats;
// хранение и синхронизация живут в application/ledger.
package progress

import (
	"math"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION CLASSIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionKind - положение "сегодня" относительно последнего учебного дня.
type SessionKind int

const (
	// FirstEver - учебных дней ещё не было.
	FirstEver SessionKind = iota
	// SameDay - уже учились сегодня.
	SameDay
	// ConsecutiveDay - последний учебный день был вчера.
	ConsecutiveDay
	// AfterGap - пропущен хотя бы один день.
	AfterGap
)

// String возвращает название вида сессии.
func (k SessionKind) String() string {
	switch k {
	case FirstEver:
		return "first_ever"
	case SameDay:
		return "same_day"
	case ConsecutiveDay:
		return "consecutive_day"
	case AfterGap:
		return "after_gap"
	default:
		return "unknown"
	}
}

// Classify определяет вид сессии.
// Дата последней учёбы позже сегодняшней (сдвиг часов) считается SameDay.
func Classify(last *timeutil.Date, today timeutil.Date) SessionKind {
	if last == nil {
		return FirstEver
	}

	switch diff := last.DaysUntil(today); {
	case diff <= 0:
		return SameDay
	case diff == 1:
		return ConsecutiveDay
	default:
		return AfterGap
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStats - счётчики прогресса одного аккаунта.
// Значение неизменяемое по смыслу: каждый переход возвращает новую копию.
type ProgressStats struct {
	// TotalStudyMinutes - всего минут учёбы.
	TotalStudyMinutes uint32 `json:"total_study_minutes"`

	// TodayStudyMinutes - минут учёбы за LastStudyDate.
	TodayStudyMinutes uint32 `json:"today_study_minutes"`

	// Streak - серия учебных дней подряд.
	Streak uint32 `json:"streak"`

	// WeeklyGoalMinutes - цель на неделю, 0 - цель не задана.
	WeeklyGoalMinutes uint32 `json:"weekly_goal_minutes"`

	// Points - очки.
	Points uint32 `json:"points"`

	// Coins - монеты.
	Coins uint32 `json:"coins"`

	// LastStudyDate - последний учебный день, nil если учёбы не было.
	LastStudyDate *timeutil.Date `json:"last_study_date"`
}

// Defaults возвращает начальное состояние для нового аккаунта.
func Defaults() ProgressStats {
	return ProgressStats{}
}

// Equal сравнивает значения, включая дату по значению, а не по указателю.
func (s ProgressStats) Equal(o ProgressStats) bool {
	if s.TotalStudyMinutes != o.TotalStudyMinutes ||
		s.TodayStudyMinutes != o.TodayStudyMinutes ||
		s.Streak != o.Streak ||
		s.WeeklyGoalMinutes != o.WeeklyGoalMinutes ||
		s.Points != o.Points ||
		s.Coins != o.Coins {
		return false
	}
	if s.LastStudyDate == nil || o.LastStudyDate == nil {
		return s.LastStudyDate == nil && o.LastStudyDate == nil
	}
	return *s.LastStudyDate == *o.LastStudyDate
}

// Clone возвращает копию без общих указателей.
func (s ProgressStats) Clone() ProgressStats {
	if s.LastStudyDate != nil {
		d := *s.LastStudyDate
		s.LastStudyDate = &d
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITIONS
// Каждый переход возвращает (новое состояние, изменилось ли что-то).
// changed == false означает no-op: писать в хранилище не нужно.
// ══════════════════════════════════════════════════════════════════════════════

// ClampAdd прибавляет delta к v с ограничением снизу 0 и сверху MaxUint32.
func ClampAdd(v uint32, delta int) uint32 {
	sum := int64(v) + int64(delta)
	switch {
	case sum < 0:
		return 0
	case sum > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(sum)
	}
}

// WithStudyMinutes записывает delta минут учёбы за today.
//
// Серия: FirstEver -> 1, SameDay - без изменений, ConsecutiveDay -> +1,
// AfterGap -> 1. Если предыдущий записанный день закончился с нулём минут
// (день "занят", но учёбы не было), серия сначала обнуляется.
// Минуты за сегодня продолжают копиться только в SameDay, иначе начинаются с delta.
func (s ProgressStats) WithStudyMinutes(delta int, today timeutil.Date) (ProgressStats, bool) {
	if delta <= 0 {
		return s, false
	}

	kind := Classify(s.LastStudyDate, today)
	next := s.Clone()

	carried := s.Streak
	if kind != SameDay && s.LastStudyDate != nil && s.TodayStudyMinutes == 0 {
		carried = 0
	}

	switch kind {
	case FirstEver:
		next.Streak = 1
	case SameDay:
		next.Streak = carried
	case ConsecutiveDay:
		next.Streak = ClampAdd(carried, 1)
	case AfterGap:
		next.Streak = 1
	}

	var base uint32
	if kind == SameDay {
		base = s.TodayStudyMinutes
	}

	next.TotalStudyMinutes = ClampAdd(s.TotalStudyMinutes, delta)
	next.TodayStudyMinutes = ClampAdd(base, delta)

	// При сдвиге часов не откатываем дату назад.
	if s.LastStudyDate == nil || s.LastStudyDate.Before(today) {
		d := today
		next.LastStudyDate = &d
	}

	return next, !next.Equal(s)
}

// WithCoins прибавляет delta монет с ограничением снизу 0.
func (s ProgressStats) WithCoins(delta int) (ProgressStats, bool) {
	if delta == 0 {
		return s, false
	}
	next := s.Clone()
	next.Coins = ClampAdd(s.Coins, delta)
	return next, next.Coins != s.Coins
}

// WithPoints прибавляет delta очков с ограничением снизу 0.
func (s ProgressStats) WithPoints(delta int) (ProgressStats, bool) {
	if delta == 0 {
		return s, false
	}
	next := s.Clone()
	next.Points = ClampAdd(s.Points, delta)
	return next, next.Points != s.Points
}

// WithWeeklyGoal заменяет недельную цель; отрицательные значения дают 0.
func (s ProgressStats) WithWeeklyGoal(minutes int) (ProgressStats, bool) {
	goal := ClampAdd(0, minutes)
	if goal == s.WeeklyGoalMinutes {
		return s, false
	}
	next := s.Clone()
	next.WeeklyGoalMinutes = goal
	return next, true
}

// WithReward применяет составную награду одним переходом:
// минуты (если > 0) через WithStudyMinutes, затем ненулевые очки и монеты.
// Полностью нулевая награда - no-op.
func (s ProgressStats) WithReward(minutes, points, coins int, today timeutil.Date) (ProgressStats, bool) {
	next := s
	var changed, c bool

	if minutes > 0 {
		next, c = next.WithStudyMinutes(minutes, today)
		changed = changed || c
	}
	next, c = next.WithPoints(points)
	changed = changed || c
	next, c = next.WithCoins(coins)
	changed = changed || c

	return next, changed
}

// ══════════════════════════════════════════════════════════════════════════════
// READ SIDE
// ══════════════════════════════════════════════════════════════════════════════

// ForDisplay возвращает состояние для показа: если последний учебный день
// не сегодня, минуты за сегодня показываются как 0. Серия не трогается,
// результат никогда не сохраняется.
func (s ProgressStats) ForDisplay(today timeutil.Date) ProgressStats {
	out := s.Clone()
	if s.LastStudyDate == nil || *s.LastStudyDate != today {
		out.TodayStudyMinutes = 0
	}
	return out
}

// GoalMet сообщает, выполнена ли недельная цель. Без цели - false.
func (s ProgressStats) GoalMet(minutesThisWeek int) bool {
	return s.WeeklyGoalMinutes > 0 && int64(minutesThisWeek) >= int64(s.WeeklyGoalMinutes)
}

// GoalRemaining возвращает, сколько минут осталось до цели.
func (s ProgressStats) GoalRemaining(minutesThisWeek int) uint32 {
	return ClampAdd(s.WeeklyGoalMinutes, -minutesThisWeek)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrStatsNotFound      = shared.NewDomainError("progress", "Load", shared.ErrNotFound, "progress stats not found")
	ErrAttendanceNotFound = shared.NewDomainError("progress", "GetAttendance", shared.ErrNotFound, "attendance record not found")
)
