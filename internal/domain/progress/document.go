package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE DOCUMENT
// Плоское представление ProgressStats для документных хранилищ.
// Ключи стабильны: менять их нельзя без миграции данных.
// ══════════════════════════════════════════════════════════════════════════════

const (
	DocTotalStudyMinutes = "totalStudyMinutes"
	DocTodayStudyMinutes = "todayStudyMinutes"
	DocStreak            = "streak"
	DocWeeklyGoalMinutes = "weeklyGoalMinutes"
	DocPoints            = "points"
	DocCoins             = "coins"
	DocLastStudyDate     = "lastStudyDate"
)

// ToDocument возвращает документ. Отсутствующая дата хранится как nil.
func (s ProgressStats) ToDocument() map[string]any {
	doc := map[string]any{
		DocTotalStudyMinutes: int64(s.TotalStudyMinutes),
		DocTodayStudyMinutes: int64(s.TodayStudyMinutes),
		DocStreak:            int64(s.Streak),
		DocWeeklyGoalMinutes: int64(s.WeeklyGoalMinutes),
		DocPoints:            int64(s.Points),
		DocCoins:             int64(s.Coins),
		DocLastStudyDate:     nil,
	}
	if s.LastStudyDate != nil {
		doc[DocLastStudyDate] = s.LastStudyDate.String()
	}
	return doc
}

// FromDocument восстанавливает ProgressStats из документа.
// Отсутствующие ключи дают нули; числа принимаются любого целого или
// JSON-вида; отрицательные значения приводятся к 0.
func FromDocument(doc map[string]any) (ProgressStats, error) {
	var s ProgressStats
	fields := []struct {
		key string
		dst *uint32
	}{
		{DocTotalStudyMinutes, &s.TotalStudyMinutes},
		{DocTodayStudyMinutes, &s.TodayStudyMinutes},
		{DocStreak, &s.Streak},
		{DocWeeklyGoalMinutes, &s.WeeklyGoalMinutes},
		{DocPoints, &s.Points},
		{DocCoins, &s.Coins},
	}

	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok || raw == nil {
			continue
		}
		v, err := toUint32(raw)
		if err != nil {
			return ProgressStats{}, shared.WrapError("progress", "FromDocument", shared.ErrInvalidFormat,
				fmt.Sprintf("field %q", f.key), err)
		}
		*f.dst = v
	}

	if raw, ok := doc[DocLastStudyDate]; ok && raw != nil {
		d, err := toDate(raw)
		if err != nil {
			return ProgressStats{}, shared.WrapError("progress", "FromDocument", shared.ErrInvalidFormat,
				fmt.Sprintf("field %q", DocLastStudyDate), err)
		}
		s.LastStudyDate = &d
	}

	return s, nil
}

func toUint32(raw any) (uint32, error) {
	var n int64
	switch v := raw.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case uint32:
		return v, nil
	case uint64:
		if v > math.MaxUint32 {
			return math.MaxUint32, nil
		}
		return uint32(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("not an integer: %v", v)
		}
		if v > math.MaxUint32 {
			return math.MaxUint32, nil
		}
		n = int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, err
		}
		n = i
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
	return uint32(clampInt64(n)), nil
}

func clampInt64(n int64) int64 {
	switch {
	case n < 0:
		return 0
	case n > math.MaxUint32:
		return math.MaxUint32
	}
	return n
}

func toDate(raw any) (timeutil.Date, error) {
	switch v := raw.(type) {
	case string:
		return timeutil.ParseDate(v)
	case timeutil.Date:
		return v, nil
	case time.Time:
		return timeutil.DateOf(v, time.UTC), nil
	default:
		return 0, fmt.Errorf("unsupported type %T", raw)
	}
}
