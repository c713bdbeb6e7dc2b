package progress

import (
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// AttendanceRecord - отметка посещения занятия.
// Ключ - (ClassID, Date); повторная запись по тому же ключу заменяет прежнюю.
// Флаги *Rewarded только взводятся: награда за каждый флаг выдаётся один раз,
// даже если отметку потом сняли и поставили снова.
type AttendanceRecord struct {
	ClassID            string        `json:"class_id"`
	Date               timeutil.Date `json:"date"`
	Attendance         shared.YesNo  `json:"attendance"`
	Completion         shared.YesNo  `json:"completion"`
	AttendanceRewarded bool          `json:"attendance_rewarded"`
	CompletionRewarded bool          `json:"completion_rewarded"`
}

// NewAttendanceRecord создаёт запись из двух флагов.
func NewAttendanceRecord(classID string, date timeutil.Date, attended, completed bool) AttendanceRecord {
	return AttendanceRecord{
		ClassID:    classID,
		Date:       date,
		Attendance: shared.YesNoOf(attended),
		Completion: shared.YesNoOf(completed),
	}
}

// Key возвращает ключ записи.
func (r AttendanceRecord) Key() string {
	return r.ClassID + "@" + r.Date.String()
}

// Attended сообщает, было ли посещение.
func (r AttendanceRecord) Attended() bool {
	return r.Attendance.Bool()
}

// Completed сообщает, выполнено ли занятие.
func (r AttendanceRecord) Completed() bool {
	return r.Completion.Bool()
}

// WithRewardsFrom переносит взведённые флаги награды из прежней записи.
func (r AttendanceRecord) WithRewardsFrom(prev AttendanceRecord) AttendanceRecord {
	r.AttendanceRewarded = r.AttendanceRewarded || prev.AttendanceRewarded
	r.CompletionRewarded = r.CompletionRewarded || prev.CompletionRewarded
	return r
}

// Unrewarded сообщает, какие отмеченные флаги ещё не принесли награды.
func (r AttendanceRecord) Unrewarded() (attended, completed bool) {
	return r.Attended() && !r.AttendanceRewarded, r.Completed() && !r.CompletionRewarded
}
