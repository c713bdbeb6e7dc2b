// Package calendar содержит доменную модель учебного календаря.
// Здесь нет внешних зависимостей кроме генерации идентификаторов.
package calendar

import (
	"strings"

	"github.com/google/uuid"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// EventKind - тип события календаря.
type EventKind string

const (
	// KindStudy - запланированная самостоятельная учёба.
	KindStudy EventKind = "study"
	// KindClass - занятие по расписанию.
	KindClass EventKind = "class"
	// KindTask - задача с дедлайном.
	KindTask EventKind = "task"
	// KindOther - всё остальное.
	KindOther EventKind = "other"
)

// IsValid проверяет, что тип известен.
func (k EventKind) IsValid() bool {
	switch k {
	case KindStudy, KindClass, KindTask, KindOther:
		return true
	}
	return false
}

// ParseEventKind разбирает тип события; неизвестные значения дают KindOther.
func ParseEventKind(s string) EventKind {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return KindOther
	}
	return k
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Event - событие календаря. Порядок внутри дня не важен, хранится только дата.
type Event struct {
	// ID уникален в пределах хранилища.
	ID string `json:"id"`

	// Date - дата события.
	Date timeutil.Date `json:"date"`

	// Title - название.
	Title string `json:"title"`

	// Kind - тип события.
	Kind EventKind `json:"kind"`

	// Completed - отметка о выполнении, если тип события её поддерживает.
	Completed bool `json:"completed"`

	// DurationMinutes - плановая длительность; используется для недельной цели.
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// NewEventParams - параметры создания события.
type NewEventParams struct {
	Date            timeutil.Date
	Title           string
	Kind            EventKind
	DurationMinutes int
}

// NewEvent создаёт событие с новым идентификатором.
func NewEvent(p NewEventParams) (Event, error) {
	title := strings.TrimSpace(p.Title)
	if title == "" {
		return Event{}, ErrEmptyTitle
	}
	if p.DurationMinutes < 0 {
		return Event{}, ErrInvalidDuration
	}
	kind := p.Kind
	if !kind.IsValid() {
		kind = KindOther
	}
	return Event{
		ID:              uuid.NewString(),
		Date:            p.Date,
		Title:           title,
		Kind:            kind,
		DurationMinutes: p.DurationMinutes,
	}, nil
}

// MovedTo возвращает копию события с новой датой.
func (e Event) MovedTo(d timeutil.Date) Event {
	e.Date = d
	return e
}

// IsStudy сообщает, засчитывается ли событие в учебное время.
func (e Event) IsStudy() bool {
	return e.Kind == KindStudy || e.Kind == KindClass
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrEventNotFound   = shared.NewDomainError("calendar", "Find", shared.ErrNotFound, "event not found")
	ErrClassNotFound   = shared.NewDomainError("calendar", "FindClass", shared.ErrNotFound, "class not found")
	ErrEmptyTitle      = shared.NewDomainError("calendar", "Validate", shared.ErrEmptyValue, "event title cannot be empty")
	ErrInvalidDuration = shared.NewDomainError("calendar", "Validate", shared.ErrInvalidInput, "duration cannot be negative")
)

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// CompletedStudyMinutes суммирует длительность выполненных учебных событий в окне.
func CompletedStudyMinutes(events []Event, w timeutil.WeekWindow) int {
	total := 0
	for _, e := range events {
		if e.Completed && e.IsStudy() && w.Contains(e.Date) {
			total += e.DurationMinutes
		}
	}
	return total
}

// InWindow возвращает события, попадающие в окно, сохраняя порядок.
func InWindow(events []Event, w timeutil.WeekWindow) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if w.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}
