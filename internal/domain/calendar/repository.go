package calendar

import (
	"context"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем календаря.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store - хранилище событий календаря одного аккаунта.
type Store interface {
	// EventsBetween возвращает события с датой в [start, end] включительно.
	// Пустой результат - не ошибка.
	EventsBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]Event, error)

	// MoveEventDate переносит событие на новую дату.
	// Возвращает ErrEventNotFound, если события нет.
	MoveEventDate(ctx context.Context, account shared.AccountID, id string, newDate timeutil.Date) error
}

// Writer - операции наполнения календаря, нужные вне ядра планировщика.
type Writer interface {
	// Add сохраняет новое событие.
	Add(ctx context.Context, account shared.AccountID, event Event) error

	// SetCompleted меняет отметку о выполнении.
	// Возвращает ErrEventNotFound, если события нет.
	SetCompleted(ctx context.Context, account shared.AccountID, id string, completed bool) error
}

// ClassLookup проверяет существование занятия для отметки посещаемости.
type ClassLookup interface {
	// ClassExists сообщает, есть ли занятие с таким идентификатором.
	ClassExists(ctx context.Context, account shared.AccountID, classID string) (bool, error)
}
