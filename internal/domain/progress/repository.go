package progress

import (
	"context"

	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит ProgressStats аккаунта. Запись перезаписывает документ целиком.
type Repository interface {
	// Load возвращает сохранённое состояние.
	// Возвращает ErrStatsNotFound, если аккаунт ещё ничего не сохранял.
	Load(ctx context.Context, account shared.AccountID) (ProgressStats, error)

	// Save перезаписывает состояние (last-writer-wins).
	Save(ctx context.Context, account shared.AccountID, stats ProgressStats) error
}

// AttendanceRepository хранит отметки посещаемости.
type AttendanceRepository interface {
	// Get возвращает запись по ключу.
	// Возвращает ErrAttendanceNotFound, если записи нет.
	Get(ctx context.Context, account shared.AccountID, classID string, date timeutil.Date) (AttendanceRecord, error)

	// Upsert заменяет запись с тем же ключом или создаёт новую.
	Upsert(ctx context.Context, account shared.AccountID, record AttendanceRecord) error

	// ListBetween возвращает записи с датой в [start, end], по дате.
	ListBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]AttendanceRecord, error)
}
