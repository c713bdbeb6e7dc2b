package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// CalendarRepository implements calendar.Store, calendar.Writer and
// calendar.ClassLookup for PostgreSQL.
type CalendarRepository struct {
	conn Querier
}

// NewCalendarRepository creates a new CalendarRepository.
func NewCalendarRepository(conn Querier) *CalendarRepository {
	return &CalendarRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// EventsBetween returns events dated within [start, end], ordered by date.
func (r *CalendarRepository) EventsBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]calendar.Event, error) {
	query := `
		SELECT id, date, title, kind, completed, duration_minutes
		FROM calendar_events
		WHERE account_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, created_at, id
	`

	rows, err := r.conn.Query(ctx, query, account.String(), start.Time(time.UTC), end.Time(time.UTC))
	if err != nil {
		return nil, shared.PersistenceError("calendar", "EventsBetween", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, shared.PersistenceError("calendar", "EventsBetween", err)
	}
	return events, nil
}

// MoveEventDate sets a new date for one event.
func (r *CalendarRepository) MoveEventDate(ctx context.Context, account shared.AccountID, id string, newDate timeutil.Date) error {
	query := `
		UPDATE calendar_events SET date = $3, updated_at = NOW()
		WHERE account_id = $1 AND id = $2
	`

	tag, err := r.conn.Exec(ctx, query, account.String(), id, newDate.Time(time.UTC))
	if err != nil {
		return shared.PersistenceError("calendar", "MoveEventDate", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrEventNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writer
// ─────────────────────────────────────────────────────────────────────────────

// Add inserts a new event.
func (r *CalendarRepository) Add(ctx context.Context, account shared.AccountID, e calendar.Event) error {
	query := `
		INSERT INTO calendar_events (account_id, id, date, title, kind, completed, duration_minutes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Exec(ctx, query,
		account.String(),
		e.ID,
		e.Date.Time(time.UTC),
		e.Title,
		string(e.Kind),
		e.Completed,
		e.DurationMinutes,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("calendar", "Add", shared.ErrAlreadyExists, "event already exists")
		}
		return shared.PersistenceError("calendar", "Add", err)
	}

	return nil
}

// SetCompleted changes an event's completion flag.
func (r *CalendarRepository) SetCompleted(ctx context.Context, account shared.AccountID, id string, completed bool) error {
	query := `
		UPDATE calendar_events SET completed = $3, updated_at = NOW()
		WHERE account_id = $1 AND id = $2
	`

	tag, err := r.conn.Exec(ctx, query, account.String(), id, completed)
	if err != nil {
		return shared.PersistenceError("calendar", "SetCompleted", err)
	}
	if tag.RowsAffected() == 0 {
		return calendar.ErrEventNotFound
	}

	return nil
}

// AddClass registers a class for attendance marking. Re-adding is a no-op.
func (r *CalendarRepository) AddClass(ctx context.Context, account shared.AccountID, classID, title string) error {
	query := `
		INSERT INTO classes (account_id, id, title) VALUES ($1, $2, $3)
		ON CONFLICT (account_id, id) DO NOTHING
	`

	if _, err := r.conn.Exec(ctx, query, account.String(), classID, title); err != nil {
		return shared.PersistenceError("calendar", "AddClass", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ClassLookup
// ─────────────────────────────────────────────────────────────────────────────

// ClassExists reports whether classID is a registered class or a class event.
func (r *CalendarRepository) ClassExists(ctx context.Context, account shared.AccountID, classID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM classes WHERE account_id = $1 AND id = $2
			UNION ALL
			SELECT 1 FROM calendar_events WHERE account_id = $1 AND id = $2 AND kind = 'class'
		)
	`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, account.String(), classID).Scan(&exists); err != nil {
		return false, shared.PersistenceError("calendar", "ClassExists", err)
	}
	return exists, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func scanEvents(rows pgx.Rows) ([]calendar.Event, error) {
	events := make([]calendar.Event, 0)
	for rows.Next() {
		var (
			e    calendar.Event
			date time.Time
			kind string
		)
		if err := rows.Scan(&e.ID, &date, &e.Title, &kind, &e.Completed, &e.DurationMinutes); err != nil {
			return nil, fmt.Errorf("failed to scan calendar event: %w", err)
		}
		e.Date = timeutil.DateOf(date, time.UTC)
		e.Kind = calendar.ParseEventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}
