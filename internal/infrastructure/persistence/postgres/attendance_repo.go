package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// AttendanceRepository implements progress.AttendanceRepository for PostgreSQL.
type AttendanceRepository struct {
	conn Querier
}

// NewAttendanceRepository creates a new AttendanceRepository.
func NewAttendanceRepository(conn Querier) *AttendanceRepository {
	return &AttendanceRepository{conn: conn}
}

// Get returns the record for (classID, date) or progress.ErrAttendanceNotFound.
func (r *AttendanceRepository) Get(ctx context.Context, account shared.AccountID, classID string, date timeutil.Date) (progress.AttendanceRecord, error) {
	query := `
		SELECT attendance, completion, attendance_rewarded, completion_rewarded FROM attendance
		WHERE account_id = $1 AND class_id = $2 AND date = $3
	`

	var (
		attendance, completion string
		rewarded               [2]bool
	)
	err := r.conn.QueryRow(ctx, query, account.String(), classID, date.Time(time.UTC)).
		Scan(&attendance, &completion, &rewarded[0], &rewarded[1])
	if err != nil {
		if IsNoRows(err) {
			return progress.AttendanceRecord{}, progress.ErrAttendanceNotFound
		}
		return progress.AttendanceRecord{}, shared.PersistenceError("progress", "GetAttendance", err)
	}

	return buildRecord(classID, date, attendance, completion, rewarded)
}

// Upsert replaces the record with the same key or inserts a new one.
// Reward markers are OR-ed with the stored ones and never cleared.
func (r *AttendanceRepository) Upsert(ctx context.Context, account shared.AccountID, rec progress.AttendanceRecord) error {
	query := `
		INSERT INTO attendance (account_id, class_id, date, attendance, completion,
			attendance_rewarded, completion_rewarded, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (account_id, class_id, date) DO UPDATE SET
			attendance = EXCLUDED.attendance,
			completion = EXCLUDED.completion,
			attendance_rewarded = attendance.attendance_rewarded OR EXCLUDED.attendance_rewarded,
			completion_rewarded = attendance.completion_rewarded OR EXCLUDED.completion_rewarded,
			updated_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query,
		account.String(),
		rec.ClassID,
		rec.Date.Time(time.UTC),
		string(rec.Attendance),
		string(rec.Completion),
		rec.AttendanceRewarded,
		rec.CompletionRewarded,
	)
	if err != nil {
		return shared.PersistenceError("progress", "UpsertAttendance", err)
	}

	return nil
}

// ListBetween returns records dated within [start, end], by date then class.
func (r *AttendanceRepository) ListBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]progress.AttendanceRecord, error) {
	query := `
		SELECT class_id, date, attendance, completion, attendance_rewarded, completion_rewarded
		FROM attendance
		WHERE account_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, class_id
	`

	rows, err := r.conn.Query(ctx, query, account.String(), start.Time(time.UTC), end.Time(time.UTC))
	if err != nil {
		return nil, shared.PersistenceError("progress", "ListAttendance", err)
	}
	defer rows.Close()

	records := make([]progress.AttendanceRecord, 0)
	for rows.Next() {
		var (
			classID, attendance, completion string
			date                            time.Time
			rewarded                        [2]bool
		)
		if err := rows.Scan(&classID, &date, &attendance, &completion, &rewarded[0], &rewarded[1]); err != nil {
			return nil, shared.PersistenceError("progress", "ListAttendance",
				fmt.Errorf("failed to scan attendance row: %w", err))
		}
		rec, err := buildRecord(classID, timeutil.DateOf(date, time.UTC), attendance, completion, rewarded)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.PersistenceError("progress", "ListAttendance", err)
	}

	return records, nil
}

// buildRecord takes the reward markers as {attendance, completion}.
func buildRecord(classID string, date timeutil.Date, attendance, completion string, rewarded [2]bool) (progress.AttendanceRecord, error) {
	a, err := shared.ParseYesNo(attendance)
	if err != nil {
		return progress.AttendanceRecord{}, err
	}
	c, err := shared.ParseYesNo(completion)
	if err != nil {
		return progress.AttendanceRecord{}, err
	}
	return progress.AttendanceRecord{
		ClassID:            classID,
		Date:               date,
		Attendance:         a,
		Completion:         c,
		AttendanceRewarded: rewarded[0],
		CompletionRewarded: rewarded[1],
	}, nil
}
