package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository.
// Documents are stored in their map form so the codec is exercised.
type ProgressRepository struct {
	mu      sync.Mutex
	docs    map[shared.AccountID]map[string]any
	history map[shared.AccountID][]progress.ProgressStats

	failSaves int
	failErr   error
	onSave    func(shared.AccountID, progress.ProgressStats)
}

// NewProgressRepository creates an empty repository.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{
		docs:    make(map[shared.AccountID]map[string]any),
		history: make(map[shared.AccountID][]progress.ProgressStats),
	}
}

// Load returns the stored stats or progress.ErrStatsNotFound.
func (r *ProgressRepository) Load(ctx context.Context, account shared.AccountID) (progress.ProgressStats, error) {
	if err := ctx.Err(); err != nil {
		return progress.ProgressStats{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[account]
	if !ok {
		return progress.ProgressStats{}, progress.ErrStatsNotFound
	}
	return progress.FromDocument(doc)
}

// Save overwrites the stored stats.
func (r *ProgressRepository) Save(ctx context.Context, account shared.AccountID, stats progress.ProgressStats) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.failSaves != 0 {
		if r.failSaves > 0 {
			r.failSaves--
		}
		err := r.failErr
		r.mu.Unlock()
		return shared.PersistenceError("progress", "Save", err)
	}
	r.docs[account] = stats.ToDocument()
	r.history[account] = append(r.history[account], stats.Clone())
	hook := r.onSave
	r.mu.Unlock()

	if hook != nil {
		hook(account, stats)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// FailNextSaves makes the next n saves fail with err. A negative n fails
// every save until cleared with FailNextSaves(0, nil).
func (r *ProgressRepository) FailNextSaves(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		err = errors.New("store unavailable")
	}
	r.failSaves = n
	r.failErr = err
}

// OnSave registers a hook called after every successful save.
func (r *ProgressRepository) OnSave(fn func(shared.AccountID, progress.ProgressStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSave = fn
}

// Put stores stats directly, bypassing history.
func (r *ProgressRepository) Put(account shared.AccountID, stats progress.ProgressStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[account] = stats.ToDocument()
}

// History returns every successfully saved state for the account, in order.
func (r *ProgressRepository) History(account shared.AccountID) []progress.ProgressStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]progress.ProgressStats, len(r.history[account]))
	copy(out, r.history[account])
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AttendanceRepository implements progress.AttendanceRepository.
type AttendanceRepository struct {
	mu      sync.RWMutex
	records map[shared.AccountID]map[string]progress.AttendanceRecord
	failErr error
}

// NewAttendanceRepository creates an empty repository.
func NewAttendanceRepository() *AttendanceRepository {
	return &AttendanceRepository{
		records: make(map[shared.AccountID]map[string]progress.AttendanceRecord),
	}
}

// Get returns the record for (classID, date) or progress.ErrAttendanceNotFound.
func (r *AttendanceRepository) Get(ctx context.Context, account shared.AccountID, classID string, date timeutil.Date) (progress.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return progress.AttendanceRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	key := progress.AttendanceRecord{ClassID: classID, Date: date}.Key()
	rec, ok := r.records[account][key]
	if !ok {
		return progress.AttendanceRecord{}, progress.ErrAttendanceNotFound
	}
	return rec, nil
}

// Upsert replaces the record with the same key. Reward markers already set stay set.
func (r *AttendanceRepository) Upsert(ctx context.Context, account shared.AccountID, record progress.AttendanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return shared.PersistenceError("attendance", "Upsert", r.failErr)
	}
	if r.records[account] == nil {
		r.records[account] = make(map[string]progress.AttendanceRecord)
	}
	if prev, ok := r.records[account][record.Key()]; ok {
		record = record.WithRewardsFrom(prev)
	}
	r.records[account][record.Key()] = record
	return nil
}

// ListBetween returns records dated in [start, end], ordered by date then class.
func (r *AttendanceRepository) ListBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]progress.AttendanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]progress.AttendanceRecord, 0)
	for _, rec := range r.records[account] {
		if !rec.Date.Before(start) && !rec.Date.After(end) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ClassID < out[j].ClassID
	})
	return out, nil
}

// FailWrites makes Upsert fail with err. A nil err clears it.
func (r *AttendanceRepository) FailWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}
