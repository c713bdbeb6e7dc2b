// Package memory implements in-process repositories for Study Hub.
// They back the worker when no database is configured and serve as fakes in tests.
// Every store supports failure injection so callers can exercise error paths.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR STORE
// ══════════════════════════════════════════════════════════════════════════════

// CalendarStore implements calendar.Store, calendar.Writer and calendar.ClassLookup.
type CalendarStore struct {
	mu      sync.RWMutex
	events  map[shared.AccountID][]calendar.Event
	classes map[shared.AccountID]map[string]struct{}

	failMove map[string]error
	failRead error
	moves    int
}

// NewCalendarStore creates an empty store.
func NewCalendarStore() *CalendarStore {
	return &CalendarStore{
		events:   make(map[shared.AccountID][]calendar.Event),
		classes:  make(map[shared.AccountID]map[string]struct{}),
		failMove: make(map[string]error),
	}
}

// EventsBetween returns events dated in [start, end], ordered by date.
// Events on the same date keep insertion order.
func (s *CalendarStore) EventsBetween(ctx context.Context, account shared.AccountID, start, end timeutil.Date) ([]calendar.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failRead != nil {
		return nil, shared.PersistenceError("calendar", "EventsBetween", s.failRead)
	}

	out := make([]calendar.Event, 0)
	for _, e := range s.events[account] {
		if !e.Date.Before(start) && !e.Date.After(end) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// MoveEventDate changes the date of an event.
func (s *CalendarStore) MoveEventDate(ctx context.Context, account shared.AccountID, id string, newDate timeutil.Date) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failMove[id]; ok {
		return shared.PersistenceError("calendar", "MoveEventDate", err)
	}

	events := s.events[account]
	for i := range events {
		if events[i].ID == id {
			events[i].Date = newDate
			s.moves++
			return nil
		}
	}
	return calendar.ErrEventNotFound
}

// Add stores a new event. An event with the same ID is rejected.
func (s *CalendarStore) Add(ctx context.Context, account shared.AccountID, event calendar.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.events[account] {
		if e.ID == event.ID {
			return shared.NewDomainError("calendar", "Add", shared.ErrAlreadyExists, "event already exists")
		}
	}
	s.events[account] = append(s.events[account], event)
	return nil
}

// SetCompleted marks an event done or not done.
func (s *CalendarStore) SetCompleted(ctx context.Context, account shared.AccountID, id string, completed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[account]
	for i := range events {
		if events[i].ID == id {
			events[i].Completed = completed
			return nil
		}
	}
	return calendar.ErrEventNotFound
}

// ClassExists reports whether classID is a registered class or the ID of a class event.
func (s *CalendarStore) ClassExists(ctx context.Context, account shared.AccountID, classID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.failRead != nil {
		return false, shared.PersistenceError("calendar", "ClassExists", s.failRead)
	}
	if _, ok := s.classes[account][classID]; ok {
		return true, nil
	}
	for _, e := range s.events[account] {
		if e.ID == classID && e.Kind == calendar.KindClass {
			return true, nil
		}
	}
	return false, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Test helpers
// ─────────────────────────────────────────────────────────────────────────────

// RegisterClass adds a class without a calendar entry.
func (s *CalendarStore) RegisterClass(account shared.AccountID, classID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.classes[account] == nil {
		s.classes[account] = make(map[string]struct{})
	}
	s.classes[account][classID] = struct{}{}
}

// FailMove makes every MoveEventDate for id fail with err. A nil err clears it.
func (s *CalendarStore) FailMove(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failMove, id)
		return
	}
	s.failMove[id] = err
}

// FailReads makes reads fail with err. A nil err clears it.
func (s *CalendarStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRead = err
}

// Event returns the stored event with the given ID.
func (s *CalendarStore) Event(account shared.AccountID, id string) (calendar.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events[account] {
		if e.ID == id {
			return e, true
		}
	}
	return calendar.Event{}, false
}

// MoveCount returns the number of applied moves.
func (s *CalendarStore) MoveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.moves
}
