// Package planner computes how a week's study plan should be rebalanced.
//
// PlanAdjustments is a pure function of its inputs: it performs no I/O,
// reads no clock and never fails. The caller applies the resulting moves
// against the calendar store, one independent call per move.
//
// The heuristic is greedy and single-pass:
//
//   - a missed event (by default: dated before today and not completed)
//     goes to the Monday of the following week;
//   - an event flagged by the caller as ahead of schedule goes to the
//     least loaded day between today and the end of the current week,
//     ties going to the earliest day.
package planner

import (
	"github.com/alem-hub/study-hub/internal/domain/calendar"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PLAN
// ══════════════════════════════════════════════════════════════════════════════

// Move is a single requested date change.
type Move struct {
	Event calendar.Event `json:"event"`
	From  timeutil.Date  `json:"from"`
	To    timeutil.Date  `json:"to"`
}

// Plan is the outcome of one planning pass. It is not persisted.
type Plan struct {
	Today         timeutil.Date       `json:"today"`
	Week          timeutil.WeekWindow `json:"week"`
	MovedMissed   []Move              `json:"moved_missed"`
	PulledEarlier []Move              `json:"pulled_earlier"`

	// NextMondayLoad is how many events next Monday will hold once the
	// missed events land there. Informational only.
	NextMondayLoad int `json:"next_monday_load"`
}

// IsEmpty reports whether the plan requests no moves.
func (p Plan) IsEmpty() bool {
	return len(p.MovedMissed) == 0 && len(p.PulledEarlier) == 0
}

// Moves returns every move, missed first, each group in input order.
func (p Plan) Moves() []Move {
	out := make([]Move, 0, len(p.MovedMissed)+len(p.PulledEarlier))
	out = append(out, p.MovedMissed...)
	out = append(out, p.PulledEarlier...)
	return out
}

// MissedEvents returns the events pushed to next week.
func (p Plan) MissedEvents() []calendar.Event {
	return eventsOf(p.MovedMissed)
}

// PulledEvents returns the events pulled into the current week.
func (p Plan) PulledEvents() []calendar.Event {
	return eventsOf(p.PulledEarlier)
}

func eventsOf(moves []Move) []calendar.Event {
	out := make([]calendar.Event, 0, len(moves))
	for _, m := range moves {
		out = append(out, m.Event)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// MissedFunc decides whether an event counts as missed on the given day.
type MissedFunc func(e calendar.Event, today timeutil.Date) bool

// DateOnlyMissed is the default rule: dated strictly before today and not completed.
func DateOnlyMissed(e calendar.Event, today timeutil.Date) bool {
	return e.Date.Before(today) && !e.Completed
}

// PastDateMissed ignores the completion flag. Use it for event kinds that
// carry no completion state: anything still listed in the past is missed.
func PastDateMissed(e calendar.Event, today timeutil.Date) bool {
	return e.Date.Before(today)
}

type options struct {
	missed      MissedFunc
	pullEarlier func(calendar.Event) bool
}

// Option configures a planning pass.
type Option func(*options)

// WithMissedFunc replaces the missed predicate. A nil fn keeps the default.
func WithMissedFunc(fn MissedFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.missed = fn
		}
	}
}

// WithPullEarlier flags events, by ID, as ahead of schedule.
func WithPullEarlier(ids ...string) Option {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(o *options) {
		prev := o.pullEarlier
		o.pullEarlier = func(e calendar.Event) bool {
			if _, ok := set[e.ID]; ok {
				return true
			}
			return prev != nil && prev(e)
		}
	}
}

// WithPullEarlierFunc flags events as ahead of schedule by predicate.
func WithPullEarlierFunc(fn func(calendar.Event) bool) Option {
	return func(o *options) {
		if fn == nil {
			return
		}
		prev := o.pullEarlier
		o.pullEarlier = func(e calendar.Event) bool {
			return fn(e) || (prev != nil && prev(e))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PLANNING
// ══════════════════════════════════════════════════════════════════════════════

// PlanAdjustments classifies currentWeek against today and returns where
// missed and flagged events should move. nextWeek does not influence any
// target; it only feeds NextMondayLoad.
func PlanAdjustments(today timeutil.Date, currentWeek, nextWeek []calendar.Event, opts ...Option) Plan {
	o := options{missed: DateOnlyMissed}
	for _, opt := range opts {
		opt(&o)
	}

	week := timeutil.WeekOf(today)
	nextMonday := week.Next().Start

	plan := Plan{
		Today:         today,
		Week:          week,
		MovedMissed:   []Move{},
		PulledEarlier: []Move{},
	}

	// Load is counted once from the input; placements do not update it.
	load := make(map[timeutil.Date]int, 7)
	for _, e := range currentWeek {
		load[e.Date]++
	}
	best := leastLoaded(today, week.End, load)

	for _, e := range currentWeek {
		switch {
		case o.missed(e, today):
			plan.MovedMissed = append(plan.MovedMissed, Move{Event: e, From: e.Date, To: nextMonday})
		case o.pullEarlier != nil && o.pullEarlier(e):
			if e.Date == best {
				continue
			}
			plan.PulledEarlier = append(plan.PulledEarlier, Move{Event: e, From: e.Date, To: best})
		}
	}

	for _, e := range nextWeek {
		if e.Date == nextMonday {
			plan.NextMondayLoad++
		}
	}
	plan.NextMondayLoad += len(plan.MovedMissed)

	return plan
}

// leastLoaded returns the date in [from, to] with the smallest load,
// the earliest one on ties.
func leastLoaded(from, to timeutil.Date, load map[timeutil.Date]int) timeutil.Date {
	best := from
	bestLoad := load[from]
	for d := from.AddDays(1); !d.After(to); d = d.AddDays(1) {
		if load[d] < bestLoad {
			best, bestLoad = d, load[d]
		}
	}
	return best
}
