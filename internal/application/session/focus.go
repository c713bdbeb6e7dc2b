package session

import (
	"time"

	"github.com/alem-hub/study-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FOCUS TIMER
// Idle -> Work -> ShortBreak | LongBreak -> Work -> ...
// The timer never reads the clock; every transition takes "now".
// ══════════════════════════════════════════════════════════════════════════════

// Phase is a focus timer phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseWork
	PhaseShortBreak
	PhaseLongBreak
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseWork:
		return "work"
	case PhaseShortBreak:
		return "short_break"
	case PhaseLongBreak:
		return "long_break"
	default:
		return "idle"
	}
}

// FocusConfig configures interval lengths.
type FocusConfig struct {
	Work       time.Duration
	ShortBreak time.Duration
	LongBreak  time.Duration

	// LongBreakEvery is the number of work intervals between long breaks.
	LongBreakEvery int

	// AutoStartWork starts the next work interval as soon as a break ends.
	// When false the timer waits, paused, at the start of the next interval.
	AutoStartWork bool
}

// DefaultFocusConfig returns the classic 25/5/15 cycle.
func DefaultFocusConfig() FocusConfig {
	return FocusConfig{
		Work:           25 * time.Minute,
		ShortBreak:     5 * time.Minute,
		LongBreak:      15 * time.Minute,
		LongBreakEvery: 4,
	}
}

func (c FocusConfig) withDefaults() FocusConfig {
	def := DefaultFocusConfig()
	if c.Work <= 0 {
		c.Work = def.Work
	}
	if c.ShortBreak <= 0 {
		c.ShortBreak = def.ShortBreak
	}
	if c.LongBreak <= 0 {
		c.LongBreak = def.LongBreak
	}
	if c.LongBreakEvery <= 0 {
		c.LongBreakEvery = def.LongBreakEvery
	}
	return c
}

// Completion describes a phase that ran to its end.
type Completion struct {
	Phase   Phase
	Started time.Time
	Ended   time.Time
}

// Minutes returns the whole minutes of the completed phase.
func (c Completion) Minutes() int {
	return int(c.Ended.Sub(c.Started) / time.Minute)
}

var (
	ErrTimerRunning   = shared.NewDomainError("session", "Start", shared.ErrStateTransition, "focus timer already started")
	ErrTimerIdle      = shared.NewDomainError("session", "Timer", shared.ErrStateTransition, "focus timer is idle")
	ErrTimerPaused    = shared.NewDomainError("session", "Pause", shared.ErrStateTransition, "focus timer already paused")
	ErrTimerNotPaused = shared.NewDomainError("session", "Resume", shared.ErrStateTransition, "focus timer is not paused")
)

// FocusTimer is a pomodoro style state machine. It is not safe for concurrent use.
type FocusTimer struct {
	cfg FocusConfig

	phase     Phase
	paused    bool
	started   time.Time // start of the current phase, shifted by pauses
	deadline  time.Time
	remaining time.Duration // valid while paused

	completedWork int
}

// NewFocusTimer creates an idle timer.
func NewFocusTimer(cfg FocusConfig) *FocusTimer {
	return &FocusTimer{cfg: cfg.withDefaults()}
}

// Phase returns the current phase.
func (t *FocusTimer) Phase() Phase { return t.phase }

// Paused reports whether the countdown is stopped.
func (t *FocusTimer) Paused() bool { return t.paused }

// CompletedWork returns the number of work intervals finished since Start.
func (t *FocusTimer) CompletedWork() int { return t.completedWork }

// Config returns the effective configuration.
func (t *FocusTimer) Config() FocusConfig { return t.cfg }

// Remaining returns the time left in the current phase.
func (t *FocusTimer) Remaining(now time.Time) time.Duration {
	switch {
	case t.phase == PhaseIdle:
		return 0
	case t.paused:
		return t.remaining
	}
	if d := t.deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Start begins the first work interval.
func (t *FocusTimer) Start(now time.Time) error {
	if t.phase != PhaseIdle {
		return ErrTimerRunning
	}
	t.completedWork = 0
	t.enter(PhaseWork, now)
	return nil
}

// Pause stops the countdown.
func (t *FocusTimer) Pause(now time.Time) error {
	switch {
	case t.phase == PhaseIdle:
		return ErrTimerIdle
	case t.paused:
		return ErrTimerPaused
	}
	t.remaining = t.Remaining(now)
	t.paused = true
	return nil
}

// Resume continues a paused countdown.
func (t *FocusTimer) Resume(now time.Time) error {
	switch {
	case t.phase == PhaseIdle:
		return ErrTimerIdle
	case !t.paused:
		return ErrTimerNotPaused
	}
	elapsed := t.duration(t.phase) - t.remaining
	t.started = now.Add(-elapsed)
	t.deadline = now.Add(t.remaining)
	t.paused = false
	return nil
}

// Skip abandons the current phase and moves to the next one.
// A skipped work interval is not counted, not rewarded and is followed by a
// short break.
func (t *FocusTimer) Skip(now time.Time) error {
	if t.phase == PhaseIdle {
		return ErrTimerIdle
	}
	if t.phase == PhaseWork {
		t.enter(PhaseShortBreak, now)
		return nil
	}
	t.enterWork(now)
	return nil
}

// Reset returns the timer to Idle and clears the work count.
func (t *FocusTimer) Reset() {
	*t = FocusTimer{cfg: t.cfg}
}

// Advance moves the timer to now and returns every phase that ended on the way,
// oldest first. A paused or idle timer returns nothing.
func (t *FocusTimer) Advance(now time.Time) []Completion {
	var done []Completion
	for t.phase != PhaseIdle && !t.paused && !now.Before(t.deadline) {
		c := Completion{Phase: t.phase, Started: t.started, Ended: t.deadline}
		done = append(done, c)

		if t.phase == PhaseWork {
			t.completedWork++
			t.enter(t.breakAfter(t.completedWork), c.Ended)
			continue
		}
		t.enterWork(c.Ended)
	}
	return done
}

func (t *FocusTimer) enterWork(at time.Time) {
	t.enter(PhaseWork, at)
	if !t.cfg.AutoStartWork {
		t.paused = true
		t.remaining = t.cfg.Work
	}
}

func (t *FocusTimer) enter(p Phase, at time.Time) {
	t.phase = p
	t.paused = false
	t.started = at
	t.deadline = at.Add(t.duration(p))
	t.remaining = 0
}

func (t *FocusTimer) breakAfter(workCount int) Phase {
	if workCount%t.cfg.LongBreakEvery == 0 {
		return PhaseLongBreak
	}
	return PhaseShortBreak
}

func (t *FocusTimer) duration(p Phase) time.Duration {
	switch p {
	case PhaseWork:
		return t.cfg.Work
	case PhaseShortBreak:
		return t.cfg.ShortBreak
	case PhaseLongBreak:
		return t.cfg.LongBreak
	}
	return 0
}
