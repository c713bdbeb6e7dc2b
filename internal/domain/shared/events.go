// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types.
const (
	// Progress events
	EventProgressUpdated    EventType = "progress.updated"
	EventProgressSyncFailed EventType = "progress.sync_failed"

	// Calendar events
	EventCalendarEventMoved EventType = "calendar.event_moved"

	// Attendance events
	EventAttendanceMarked EventType = "attendance.marked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventID returns the unique identifier of this occurrence.
	EventID() string

	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventID implements Event interface.
func (e BaseEvent) EventID() string {
	return e.ID
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ProgressUpdatedEvent is emitted after a ledger transaction changed the local state.
type ProgressUpdatedEvent struct {
	BaseEvent
	AccountID         string `json:"account_id"`
	Operation         string `json:"operation"`
	TotalStudyMinutes uint32 `json:"total_study_minutes"`
	TodayStudyMinutes uint32 `json:"today_study_minutes"`
	Streak            uint32 `json:"streak"`
	Points            uint32 `json:"points"`
	Coins             uint32 `json:"coins"`
}

// Payload implements Event interface.
func (e ProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id":          e.AccountID,
		"operation":           e.Operation,
		"total_study_minutes": e.TotalStudyMinutes,
		"today_study_minutes": e.TodayStudyMinutes,
		"streak":              e.Streak,
		"points":              e.Points,
		"coins":               e.Coins,
	}
}

// NewProgressUpdatedEvent creates a new ProgressUpdatedEvent.
func NewProgressUpdatedEvent(accountID, operation string, total, today, streak, points, coins uint32) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{
		BaseEvent:         NewBaseEvent(EventProgressUpdated, accountID),
		AccountID:         accountID,
		Operation:         operation,
		TotalStudyMinutes: total,
		TodayStudyMinutes: today,
		Streak:            streak,
		Points:            points,
		Coins:             coins,
	}
}

// ProgressSyncFailedEvent is emitted when a remote write was given up on.
// The local state is kept; the store lags behind until the next successful write.
type ProgressSyncFailedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	Operation string `json:"operation"`
	Attempts  int    `json:"attempts"`
	Error     string `json:"error"`
}

// Payload implements Event interface.
func (e ProgressSyncFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AccountID,
		"operation":  e.Operation,
		"attempts":   e.Attempts,
		"error":      e.Error,
	}
}

// NewProgressSyncFailedEvent creates a new ProgressSyncFailedEvent.
func NewProgressSyncFailedEvent(accountID, operation string, attempts int, err error) ProgressSyncFailedEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ProgressSyncFailedEvent{
		BaseEvent: NewBaseEvent(EventProgressSyncFailed, accountID),
		AccountID: accountID,
		Operation: operation,
		Attempts:  attempts,
		Error:     msg,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Calendar Events
// ═══════════════════════════════════════════════════════════════════════════

// Move reasons.
const (
	MoveReasonMissed      = "missed"
	MoveReasonPullEarlier = "pull_earlier"
)

// CalendarEventMovedEvent is emitted after a planned event was moved to a new date.
type CalendarEventMovedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	EventRef  string `json:"event_ref"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
}

// Payload implements Event interface.
func (e CalendarEventMovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AccountID,
		"event_ref":  e.EventRef,
		"from":       e.From,
		"to":         e.To,
		"reason":     e.Reason,
	}
}

// NewCalendarEventMovedEvent creates a new CalendarEventMovedEvent.
// Dates are passed in their YYYY-MM-DD form.
func NewCalendarEventMovedEvent(accountID, eventRef, from, to, reason string) CalendarEventMovedEvent {
	return CalendarEventMovedEvent{
		BaseEvent: NewBaseEvent(EventCalendarEventMoved, accountID),
		AccountID: accountID,
		EventRef:  eventRef,
		From:      from,
		To:        to,
		Reason:    reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Events
// ═══════════════════════════════════════════════════════════════════════════

// AttendanceMarkedEvent is emitted when a class attendance record was stored.
type AttendanceMarkedEvent struct {
	BaseEvent
	AccountID string `json:"account_id"`
	ClassID   string `json:"class_id"`
	Date      string `json:"date"`
	Attended  bool   `json:"attended"`
	Completed bool   `json:"completed"`
	Points    int    `json:"points"`
	Coins     int    `json:"coins"`
}

// Payload implements Event interface.
func (e AttendanceMarkedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"account_id": e.AccountID,
		"class_id":   e.ClassID,
		"date":       e.Date,
		"attended":   e.Attended,
		"completed":  e.Completed,
		"points":     e.Points,
		"coins":      e.Coins,
	}
}

// NewAttendanceMarkedEvent creates a new AttendanceMarkedEvent.
// Points and coins are the reward delta applied for this marking.
func NewAttendanceMarkedEvent(accountID, classID, date string, attended, completed bool, points, coins int) AttendanceMarkedEvent {
	return AttendanceMarkedEvent{
		BaseEvent: NewBaseEvent(EventAttendanceMarked, accountID),
		AccountID: accountID,
		ClassID:   classID,
		Date:      date,
		Attended:  attended,
		Completed: completed,
		Points:    points,
		Coins:     coins,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event's payload into an envelope.
func NewEventEnvelope(event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          event.EventID(),
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
