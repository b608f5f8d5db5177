package entity

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a meeting. Transitions between statuses go
// through the state machine in statemachine.go, never by direct assignment.
type Status string

const (
	StatusScheduled  Status = "SCHEDULED"
	StatusJoining    Status = "JOINING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further automatic transition occurs from s.
// CANCELLED counts as terminal; revival is an explicit calendar-driven event.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BotActive reports whether a bot is in a non-terminal state for this status,
// i.e. the meeting is eligible for status polling.
func (s Status) BotActive() bool {
	return s == StatusJoining || s == StatusInProgress || s == StatusProcessing
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusJoining, StatusInProgress, StatusProcessing,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Meeting is the durable record the engine converges toward the calendar
// source and the bot platform.
type Meeting struct {
	ID              uuid.UUID
	ExternalEventID string // calendar event id; empty for manually created meetings
	Title           string
	MeetingURL      string
	Platform        Platform
	ScheduledStart  time.Time
	ScheduledEnd    time.Time // zero when the upstream event has no end time
	Status          Status
	BotExcluded     bool
	BotID           string // set once a join has been requested; never reused
	BotError        string // platform rejection or failure detail, for display
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
