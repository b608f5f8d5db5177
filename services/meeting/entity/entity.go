package entity

import (
	"time"

	"github.com/google/uuid"
)

// CalendarEvent is one upstream event as fetched from the calendar source.
type CalendarEvent struct {
	EventID    string
	Title      string
	StartTime  time.Time
	EndTime    time.Time // zero when the source carries no end time
	MeetingURL string
	Attendees  int
}

// BotStatus is the bot platform's live view of one bot instance.
type BotStatus struct {
	PlatformStatus string
	ErrorDetail    string
}

// SyncResult is the outcome of one reconciliation pass.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Cancelled int `json:"cancelled"`
}

func (r SyncResult) Empty() bool {
	return r.Created == 0 && r.Updated == 0 && r.Cancelled == 0
}

// SyncSummary is the full result of one orchestrated sync pass. Poller and
// dispatch activity is reported next to, not folded into, the reconcile
// counters since it represents a different kind of change.
type SyncSummary struct {
	SyncResult
	Dispatched      int `json:"dispatched"`
	StatusChanges   int `json:"statusChanges"`
	NextPollSeconds int `json:"nextPollSeconds"`
}

// RefreshResult is the outcome of polling the bot platform for one meeting.
type RefreshResult struct {
	PreviousStatus Status `json:"previousStatus"`
	NewStatus      Status `json:"newStatus"`
	BotStatus      string `json:"botStatus"`
}

// CreateMeetingRequest creates a meeting by direct user action, with no
// backing calendar event.
type CreateMeetingRequest struct {
	Title          string
	MeetingURL     string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	BotExcluded    bool
}

// AnnotatedEvent is an upstream calendar event joined against the meeting
// store for display.
type AnnotatedEvent struct {
	CalendarEvent
	MeetingID       uuid.UUID
	MeetingStatus   Status
	BotExcluded     bool
	HasBotScheduled bool
}
