package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kairohq/backend/services/meeting/entity"
)

var (
	// ErrNotFound is returned when no meeting matches the lookup key.
	ErrNotFound = errors.New("meeting not found")
	// ErrDuplicateExternalEvent is returned when a create would produce a
	// second meeting for the same calendar event id.
	ErrDuplicateExternalEvent = errors.New("meeting already exists for external event")
)

// ListFilter narrows ListMeetings. Zero values mean "no constraint".
type ListFilter struct {
	Statuses     []entity.Status
	StartAfter   time.Time
	StartBefore  time.Time
	ExternalOnly bool
}

type Storage interface {
	CreateMeeting(ctx context.Context, m *entity.Meeting) error
	GetMeeting(ctx context.Context, id uuid.UUID) (*entity.Meeting, error)
	GetMeetingByExternalEventID(ctx context.Context, eventID string) (*entity.Meeting, error)
	GetMeetingByBotID(ctx context.Context, botID string) (*entity.Meeting, error)
	UpdateMeeting(ctx context.Context, m *entity.Meeting) error
	ListMeetings(ctx context.Context, filter ListFilter) ([]*entity.Meeting, error)
}

func (f ListFilter) matches(m *entity.Meeting) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if m.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.StartAfter.IsZero() && m.ScheduledStart.Before(f.StartAfter) {
		return false
	}
	if !f.StartBefore.IsZero() && m.ScheduledStart.After(f.StartBefore) {
		return false
	}
	if f.ExternalOnly && m.ExternalEventID == "" {
		return false
	}
	return true
}
