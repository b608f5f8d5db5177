package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

// ListCalendarEvents returns the raw upstream window annotated with the
// meeting store's view, joined by external event id.
func (u *usecase) ListCalendarEvents(ctx context.Context, windowDays int) ([]entity.AnnotatedEvent, error) {
	windowDays = u.windowDaysOrDefault(windowDays)
	now := u.clock.Now()
	windowEnd := now.Add(time.Duration(windowDays) * 24 * time.Hour)

	events, err := u.calendar.ListEvents(ctx, now, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	out := make([]entity.AnnotatedEvent, 0, len(events))
	for _, ev := range events {
		annotated := entity.AnnotatedEvent{
			CalendarEvent: ev,
			BotExcluded:   !u.cfg.AutoJoinEnabled,
		}

		m, err := u.storage.GetMeetingByExternalEventID(ctx, ev.EventID)
		switch {
		case err == nil:
			annotated.MeetingID = m.ID
			annotated.MeetingStatus = m.Status
			annotated.BotExcluded = m.BotExcluded
			annotated.HasBotScheduled = !m.BotExcluded &&
				m.Status != entity.StatusCancelled && m.Status != entity.StatusFailed
		case errors.Is(err, storage.ErrNotFound):
			// Unmaterialized event: exclusion reflects the global default.
			annotated.HasBotScheduled = u.cfg.AutoJoinEnabled && ev.MeetingURL != ""
		default:
			return nil, err
		}
		out = append(out, annotated)
	}
	return out, nil
}

func (u *usecase) ListMeetings(ctx context.Context, statuses []entity.Status) ([]*entity.Meeting, error) {
	return u.storage.ListMeetings(ctx, storage.ListFilter{Statuses: statuses})
}

func (u *usecase) GetMeeting(ctx context.Context, id uuid.UUID) (*entity.Meeting, error) {
	return u.storage.GetMeeting(ctx, id)
}

// CreateMeeting adds a manually created meeting with no backing calendar
// event; the reconciler never touches it.
func (u *usecase) CreateMeeting(ctx context.Context, req *entity.CreateMeetingRequest) (*entity.Meeting, error) {
	if req.MeetingURL == "" {
		return nil, errors.New("meeting_url is required")
	}
	if req.ScheduledStart.IsZero() {
		return nil, errors.New("scheduled_start is required")
	}

	m := &entity.Meeting{
		ID:             u.ids.Next(),
		Title:          req.Title,
		MeetingURL:     req.MeetingURL,
		Platform:       entity.DetectPlatform(req.MeetingURL),
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		Status:         entity.StatusScheduled,
		BotExcluded:    req.BotExcluded,
	}
	if err := u.storage.CreateMeeting(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
