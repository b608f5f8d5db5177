package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

// Dispatch issues a join request for a meeting's bot. Called automatically by
// the sync pass for meetings entering the join lead window, or explicitly by
// a user. The outbound call runs under the per-meeting in-flight guard, and
// the preconditions are re-checked on a fresh read inside it: a concurrent
// dispatch that already sent a bot, or a user flipping the exclusion flag,
// makes this call abort as a no-op instead of joining a second bot.
func (u *usecase) Dispatch(ctx context.Context, meetingID uuid.UUID) (*entity.Meeting, error) {
	m, err := u.storage.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if m.Status == entity.StatusCancelled {
		// Explicit dispatch on a cancelled meeting is a revival.
		if !u.applyEvent(m, entity.EventRevived) {
			return nil, ErrDispatchNotAllowed
		}
		if err := u.storage.UpdateMeeting(ctx, m); err != nil {
			return nil, err
		}
	}

	if m.Status != entity.StatusScheduled {
		return nil, fmt.Errorf("%w: status %s", ErrDispatchNotAllowed, m.Status)
	}
	if m.BotExcluded {
		return nil, ErrBotExcluded
	}

	if !u.tryAcquire(meetingID) {
		u.log.Info("dispatch already in flight, skipping",
			slog.String("meeting_id", meetingID.String()))
		return m, nil
	}
	defer u.release(meetingID)

	// Re-read under the guard; another dispatch may have committed before we
	// acquired the slot, and the exclusion flag is user-editable.
	fresh, err := u.storage.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if fresh.Status != entity.StatusScheduled || fresh.BotID != "" {
		u.log.Info("dispatch aborted, meeting advanced concurrently",
			slog.String("meeting_id", meetingID.String()),
			slog.String("status", string(fresh.Status)))
		return fresh, nil
	}
	if fresh.BotExcluded {
		u.log.Info("dispatch aborted, bot excluded concurrently",
			slog.String("meeting_id", meetingID.String()))
		return fresh, nil
	}
	m = fresh

	u.log.Info("dispatching bot",
		slog.String("meeting_id", m.ID.String()),
		slog.String("meeting_url", m.MeetingURL),
		slog.String("platform", string(m.Platform)))

	botID, err := u.bots.JoinMeeting(ctx, m.MeetingURL, m.Title)
	if err != nil {
		var rejection *entity.RejectionError
		if errors.As(err, &rejection) {
			// Permanent refusal: record it, no automatic retry.
			m.BotError = rejection.Reason
			if u.applyEvent(m, entity.EventBotFailed) {
				if updateErr := u.storage.UpdateMeeting(ctx, m); updateErr != nil {
					u.log.Error("failed to record join rejection",
						slog.String("meeting_id", m.ID.String()),
						slog.String("error", updateErr.Error()))
				}
			}
			return m, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBotPlatformUnavailable, err)
	}

	m.BotID = botID
	m.BotError = ""
	if !u.applyEvent(m, entity.EventDispatched) {
		return m, fmt.Errorf("%w: status %s", ErrDispatchNotAllowed, m.Status)
	}
	if err := u.storage.UpdateMeeting(ctx, m); err != nil {
		return nil, err
	}

	u.log.Info("bot dispatched",
		slog.String("meeting_id", m.ID.String()),
		slog.String("bot_id", botID))
	return m, nil
}

// ToggleBotExclusion flips the per-meeting auto-join override.
func (u *usecase) ToggleBotExclusion(ctx context.Context, meetingID uuid.UUID, excluded bool) (*entity.Meeting, error) {
	m, err := u.storage.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if m.BotExcluded == excluded {
		return m, nil
	}
	m.BotExcluded = excluded
	if err := u.storage.UpdateMeeting(ctx, m); err != nil {
		return nil, err
	}

	u.log.Info("bot exclusion toggled",
		slog.String("meeting_id", m.ID.String()),
		slog.Bool("excluded", excluded))
	return m, nil
}

// ToggleBotExclusionForEvent applies the flag to the meeting backing a
// calendar event, materializing the meeting first when the user toggles
// directly from a calendar-preview row.
func (u *usecase) ToggleBotExclusionForEvent(ctx context.Context, eventID string, excluded bool) (*entity.Meeting, error) {
	m, err := u.storage.GetMeetingByExternalEventID(ctx, eventID)
	if err == nil {
		return u.ToggleBotExclusion(ctx, m.ID, excluded)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	ev, err := u.findEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if _, err := u.createFromEvent(ctx, *ev); err != nil {
		return nil, err
	}
	// Re-read rather than trusting the create: a concurrent reconcile pass
	// may have won the insert.
	m, err = u.storage.GetMeetingByExternalEventID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return u.ToggleBotExclusion(ctx, m.ID, excluded)
}

func (u *usecase) findEvent(ctx context.Context, eventID string) (*entity.CalendarEvent, error) {
	now := u.clock.Now()
	windowEnd := now.Add(time.Duration(u.cfg.SyncWindowDays) * 24 * time.Hour)

	events, err := u.calendar.ListEvents(ctx, now, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}
	for _, ev := range events {
		if ev.EventID == eventID {
			return &ev, nil
		}
	}
	return nil, ErrEventNotFound
}
