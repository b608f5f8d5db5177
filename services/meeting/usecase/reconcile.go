package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

// Reconcile diffs the calendar source's event window against the meeting
// store. It is idempotent: a second pass over an unchanged upstream yields a
// zero result. A fetch failure aborts the pass before any write.
func (u *usecase) Reconcile(ctx context.Context, windowDays int) (entity.SyncResult, error) {
	windowDays = u.windowDaysOrDefault(windowDays)
	now := u.clock.Now()
	windowEnd := now.Add(time.Duration(windowDays) * 24 * time.Hour)

	u.log.Debug("reconcile pass starting",
		slog.Int("window_days", windowDays),
		slog.Time("window_end", windowEnd))

	events, err := u.calendar.ListEvents(ctx, now, windowEnd)
	if err != nil {
		u.log.Error("calendar fetch failed, aborting pass", slog.String("error", err.Error()))
		return entity.SyncResult{}, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	var result entity.SyncResult
	seen := make(map[string]struct{}, len(events))

	for _, ev := range events {
		if ev.MeetingURL == "" {
			continue
		}
		seen[ev.EventID] = struct{}{}

		changed, created, err := u.upsertFromEvent(ctx, ev)
		if err != nil {
			u.log.Error("failed to reconcile event",
				slog.String("event_id", ev.EventID),
				slog.String("error", err.Error()))
			continue
		}
		if created {
			result.Created++
		} else if changed {
			result.Updated++
		}
	}

	cancelled, err := u.cancelAbsent(ctx, seen, now, windowEnd)
	if err != nil {
		return result, err
	}
	result.Cancelled += cancelled

	stale, err := u.cancelStale(ctx, now)
	if err != nil {
		return result, err
	}
	result.Cancelled += stale

	u.log.Info("reconcile pass finished",
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("cancelled", result.Cancelled))
	return result, nil
}

// upsertFromEvent creates or updates the meeting backing one calendar event.
// The external event id is the only identity key; titles and URLs are freely
// editable upstream.
func (u *usecase) upsertFromEvent(ctx context.Context, ev entity.CalendarEvent) (changed, created bool, err error) {
	m, err := u.storage.GetMeetingByExternalEventID(ctx, ev.EventID)
	if errors.Is(err, storage.ErrNotFound) {
		created, err = u.createFromEvent(ctx, ev)
		return false, created, err
	}
	if err != nil {
		return false, false, err
	}

	if m.Status == entity.StatusCancelled {
		// Event reappeared upstream: revive rather than duplicating.
		if u.applyEvent(m, entity.EventRevived) {
			u.copyEventFields(m, ev)
			if err := u.storage.UpdateMeeting(ctx, m); err != nil {
				return false, false, err
			}
			return true, false, nil
		}
		return false, false, nil
	}

	if m.Title == ev.Title && m.MeetingURL == ev.MeetingURL &&
		m.ScheduledStart.Equal(ev.StartTime) && m.ScheduledEnd.Equal(ev.EndTime) {
		return false, false, nil
	}

	// Calendar-derived fields only; status and bot fields stay untouched.
	u.copyEventFields(m, ev)
	if err := u.storage.UpdateMeeting(ctx, m); err != nil {
		return false, false, err
	}
	return true, false, nil
}

func (u *usecase) copyEventFields(m *entity.Meeting, ev entity.CalendarEvent) {
	m.Title = ev.Title
	m.MeetingURL = ev.MeetingURL
	m.Platform = entity.DetectPlatform(ev.MeetingURL)
	m.ScheduledStart = ev.StartTime
	m.ScheduledEnd = ev.EndTime
}

// createFromEvent materializes a meeting for a calendar event. The bot
// exclusion flag defaults from the global auto-join preference. A concurrent
// create for the same event id is absorbed, keeping creation idempotent.
func (u *usecase) createFromEvent(ctx context.Context, ev entity.CalendarEvent) (bool, error) {
	m := &entity.Meeting{
		ID:              u.ids.Next(),
		ExternalEventID: ev.EventID,
		Status:          entity.StatusScheduled,
		BotExcluded:     !u.cfg.AutoJoinEnabled,
	}
	u.copyEventFields(m, ev)

	err := u.storage.CreateMeeting(ctx, m)
	if errors.Is(err, storage.ErrDuplicateExternalEvent) {
		u.log.Debug("concurrent create absorbed", slog.String("event_id", ev.EventID))
		return false, nil
	}
	if err != nil {
		return false, err
	}

	u.log.Info("meeting created from calendar event",
		slog.String("meeting_id", m.ID.String()),
		slog.String("event_id", ev.EventID),
		slog.String("platform", string(m.Platform)))
	return true, nil
}

// cancelAbsent marks SCHEDULED meetings cancelled when their calendar event
// vanished from the fetched window. Meetings already joined or finished are
// never auto-cancelled; their event may simply have scrolled out of the
// lookahead window.
func (u *usecase) cancelAbsent(ctx context.Context, seen map[string]struct{}, windowStart, windowEnd time.Time) (int, error) {
	candidates, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses:     []entity.Status{entity.StatusScheduled},
		StartAfter:   windowStart,
		StartBefore:  windowEnd,
		ExternalOnly: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list cancellation candidates: %w", err)
	}

	cancelled := 0
	for _, m := range candidates {
		if _, present := seen[m.ExternalEventID]; present {
			continue
		}
		if !u.applyEvent(m, entity.EventCancelled) {
			continue
		}
		if err := u.storage.UpdateMeeting(ctx, m); err != nil {
			u.log.Error("failed to cancel meeting",
				slog.String("meeting_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		u.log.Info("meeting cancelled, event absent from window",
			slog.String("meeting_id", m.ID.String()),
			slog.String("event_id", m.ExternalEventID))
		cancelled++
	}
	return cancelled, nil
}

// cancelStale sweeps meetings still SCHEDULED long after their scheduled end.
// Nothing ever dispatched a bot for them, so cancellation (revivable) is the
// right terminal, not FAILED.
func (u *usecase) cancelStale(ctx context.Context, now time.Time) (int, error) {
	candidates, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses:    []entity.Status{entity.StatusScheduled},
		StartBefore: now,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list stale candidates: %w", err)
	}

	cancelled := 0
	for _, m := range candidates {
		end := m.ScheduledEnd
		if end.IsZero() {
			end = m.ScheduledStart
		}
		if now.Sub(end) < staleAfter {
			continue
		}
		if !u.applyEvent(m, entity.EventCancelled) {
			continue
		}
		if err := u.storage.UpdateMeeting(ctx, m); err != nil {
			u.log.Error("failed to cancel stale meeting",
				slog.String("meeting_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		u.log.Info("stale scheduled meeting cancelled",
			slog.String("meeting_id", m.ID.String()),
			slog.Time("scheduled_end", end))
		cancelled++
	}
	return cancelled, nil
}
