package usecase

import (
	"context"
	"log/slog"

	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

// SyncAll runs one full convergence pass: reconcile the calendar window,
// dispatch bots for meetings entering the join lead window, then poll every
// meeting with an active bot. The reconcile pass commits fully before
// polling begins, so a freshly created meeting is eligible in the same
// cycle. Safe to invoke concurrently: reconcile is idempotent and refresh
// deduplicates per meeting.
func (u *usecase) SyncAll(ctx context.Context) (entity.SyncSummary, error) {
	summary := entity.SyncSummary{}

	result, err := u.Reconcile(ctx, u.cfg.SyncWindowDays)
	if err != nil {
		return summary, err
	}
	summary.SyncResult = result

	summary.Dispatched = u.autoDispatch(ctx)
	summary.StatusChanges = u.pollActive(ctx)
	summary.NextPollSeconds = int(u.RecommendedInterval(ctx).Seconds())

	u.log.Info("sync pass finished",
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("cancelled", summary.Cancelled),
		slog.Int("dispatched", summary.Dispatched),
		slog.Int("status_changes", summary.StatusChanges))
	return summary, nil
}

// autoDispatch sends bots to SCHEDULED, non-excluded meetings starting
// within the join lead window. Individual failures degrade to the next pass.
func (u *usecase) autoDispatch(ctx context.Context) int {
	now := u.clock.Now()
	candidates, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses:    []entity.Status{entity.StatusScheduled},
		StartBefore: now.Add(u.cfg.JoinLead),
	})
	if err != nil {
		u.log.Error("failed to list dispatch candidates", slog.String("error", err.Error()))
		return 0
	}

	dispatched := 0
	for _, m := range candidates {
		if m.BotExcluded {
			continue
		}
		end := m.ScheduledEnd
		if end.IsZero() {
			end = m.ScheduledStart.Add(staleAfter)
		}
		if end.Before(now) {
			// Already over; the stale sweep owns this one.
			continue
		}
		if _, err := u.Dispatch(ctx, m.ID); err != nil {
			u.log.Error("automatic dispatch failed",
				slog.String("meeting_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		dispatched++
	}
	return dispatched
}

// pollActive refreshes every meeting whose bot is in a non-terminal state
// and counts the transitions that landed.
func (u *usecase) pollActive(ctx context.Context) int {
	eligible, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses: []entity.Status{entity.StatusJoining, entity.StatusInProgress, entity.StatusProcessing},
	})
	if err != nil {
		u.log.Error("failed to list pollable meetings", slog.String("error", err.Error()))
		return 0
	}

	changes := 0
	for _, m := range eligible {
		result, err := u.Refresh(ctx, m.ID)
		if err != nil {
			u.log.Error("status refresh failed",
				slog.String("meeting_id", m.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		if result.NewStatus != result.PreviousStatus {
			changes++
		}
	}
	return changes
}
