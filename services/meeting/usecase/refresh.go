package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kairohq/backend/services/meeting/entity"
)

// Refresh polls the bot platform for a meeting's live bot status and applies
// the resulting transition. Meetings without an active bot are a no-op.
// Concurrent refreshes for the same meeting are deduplicated: the second
// caller gets the stored state back without a second outbound call.
func (u *usecase) Refresh(ctx context.Context, meetingID uuid.UUID) (*entity.RefreshResult, error) {
	m, err := u.storage.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, err
	}

	if m.BotID == "" || !m.Status.BotActive() {
		return &entity.RefreshResult{PreviousStatus: m.Status, NewStatus: m.Status}, nil
	}

	if !u.tryAcquire(meetingID) {
		u.log.Debug("refresh already in flight, skipping",
			slog.String("meeting_id", meetingID.String()))
		return &entity.RefreshResult{PreviousStatus: m.Status, NewStatus: m.Status}, nil
	}
	defer u.release(meetingID)

	status, err := u.bots.GetBotStatus(ctx, m.BotID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBotPlatformUnavailable, err)
	}

	return u.applyBotStatus(ctx, m, status)
}

// ApplyBotStatus handles a pushed status change from the bot platform. It
// goes through the same mapping as the poller, so duplicate or out-of-order
// pushes land as no-ops.
func (u *usecase) ApplyBotStatus(ctx context.Context, botID string, status *entity.BotStatus) error {
	m, err := u.storage.GetMeetingByBotID(ctx, botID)
	if err != nil {
		return err
	}
	_, err = u.applyBotStatus(ctx, m, status)
	return err
}

func (u *usecase) applyBotStatus(ctx context.Context, m *entity.Meeting, status *entity.BotStatus) (*entity.RefreshResult, error) {
	result := &entity.RefreshResult{
		PreviousStatus: m.Status,
		NewStatus:      m.Status,
		BotStatus:      status.PlatformStatus,
	}

	event, ok := entity.EventForBotStatus(status.PlatformStatus)
	if !ok {
		u.log.Debug("bot status carries no transition",
			slog.String("meeting_id", m.ID.String()),
			slog.String("bot_status", status.PlatformStatus))
		return result, nil
	}

	if !u.applyEvent(m, event) {
		// Backward or duplicate mapping; previous status preserved.
		return result, nil
	}
	if event == entity.EventBotFailed {
		m.BotError = status.ErrorDetail
	}

	if err := u.storage.UpdateMeeting(ctx, m); err != nil {
		return nil, err
	}
	result.NewStatus = m.Status
	return result, nil
}

// CompletePipeline records the downstream transcript/insight pipeline's
// verdict for a meeting in PROCESSING.
func (u *usecase) CompletePipeline(ctx context.Context, meetingID uuid.UUID, failed bool, detail string) error {
	m, err := u.storage.GetMeeting(ctx, meetingID)
	if err != nil {
		return err
	}

	event := entity.EventPipelineDone
	if failed {
		event = entity.EventPipelineFailed
	}
	if !u.applyEvent(m, event) {
		return nil
	}
	if failed {
		m.BotError = detail
	}
	return u.storage.UpdateMeeting(ctx, m)
}

// tryAcquire claims the per-meeting in-flight slot shared by Refresh and
// Dispatch, so at most one outbound bot platform call is pending per meeting.
func (u *usecase) tryAcquire(meetingID uuid.UUID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, busy := u.inflight[meetingID]; busy {
		return false
	}
	u.inflight[meetingID] = struct{}{}
	return true
}

func (u *usecase) release(meetingID uuid.UUID) {
	u.mu.Lock()
	delete(u.inflight, meetingID)
	u.mu.Unlock()
}
