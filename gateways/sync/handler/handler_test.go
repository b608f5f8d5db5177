package handler

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kairohq/backend/services/meeting/entity"
)

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncCreatesAndDispatches(t *testing.T) {
	f := newFixture(t)
	f.calendar.set(entity.CalendarEvent{
		EventID:    "E1",
		Title:      "standup",
		StartTime:  testNow.Add(5 * time.Minute),
		EndTime:    testNow.Add(35 * time.Minute),
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})

	rec := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	summary := decode[entity.SyncSummary](t, rec)
	require.Equal(t, 1, summary.Created)
	require.Equal(t, 1, summary.Dispatched)
	require.Equal(t, 10, summary.NextPollSeconds)
}

func TestSyncCalendarDown(t *testing.T) {
	f := newFixture(t)
	f.calendar.err = errors.New("feed unreachable")

	rec := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListCalendarEvents(t *testing.T) {
	f := newFixture(t)
	f.calendar.set(entity.CalendarEvent{
		EventID:    "E1",
		Title:      "planning",
		StartTime:  testNow.Add(2 * time.Hour),
		EndTime:    testNow.Add(3 * time.Hour),
		MeetingURL: "https://meet.google.com/abc-defg-hij",
		Attendees:  4,
	})

	rec := f.do(t, http.MethodGet, "/api/v1/calendar-events?days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := decode[[]annotatedEventResponse](t, rec)
	require.Len(t, events, 1)
	require.Equal(t, "E1", events[0].EventID)
	require.Empty(t, events[0].MeetingID)
	require.True(t, events[0].HasBotScheduled)
}

func TestListCalendarEventsBadDays(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/calendar-events?days=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndGetMeeting(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/meetings", map[string]any{
		"title":          "customer call",
		"meetingUrl":     "https://us02web.zoom.us/j/123",
		"scheduledStart": testNow.Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[MeetingSummary](t, rec)
	require.Equal(t, "zoom", created.Platform)
	require.Equal(t, "SCHEDULED", created.Status)

	rec = f.do(t, http.MethodGet, "/api/v1/meetings/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created.ID, decode[MeetingSummary](t, rec).ID)
}

func TestCreateMeetingMissingURL(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/meetings", map[string]any{
		"title":          "no link",
		"scheduledStart": testNow.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMeetingNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/meetings/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/meetings/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMeetingsStatusFilter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, entity.StatusScheduled)
	f.seed(t, entity.StatusCompleted)

	rec := f.do(t, http.MethodGet, "/api/v1/meetings?status=SCHEDULED", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	meetings := decode[[]MeetingSummary](t, rec)
	require.Len(t, meetings, 1)
	require.Equal(t, "SCHEDULED", meetings[0].Status)

	rec = f.do(t, http.MethodGet, "/api/v1/meetings?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusScheduled)
	f.bots.joinID = "bot-42"

	rec := f.do(t, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/dispatch", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[MeetingSummary](t, rec)
	require.Equal(t, "JOINING", out.Status)
	require.Equal(t, "bot-42", out.BotID)
}

func TestDispatchRejected(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusScheduled)
	f.bots.joinErr = &entity.RejectionError{Reason: "meeting link expired"}

	rec := f.do(t, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/dispatch", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	out := decode[MeetingSummary](t, rec)
	require.Equal(t, "FAILED", out.Status)
	require.Equal(t, "meeting link expired", out.BotError)
}

func TestDispatchExcluded(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusScheduled, func(m *entity.Meeting) {
		m.BotExcluded = true
	})

	rec := f.do(t, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/dispatch", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestToggleBotExclusion(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusScheduled)

	rec := f.do(t, http.MethodPatch, "/api/v1/meetings/"+m.ID.String()+"/bot-exclusion",
		map[string]any{"excluded": true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[MeetingSummary](t, rec).BotExcluded)
}

func TestToggleBotExclusionForEventMaterializes(t *testing.T) {
	f := newFixture(t)
	f.calendar.set(entity.CalendarEvent{
		EventID:    "E9",
		Title:      "1:1",
		StartTime:  testNow.Add(time.Hour),
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})

	rec := f.do(t, http.MethodPatch, "/api/v1/calendar-events/E9/bot-exclusion",
		map[string]any{"excluded": true})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[MeetingSummary](t, rec)
	require.Equal(t, "E9", out.ExternalEventID)
	require.True(t, out.BotExcluded)
}

func TestToggleBotExclusionEventPrefix(t *testing.T) {
	f := newFixture(t)
	f.calendar.set(entity.CalendarEvent{
		EventID:    "E9",
		Title:      "1:1",
		StartTime:  testNow.Add(time.Hour),
		MeetingURL: "https://meet.google.com/abc-defg-hij",
	})

	rec := f.do(t, http.MethodPatch, "/api/v1/meetings/event:E9/bot-exclusion",
		map[string]any{"excluded": true})
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[MeetingSummary](t, rec)
	require.Equal(t, "E9", out.ExternalEventID)
	require.True(t, out.BotExcluded)
}

func TestToggleBotExclusionForUnknownEvent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPatch, "/api/v1/calendar-events/missing/bot-exclusion",
		map[string]any{"excluded": true})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefreshStatus(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusJoining, func(m *entity.Meeting) {
		m.BotID = "bot-7"
	})
	f.bots.status = &entity.BotStatus{PlatformStatus: "in_call"}

	rec := f.do(t, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/refresh-status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode[entity.RefreshResult](t, rec)
	require.Equal(t, entity.StatusJoining, out.PreviousStatus)
	require.Equal(t, entity.StatusInProgress, out.NewStatus)
}

func TestRefreshStatusPlatformDown(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, entity.StatusJoining, func(m *entity.Meeting) {
		m.BotID = "bot-7"
	})
	f.bots.statusErr = errors.New("503")

	rec := f.do(t, http.MethodPost, "/api/v1/meetings/"+m.ID.String()+"/refresh-status", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}
