package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kairohq/backend/pkg/clock"
	"github.com/kairohq/backend/pkg/gen"
	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
	"github.com/kairohq/backend/services/meeting/usecase"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	mu     sync.Mutex
	events []entity.CalendarEvent
	err    error
}

func (f *fakeCalendar) ListEvents(ctx context.Context, windowStart, windowEnd time.Time) ([]entity.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]entity.CalendarEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *fakeCalendar) set(events ...entity.CalendarEvent) {
	f.mu.Lock()
	f.events = events
	f.mu.Unlock()
}

type fakeBots struct {
	mu        sync.Mutex
	joinID    string
	joinErr   error
	status    *entity.BotStatus
	statusErr error
}

func (f *fakeBots) JoinMeeting(ctx context.Context, meetingURL, title string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return "", f.joinErr
	}
	if f.joinID == "" {
		return "bot-1", nil
	}
	return f.joinID, nil
}

func (f *fakeBots) GetBotStatus(ctx context.Context, botID string) (*entity.BotStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status == nil {
		return &entity.BotStatus{PlatformStatus: "joining_call"}, nil
	}
	return f.status, nil
}

type fixture struct {
	router   chi.Router
	storage  storage.Storage
	calendar *fakeCalendar
	bots     *fakeBots
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		storage:  storage.NewMemory(),
		calendar: &fakeCalendar{},
		bots:     &fakeBots{},
		clock:    clock.NewFake(testNow),
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := usecase.New(f.storage, f.calendar, f.bots, usecase.Config{
		SyncWindowDays:  7,
		AutoJoinEnabled: true,
		JoinLead:        10 * time.Minute,
		PollActive:      10 * time.Second,
		PollIdle:        30 * time.Second,
	}, gen.Sequence(), f.clock, log)

	h := New(uc, log)
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	f.router = r
	return f
}

func (f *fixture) seed(t *testing.T, status entity.Status, mutate ...func(*entity.Meeting)) *entity.Meeting {
	t.Helper()

	m := &entity.Meeting{
		ID:              uuid.New(),
		ExternalEventID: "E-" + uuid.NewString()[:8],
		Title:           "standup",
		MeetingURL:      "https://meet.google.com/abc-defg-hij",
		Platform:        entity.PlatformGoogleMeet,
		ScheduledStart:  testNow.Add(5 * time.Minute),
		ScheduledEnd:    testNow.Add(35 * time.Minute),
		Status:          status,
	}
	for _, fn := range mutate {
		fn(m)
	}
	require.NoError(t, f.storage.CreateMeeting(context.Background(), m))
	return m
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out),
		"body: %s", rec.Body.String())
	return out
}
