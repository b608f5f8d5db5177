package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/kairohq/backend/pkg/clock"
	"github.com/kairohq/backend/pkg/gen"
	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeCalendar struct {
	mu     sync.Mutex
	events []entity.CalendarEvent
	err    error
	calls  int
}

func (f *fakeCalendar) ListEvents(ctx context.Context, windowStart, windowEnd time.Time) ([]entity.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
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
	mu          sync.Mutex
	joinID      string
	joinErr     error
	joinCalls   int
	status      *entity.BotStatus
	statusErr   error
	statusCalls int

	// statusGate, when set, blocks GetBotStatus until closed. Used to hold a
	// refresh in flight while a concurrent one is issued.
	statusGate chan struct{}
	// statusEntered is closed once the first GetBotStatus call is underway.
	statusEntered chan struct{}

	// joinGate and joinEntered play the same roles for JoinMeeting.
	joinGate    chan struct{}
	joinEntered chan struct{}
}

func (f *fakeBots) JoinMeeting(ctx context.Context, meetingURL, title string) (string, error) {
	f.mu.Lock()
	f.joinCalls++
	gate := f.joinGate
	entered := f.joinEntered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		f.mu.Lock()
		f.joinEntered = nil
		f.mu.Unlock()
	}
	if gate != nil {
		<-gate
	}

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
	f.statusCalls++
	gate := f.statusGate
	entered := f.statusEntered
	f.mu.Unlock()

	if entered != nil {
		close(entered)
		f.mu.Lock()
		f.statusEntered = nil
		f.mu.Unlock()
	}
	if gate != nil {
		<-gate
	}

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

func (f *fakeBots) calls() (join, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls, f.statusCalls
}

type fixture struct {
	uc       Usecase
	storage  storage.Storage
	calendar *fakeCalendar
	bots     *fakeBots
	clock    *clock.Fake
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(cfg Config) *fixture {
	if cfg.SyncWindowDays == 0 {
		cfg.SyncWindowDays = 7
	}
	if cfg.JoinLead == 0 {
		cfg.JoinLead = 10 * time.Minute
	}
	if cfg.PollActive == 0 {
		cfg.PollActive = 10 * time.Second
	}
	if cfg.PollIdle == 0 {
		cfg.PollIdle = 30 * time.Second
	}

	f := &fixture{
		storage:  storage.NewMemory(),
		calendar: &fakeCalendar{},
		bots:     &fakeBots{},
		clock:    clock.NewFake(testNow),
	}
	f.uc = New(f.storage, f.calendar, f.bots, cfg, gen.Sequence(), f.clock, testLogger())
	return f
}

func meetEvent(id, title string, start time.Time) entity.CalendarEvent {
	return entity.CalendarEvent{
		EventID:    id,
		Title:      title,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		MeetingURL: "https://meet.google.com/abc-defg-hij",
		Attendees:  3,
	}
}
