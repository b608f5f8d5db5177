package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kairohq/backend/pkg/clock"
	"github.com/kairohq/backend/pkg/gen"
	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

var (
	// ErrCalendarUnavailable wraps a failed calendar source fetch so callers
	// can tell "nothing changed" from "couldn't check".
	ErrCalendarUnavailable = errors.New("calendar source unavailable")
	// ErrBotPlatformUnavailable wraps a failed bot platform call.
	ErrBotPlatformUnavailable = errors.New("bot platform unavailable")
	// ErrDispatchNotAllowed is returned when a meeting's status does not
	// admit a bot dispatch.
	ErrDispatchNotAllowed = errors.New("meeting status does not allow dispatch")
	// ErrBotExcluded is returned when dispatch is requested for a meeting the
	// user excluded from auto-join.
	ErrBotExcluded = errors.New("bot is excluded for this meeting")
	// ErrEventNotFound is returned when a calendar event id cannot be
	// resolved upstream.
	ErrEventNotFound = errors.New("calendar event not found in window")
)

// CalendarSource is the read-only upstream event feed.
type CalendarSource interface {
	ListEvents(ctx context.Context, windowStart, windowEnd time.Time) ([]entity.CalendarEvent, error)
}

// BotPlatform accepts join requests and reports asynchronous bot status.
// JoinMeeting returns *entity.RejectionError for permanent refusals.
type BotPlatform interface {
	JoinMeeting(ctx context.Context, meetingURL, title string) (string, error)
	GetBotStatus(ctx context.Context, botID string) (*entity.BotStatus, error)
}

type Config struct {
	SyncWindowDays  int
	AutoJoinEnabled bool
	JoinLead        time.Duration
	PollActive      time.Duration
	PollIdle        time.Duration
}

// staleAfter is how long a SCHEDULED meeting may sit past its scheduled end
// before the reconciler cancels it.
const staleAfter = 24 * time.Hour

type Usecase interface {
	Reconcile(ctx context.Context, windowDays int) (entity.SyncResult, error)
	SyncAll(ctx context.Context) (entity.SyncSummary, error)

	Dispatch(ctx context.Context, meetingID uuid.UUID) (*entity.Meeting, error)
	ToggleBotExclusion(ctx context.Context, meetingID uuid.UUID, excluded bool) (*entity.Meeting, error)
	ToggleBotExclusionForEvent(ctx context.Context, eventID string, excluded bool) (*entity.Meeting, error)

	Refresh(ctx context.Context, meetingID uuid.UUID) (*entity.RefreshResult, error)
	ApplyBotStatus(ctx context.Context, botID string, status *entity.BotStatus) error
	CompletePipeline(ctx context.Context, meetingID uuid.UUID, failed bool, detail string) error

	ListCalendarEvents(ctx context.Context, windowDays int) ([]entity.AnnotatedEvent, error)
	ListMeetings(ctx context.Context, statuses []entity.Status) ([]*entity.Meeting, error)
	GetMeeting(ctx context.Context, id uuid.UUID) (*entity.Meeting, error)
	CreateMeeting(ctx context.Context, req *entity.CreateMeetingRequest) (*entity.Meeting, error)

	RecommendedInterval(ctx context.Context) time.Duration
}

type usecase struct {
	storage  storage.Storage
	calendar CalendarSource
	bots     BotPlatform
	cfg      Config
	ids      gen.UUIDGenerator
	clock    clock.Clock
	log      *slog.Logger

	// inflight guards against overlapping bot platform calls (poll or join)
	// for the same meeting; entries are removed once the call settles.
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

func New(st storage.Storage, calendar CalendarSource, bots BotPlatform, cfg Config, ids gen.UUIDGenerator, clk clock.Clock, log *slog.Logger) Usecase {
	if ids == nil {
		ids = gen.UUID()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &usecase{
		storage:  st,
		calendar: calendar,
		bots:     bots,
		cfg:      cfg,
		ids:      ids,
		clock:    clk,
		log:      log,
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// applyEvent advances m's status through the transition table. Illegal
// transitions are discarded with a diagnostic log, never an error; the next
// poll recovers.
func (u *usecase) applyEvent(m *entity.Meeting, event entity.Event) bool {
	next, ok := entity.Next(m.Status, event)
	if !ok {
		u.log.Warn("illegal status transition discarded",
			slog.String("meeting_id", m.ID.String()),
			slog.String("status", string(m.Status)),
			slog.String("event", string(event)))
		return false
	}
	u.log.Info("meeting status transition",
		slog.String("meeting_id", m.ID.String()),
		slog.String("from", string(m.Status)),
		slog.String("to", string(next)),
		slog.String("event", string(event)))
	m.Status = next
	return true
}

func (u *usecase) windowDaysOrDefault(windowDays int) int {
	if windowDays <= 0 {
		return u.cfg.SyncWindowDays
	}
	return windowDays
}

// RecommendedInterval is the adaptive polling cadence: short while any
// tracked meeting has an active bot or is about to start, long otherwise.
func (u *usecase) RecommendedInterval(ctx context.Context) time.Duration {
	active, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses: []entity.Status{entity.StatusJoining, entity.StatusInProgress, entity.StatusProcessing},
	})
	if err != nil {
		u.log.Error("failed to list active meetings for cadence", slog.String("error", err.Error()))
		return u.cfg.PollIdle
	}
	if len(active) > 0 {
		return u.cfg.PollActive
	}

	now := u.clock.Now()
	upcoming, err := u.storage.ListMeetings(ctx, storage.ListFilter{
		Statuses:    []entity.Status{entity.StatusScheduled},
		StartAfter:  now,
		StartBefore: now.Add(u.cfg.JoinLead),
	})
	if err != nil {
		u.log.Error("failed to list upcoming meetings for cadence", slog.String("error", err.Error()))
		return u.cfg.PollIdle
	}
	if len(upcoming) > 0 {
		return u.cfg.PollActive
	}
	return u.cfg.PollIdle
}
