package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgjson "github.com/kairohq/backend/pkg/json"
	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
	"github.com/kairohq/backend/services/meeting/usecase"
)

type Handler struct {
	usecase usecase.Usecase
	log     *slog.Logger
}

func New(uc usecase.Usecase, log *slog.Logger) *Handler {
	return &Handler{
		usecase: uc,
		log:     log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/sync", h.Sync)
	r.Get("/calendar-events", h.ListCalendarEvents)
	r.Patch("/calendar-events/{event_id}/bot-exclusion", h.ToggleBotExclusionForEvent)
	r.Get("/meetings", h.ListMeetings)
	r.Post("/meetings", h.CreateMeeting)
	r.Get("/meetings/{meeting_id}", h.GetMeeting)
	r.Post("/meetings/{meeting_id}/dispatch", h.Dispatch)
	r.Patch("/meetings/{meeting_id}/bot-exclusion", h.ToggleBotExclusion)
	r.Post("/meetings/{meeting_id}/refresh-status", h.RefreshStatus)
	r.Post("/webhooks/bot-status", h.BotStatusWebhook)
	r.Post("/webhooks/pipeline", h.PipelineWebhook)
	r.Get("/health", h.HealthCheck)
	h.log.Info("routes registered")
}

type MeetingSummary struct {
	ID              string     `json:"id"`
	ExternalEventID string     `json:"externalEventId,omitempty"`
	Title           string     `json:"title"`
	MeetingURL      string     `json:"meetingUrl"`
	Platform        string     `json:"platform"`
	ScheduledStart  time.Time  `json:"scheduledStart"`
	ScheduledEnd    *time.Time `json:"scheduledEnd,omitempty"`
	Status          string     `json:"status"`
	BotExcluded     bool       `json:"botExcluded"`
	BotID           string     `json:"botId,omitempty"`
	BotError        string     `json:"botError,omitempty"`
}

func summarize(m *entity.Meeting) MeetingSummary {
	s := MeetingSummary{
		ID:              m.ID.String(),
		ExternalEventID: m.ExternalEventID,
		Title:           m.Title,
		MeetingURL:      m.MeetingURL,
		Platform:        string(m.Platform),
		ScheduledStart:  m.ScheduledStart,
		Status:          string(m.Status),
		BotExcluded:     m.BotExcluded,
		BotID:           m.BotID,
		BotError:        m.BotError,
	}
	if !m.ScheduledEnd.IsZero() {
		end := m.ScheduledEnd
		s.ScheduledEnd = &end
	}
	return s
}

type annotatedEventResponse struct {
	EventID         string     `json:"eventId"`
	Title           string     `json:"title"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	MeetingURL      string     `json:"meetingUrl,omitempty"`
	Attendees       int        `json:"attendees"`
	MeetingID       string     `json:"meetingId,omitempty"`
	MeetingStatus   string     `json:"meetingStatus,omitempty"`
	BotExcluded     bool       `json:"botExcluded"`
	HasBotScheduled bool       `json:"hasBotScheduled"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	pkgjson.WriteJSON(w, http.StatusOK, map[string]bool{"status": true})
}

func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	h.log.Info("sync request received", slog.String("remote_addr", r.RemoteAddr))

	summary, err := h.usecase.SyncAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) ListCalendarEvents(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			pkgjson.WriteError(w, http.StatusBadRequest, errors.New("days must be a non-negative integer"))
			return
		}
		days = parsed
	}

	events, err := h.usecase.ListCalendarEvents(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]annotatedEventResponse, 0, len(events))
	for _, ev := range events {
		resp := annotatedEventResponse{
			EventID:         ev.EventID,
			Title:           ev.Title,
			StartTime:       ev.StartTime,
			MeetingURL:      ev.MeetingURL,
			Attendees:       ev.Attendees,
			BotExcluded:     ev.BotExcluded,
			HasBotScheduled: ev.HasBotScheduled,
		}
		if !ev.EndTime.IsZero() {
			end := ev.EndTime
			resp.EndTime = &end
		}
		if ev.MeetingID != uuid.Nil {
			resp.MeetingID = ev.MeetingID.String()
			resp.MeetingStatus = string(ev.MeetingStatus)
		}
		out = append(out, resp)
	}
	pkgjson.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) ListMeetings(w http.ResponseWriter, r *http.Request) {
	var statuses []entity.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := entity.Status(raw)
		if !status.Valid() {
			pkgjson.WriteError(w, http.StatusBadRequest, errors.New("unknown status"))
			return
		}
		statuses = append(statuses, status)
	}

	meetings, err := h.usecase.ListMeetings(r.Context(), statuses)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]MeetingSummary, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, summarize(m))
	}
	pkgjson.WriteJSON(w, http.StatusOK, out)
}

type createMeetingRequest struct {
	Title          string     `json:"title"`
	MeetingURL     string     `json:"meetingUrl"`
	ScheduledStart time.Time  `json:"scheduledStart"`
	ScheduledEnd   *time.Time `json:"scheduledEnd"`
	BotExcluded    bool       `json:"botExcluded"`
}

func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req createMeetingRequest
	if err := pkgjson.ParseJSON(r, &req); err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	create := &entity.CreateMeetingRequest{
		Title:          req.Title,
		MeetingURL:     req.MeetingURL,
		ScheduledStart: req.ScheduledStart,
		BotExcluded:    req.BotExcluded,
	}
	if req.ScheduledEnd != nil {
		create.ScheduledEnd = *req.ScheduledEnd
	}

	m, err := h.usecase.CreateMeeting(r.Context(), create)
	if err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusCreated, summarize(m))
}

func (h *Handler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := h.meetingID(w, r)
	if !ok {
		return
	}

	m, err := h.usecase.GetMeeting(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, summarize(m))
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.meetingID(w, r)
	if !ok {
		return
	}

	h.log.Info("dispatch request received", slog.String("meeting_id", id.String()))
	m, err := h.usecase.Dispatch(r.Context(), id)
	if err != nil {
		var rejection *entity.RejectionError
		if errors.As(err, &rejection) && m != nil {
			// The meeting moved to FAILED with the reason recorded; the
			// summary carries it to the caller.
			pkgjson.WriteJSON(w, http.StatusUnprocessableEntity, summarize(m))
			return
		}
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, summarize(m))
}

type botExclusionRequest struct {
	Excluded bool `json:"excluded"`
}

func (h *Handler) ToggleBotExclusion(w http.ResponseWriter, r *http.Request) {
	var req botExclusionRequest
	if err := pkgjson.ParseJSON(r, &req); err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	// An "event:" prefix addresses a calendar event that may not be
	// materialized yet; it takes the same path as the calendar-events route.
	if eventID, ok := strings.CutPrefix(chi.URLParam(r, "meeting_id"), "event:"); ok {
		m, err := h.usecase.ToggleBotExclusionForEvent(r.Context(), eventID, req.Excluded)
		if err != nil {
			h.writeError(w, err)
			return
		}
		pkgjson.WriteJSON(w, http.StatusOK, summarize(m))
		return
	}

	id, ok := h.meetingID(w, r)
	if !ok {
		return
	}

	m, err := h.usecase.ToggleBotExclusion(r.Context(), id, req.Excluded)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, summarize(m))
}

func (h *Handler) ToggleBotExclusionForEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "event_id")
	if eventID == "" {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("event_id is required"))
		return
	}

	var req botExclusionRequest
	if err := pkgjson.ParseJSON(r, &req); err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	m, err := h.usecase.ToggleBotExclusionForEvent(r.Context(), eventID, req.Excluded)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, summarize(m))
}

func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.meetingID(w, r)
	if !ok {
		return
	}

	result, err := h.usecase.Refresh(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) meetingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "meeting_id")
	id, err := uuid.Parse(raw)
	if err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("meeting_id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, usecase.ErrEventNotFound):
		pkgjson.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, usecase.ErrCalendarUnavailable), errors.Is(err, usecase.ErrBotPlatformUnavailable):
		pkgjson.WriteError(w, http.StatusBadGateway, err)
	case errors.Is(err, usecase.ErrDispatchNotAllowed), errors.Is(err, usecase.ErrBotExcluded):
		pkgjson.WriteError(w, http.StatusConflict, err)
	default:
		h.log.Error("request failed", slog.String("error", err.Error()))
		pkgjson.WriteError(w, http.StatusInternalServerError, err)
	}
}
