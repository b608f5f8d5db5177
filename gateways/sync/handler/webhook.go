package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	pkgjson "github.com/kairohq/backend/pkg/json"
	"github.com/kairohq/backend/services/meeting/entity"
	"github.com/kairohq/backend/services/meeting/storage"
)

type botStatusWebhookRequest struct {
	BotID       string `json:"bot_id"`
	Status      string `json:"status"`
	ErrorDetail string `json:"error_detail"`
}

// BotStatusWebhook accepts status pushes from the bot platform. Pushes for
// unknown bots and out-of-order pushes are acknowledged and dropped; the
// poller converges the rest.
func (h *Handler) BotStatusWebhook(w http.ResponseWriter, r *http.Request) {
	var req botStatusWebhookRequest
	if err := pkgjson.ParseJSON(r, &req); err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.BotID == "" || req.Status == "" {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("bot_id and status are required"))
		return
	}

	h.log.Info("bot status webhook received",
		slog.String("bot_id", req.BotID),
		slog.String("status", req.Status))

	err := h.usecase.ApplyBotStatus(r.Context(), req.BotID, &entity.BotStatus{
		PlatformStatus: req.Status,
		ErrorDetail:    req.ErrorDetail,
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, err)
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		h.log.Warn("webhook for unknown bot", slog.String("bot_id", req.BotID))
	}
	pkgjson.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type pipelineWebhookRequest struct {
	MeetingID   string `json:"meeting_id"`
	Trigger     string `json:"trigger"`
	ErrorDetail string `json:"error_detail"`
}

// PipelineWebhook records the transcript/insight pipeline's verdict.
func (h *Handler) PipelineWebhook(w http.ResponseWriter, r *http.Request) {
	var req pipelineWebhookRequest
	if err := pkgjson.ParseJSON(r, &req); err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	id, err := uuid.Parse(req.MeetingID)
	if err != nil {
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("meeting_id must be a uuid"))
		return
	}

	var failed bool
	switch req.Trigger {
	case "completed":
		failed = false
	case "failed":
		failed = true
	default:
		pkgjson.WriteError(w, http.StatusBadRequest, errors.New("trigger must be completed or failed"))
		return
	}

	h.log.Info("pipeline webhook received",
		slog.String("meeting_id", req.MeetingID),
		slog.String("trigger", req.Trigger))

	if err := h.usecase.CompletePipeline(r.Context(), id, failed, req.ErrorDetail); err != nil {
		h.writeError(w, err)
		return
	}
	pkgjson.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
