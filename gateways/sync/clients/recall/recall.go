package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kairohq/backend/services/meeting/entity"
)

// Client talks to the bot platform's REST API. It is the only component that
// writes outbound requests to the platform.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type createBotRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

type botResponse struct {
	ID     string `json:"id"`
	Status struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func New(baseURL, apiKey string, log *slog.Logger) *Client {
	log.Debug("creating recall client",
		slog.String("base_url", baseURL),
		slog.Bool("api_key_set", apiKey != ""))
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// JoinMeeting asks the platform to send a bot into the call. A 4xx answer is
// a permanent rejection; transport and 5xx failures are transient.
func (c *Client) JoinMeeting(ctx context.Context, meetingURL, title string) (string, error) {
	c.log.Info("JoinMeeting called", slog.String("meeting_url", meetingURL))

	body, err := json.Marshal(createBotRequest{
		MeetingURL: meetingURL,
		BotName:    title,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal join request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/bot", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create join request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("join request failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("join request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		reason := c.readErrorDetail(resp.Body)
		c.log.Warn("join request rejected",
			slog.Int("status_code", resp.StatusCode),
			slog.String("detail", reason))
		return "", &entity.RejectionError{Reason: reason}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		c.log.Error("join request failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(raw)))
		return "", fmt.Errorf("bot platform returned status %d: %s", resp.StatusCode, string(raw))
	}

	var bot botResponse
	if err := json.NewDecoder(resp.Body).Decode(&bot); err != nil {
		return "", fmt.Errorf("failed to decode join response: %w", err)
	}
	if bot.ID == "" {
		return "", fmt.Errorf("bot platform returned empty bot id")
	}

	c.log.Info("bot join accepted",
		slog.String("bot_id", bot.ID),
		slog.String("status", bot.Status.Code))
	return bot.ID, nil
}

// GetBotStatus reports the platform's live view of one bot instance.
func (c *Client) GetBotStatus(ctx context.Context, botID string) (*entity.BotStatus, error) {
	c.log.Debug("GetBotStatus called", slog.String("bot_id", botID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/bot/"+botID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("status request failed",
			slog.String("bot_id", botID),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		c.log.Error("status request failed",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", string(raw)))
		return nil, fmt.Errorf("bot platform returned status %d: %s", resp.StatusCode, string(raw))
	}

	var bot botResponse
	if err := json.NewDecoder(resp.Body).Decode(&bot); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	c.log.Debug("bot status received",
		slog.String("bot_id", botID),
		slog.String("status", bot.Status.Code))
	return &entity.BotStatus{
		PlatformStatus: bot.Status.Code,
		ErrorDetail:    bot.Status.Message,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(body)
	if err != nil {
		return "join rejected"
	}
	var detail errorResponse
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(raw)
}
