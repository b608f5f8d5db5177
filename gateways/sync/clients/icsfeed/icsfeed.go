package icsfeed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/kairohq/backend/services/meeting/entity"
)

// Client reads the calendar source from a published ICS feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func New(feedURL string, log *slog.Logger) *Client {
	log.Debug("creating ics feed client", slog.String("feed_url", feedURL))
	return &Client{
		feedURL: feedURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// ListEvents fetches the feed and returns events inside the window that
// carry a video-conferencing URL. Events the source marked cancelled are
// dropped here, so their meetings fall out of the window and cancel locally.
func (c *Client) ListEvents(ctx context.Context, windowStart, windowEnd time.Time) ([]entity.CalendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	if err := validateFormat(string(body)); err != nil {
		return nil, err
	}

	events, err := c.parse(strings.NewReader(string(body)), windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	c.log.Debug("ics feed fetched",
		slog.Int("events", len(events)),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", windowEnd))
	return events, nil
}

func (c *Client) parse(r io.Reader, windowStart, windowEnd time.Time) ([]entity.CalendarEvent, error) {
	decoder := ical.NewDecoder(r)
	events := []entity.CalendarEvent{}
	seen := make(map[string]struct{})

	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}

			ev, cancelled := parseEvent(comp)
			if cancelled || ev.MeetingURL == "" {
				continue
			}
			if ev.StartTime.IsZero() || ev.StartTime.Before(windowStart) || ev.StartTime.After(windowEnd) {
				continue
			}
			if _, dup := seen[ev.EventID]; dup {
				c.log.Debug("duplicate event skipped", slog.String("event_id", ev.EventID))
				continue
			}
			seen[ev.EventID] = struct{}{}
			events = append(events, ev)
		}
	}
	return events, nil
}

func parseEvent(comp *ical.Component) (entity.CalendarEvent, bool) {
	ev := entity.CalendarEvent{}
	cancelled := false

	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		ev.EventID = uid.Value
	}
	if summary := comp.Props.Get(ical.PropSummary); summary != nil {
		ev.Title = summary.Value
	}
	if status := comp.Props.Get(ical.PropStatus); status != nil {
		cancelled = strings.EqualFold(status.Value, "CANCELLED")
	}
	if start := comp.Props.Get(ical.PropDateTimeStart); start != nil {
		if t, err := parseDateTime(start); err == nil {
			ev.StartTime = t
		}
	}
	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := parseDateTime(end); err == nil {
			ev.EndTime = t
		}
	}
	if desc := comp.Props.Get(ical.PropDescription); desc != nil {
		ev.MeetingURL = extractMeetingURL(desc.Value)
	}
	if loc := comp.Props.Get(ical.PropLocation); loc != nil && ev.MeetingURL == "" {
		ev.MeetingURL = extractMeetingURL(loc.Value)
	}
	if ev.MeetingURL == "" {
		if url := comp.Props.Get(ical.PropURL); url != nil {
			ev.MeetingURL = extractMeetingURL(url.Value)
		}
	}
	ev.Attendees = len(comp.Props.Values(ical.PropAttendee))

	// Feeds without UIDs still need a stable identity across fetches.
	if ev.EventID == "" {
		ev.EventID = ev.StartTime.UTC().Format(time.RFC3339) + "-" + ev.Title
	}
	return ev, cancelled
}

func parseDateTime(prop *ical.Prop) (time.Time, error) {
	if t, err := prop.DateTime(time.UTC); err == nil {
		return t, nil
	}

	formats := []string{
		"20060102T150405Z",
		"20060102T150405",
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, prop.Value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse datetime value: %s", prop.Value)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"{}|\\^[\]` + "`" + `]+`)

// extractMeetingURL pulls a video-conferencing link out of free text,
// preferring known vendors over arbitrary URLs.
func extractMeetingURL(text string) string {
	matches := urlPattern.FindAllString(text, -1)
	for _, match := range matches {
		if entity.DetectPlatform(match) != entity.PlatformUnknown {
			return match
		}
	}
	return ""
}

func validateFormat(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		return fmt.Errorf("invalid iCalendar format, expected BEGIN:VCALENDAR")
	}
	return nil
}
