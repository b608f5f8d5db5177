package icsfeed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	windowStart = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(7 * 24 * time.Hour)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ics(lines ...string) string {
	all := append([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//kairo//sync//EN",
	}, lines...)
	all = append(all, "END:VCALENDAR")
	return strings.Join(all, "\r\n") + "\r\n"
}

func serve(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		io.WriteString(w, body)
	}))
}

func TestListEvents(t *testing.T) {
	srv := serve(t, ics(
		"BEGIN:VEVENT",
		"UID:event-1",
		"SUMMARY:standup",
		"DTSTART:20260312T090000Z",
		"DTEND:20260312T093000Z",
		"DESCRIPTION:Join here https://meet.google.com/abc-defg-hij see you",
		"ATTENDEE:mailto:a@example.com",
		"ATTENDEE:mailto:b@example.com",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:event-2",
		"SUMMARY:customer call",
		"DTSTART:20260313T140000Z",
		"LOCATION:https://us02web.zoom.us/j/123456",
		"END:VEVENT",
	))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	events, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, "event-1", events[0].EventID)
	require.Equal(t, "standup", events[0].Title)
	require.Equal(t, "https://meet.google.com/abc-defg-hij", events[0].MeetingURL)
	require.Equal(t, time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC), events[0].StartTime)
	require.Equal(t, time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC), events[0].EndTime)
	require.Equal(t, 2, events[0].Attendees)

	require.Equal(t, "https://us02web.zoom.us/j/123456", events[1].MeetingURL)
}

func TestListEventsDropsCancelledAndLinkless(t *testing.T) {
	srv := serve(t, ics(
		"BEGIN:VEVENT",
		"UID:cancelled-1",
		"SUMMARY:was cancelled upstream",
		"STATUS:CANCELLED",
		"DTSTART:20260312T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:no-link",
		"SUMMARY:lunch",
		"DTSTART:20260312T120000Z",
		"DESCRIPTION:see https://example.com/menu",
		"END:VEVENT",
	))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	events, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestListEventsWindowFilter(t *testing.T) {
	srv := serve(t, ics(
		"BEGIN:VEVENT",
		"UID:too-late",
		"SUMMARY:next month",
		"DTSTART:20260420T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:too-early",
		"SUMMARY:yesterday",
		"DTSTART:20260301T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
	))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	events, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestListEventsDeduplicatesUIDs(t *testing.T) {
	srv := serve(t, ics(
		"BEGIN:VEVENT",
		"UID:event-1",
		"SUMMARY:standup",
		"DTSTART:20260312T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:event-1",
		"SUMMARY:standup again",
		"DTSTART:20260312T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
	))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	events, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "standup", events[0].Title)
}

func TestListEventsSynthesizesMissingUID(t *testing.T) {
	srv := serve(t, ics(
		"BEGIN:VEVENT",
		"SUMMARY:standup",
		"DTSTART:20260312T090000Z",
		"DESCRIPTION:https://meet.google.com/abc-defg-hij",
		"END:VEVENT",
	))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	events, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "2026-03-12T09:00:00Z-standup", events[0].EventID)
}

func TestListEventsRejectsHTML(t *testing.T) {
	srv := serve(t, "<!DOCTYPE html><html><body>sign in</body></html>")
	defer srv.Close()

	c := New(srv.URL, testLogger())
	_, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.ErrorContains(t, err, "HTML")
}

func TestListEventsRejectsNonCalendar(t *testing.T) {
	srv := serve(t, "this is not a calendar")
	defer srv.Close()

	c := New(srv.URL, testLogger())
	_, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.ErrorContains(t, err, "BEGIN:VCALENDAR")
}

func TestListEventsFeedErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(srv.URL, testLogger())
	_, err := c.ListEvents(context.Background(), windowStart, windowEnd)
	require.ErrorContains(t, err, "403")
}

func TestExtractMeetingURL(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Join: https://meet.google.com/abc-defg-hij", "https://meet.google.com/abc-defg-hij"},
		{"agenda at https://example.com/doc then https://zoom.us/j/99", "https://zoom.us/j/99"},
		{"no links here", ""},
		{"https://example.com/call only", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, extractMeetingURL(tc.text), tc.text)
	}
}
