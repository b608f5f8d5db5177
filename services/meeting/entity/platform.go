package entity

import "strings"

// Platform is the video-conferencing vendor inferred from a meeting URL.
type Platform string

const (
	PlatformGoogleMeet Platform = "google_meet"
	PlatformZoom       Platform = "zoom"
	PlatformTeams      Platform = "teams"
	PlatformWebex      Platform = "webex"
	PlatformUnknown    Platform = "unknown"
)

// DetectPlatform infers the vendor from the meeting URL host.
func DetectPlatform(meetingURL string) Platform {
	url := strings.ToLower(meetingURL)
	switch {
	case strings.Contains(url, "meet.google.com"):
		return PlatformGoogleMeet
	case strings.Contains(url, "zoom.us/j/"), strings.Contains(url, "zoom.us/my/"):
		return PlatformZoom
	case strings.Contains(url, "teams.microsoft.com"), strings.Contains(url, "teams.live.com"):
		return PlatformTeams
	case strings.Contains(url, "webex.com"):
		return PlatformWebex
	}
	return PlatformUnknown
}
