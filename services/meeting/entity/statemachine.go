package entity

// Event is an external trigger applied to a meeting's status.
type Event string

const (
	EventDispatched     Event = "dispatched"      // join request accepted by the bot platform
	EventCancelled      Event = "cancelled"       // calendar event disappeared from the window
	EventRevived        Event = "revived"         // calendar event reappeared upstream
	EventBotJoined      Event = "bot_joined"      // bot connected to the call
	EventBotFailed      Event = "bot_failed"      // join failure, timeout or platform rejection
	EventCallEnded      Event = "call_ended"      // bot left, recording handed to processing
	EventPipelineDone   Event = "pipeline_done"   // transcript/insight pipeline finished
	EventPipelineFailed Event = "pipeline_failed" // pipeline hit an unrecoverable error
)

// transitions is the single authoritative allow-list of status transitions.
// Anything not listed here is rejected as a no-op, which keeps the machine
// monotone under duplicate or out-of-order notifications.
var transitions = map[Status]map[Event]Status{
	StatusScheduled: {
		EventDispatched: StatusJoining,
		EventCancelled:  StatusCancelled,
		EventBotFailed:  StatusFailed, // join request rejected outright
	},
	StatusJoining: {
		EventBotJoined: StatusInProgress,
		EventBotFailed: StatusFailed,
	},
	StatusInProgress: {
		EventCallEnded: StatusProcessing,
	},
	StatusProcessing: {
		EventPipelineDone:   StatusCompleted,
		EventPipelineFailed: StatusFailed,
	},
	StatusCancelled: {
		EventRevived: StatusScheduled,
	},
}

// Next returns the status reached by applying event to from, and whether the
// transition is allowed at all.
func Next(from Status, event Event) (Status, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// EventForBotStatus maps the bot platform's status vocabulary onto a state
// machine event. The second return is false for statuses that carry no
// transition (still joining, unknown vocabulary).
func EventForBotStatus(platformStatus string) (Event, bool) {
	switch platformStatus {
	case "ready", "joining_call", "in_waiting_room":
		return "", false
	case "in_call", "in_call_recording":
		return EventBotJoined, true
	case "call_ended", "done":
		return EventCallEnded, true
	case "fatal", "errored", "denied":
		return EventBotFailed, true
	}
	return "", false
}
