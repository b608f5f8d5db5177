package entity

// RejectionError is a permanent refusal from the bot platform (invalid URL,
// denied entry). It is not retried automatically; the meeting moves to FAILED
// with the reason kept for display.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "bot platform rejected join: " + e.Reason
}
