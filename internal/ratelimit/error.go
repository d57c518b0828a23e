package ratelimit

import (
	"fmt"
	"time"
)

const (
	ReasonMessages = "messages"
	ReasonTokens   = "tokens"
	ReasonFiles    = "files"
)

// Error reports an exhausted quota together with the window in which the
// quota resets. It travels inside the error envelope's details so clients
// can show the retry window.
type Error struct {
	Reason      string    `json:"reason"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s until %s", e.Reason, e.PeriodEnd.Format(time.RFC3339))
}

func validReason(reason string) bool {
	return reason == ReasonMessages || reason == ReasonTokens || reason == ReasonFiles
}

// ErrorFromPayload rebuilds an Error from a decoded envelope details map.
// It is schema-checked: any shape mismatch returns nil rather than an
// error, so callers can fall back to generic handling.
func ErrorFromPayload(payload map[string]any) *Error {
	if payload == nil {
		return nil
	}
	reason, ok := payload["reason"].(string)
	if !ok || !validReason(reason) {
		return nil
	}
	start, ok := parseTime(payload["periodStart"])
	if !ok {
		return nil
	}
	end, ok := parseTime(payload["periodEnd"])
	if !ok {
		return nil
	}
	return &Error{Reason: reason, PeriodStart: start, PeriodEnd: end}
}

func parseTime(v any) (time.Time, bool) {
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
