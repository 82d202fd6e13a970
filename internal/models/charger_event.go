package models

import "time"

// Event types recorded in the charger log.
const (
	EventCommand       = "COMMAND"
	EventCommandFailed = "COMMAND_FAILED"
	EventStateChange   = "STATE_CHANGE"
	EventPollFailed    = "POLL_FAILED"
	EventPollRecovered = "POLL_RECOVERED"
)

// ChargerEvent is a single log entry.
type ChargerEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND | COMMAND_FAILED | STATE_CHANGE | POLL_FAILED | POLL_RECOVERED
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
