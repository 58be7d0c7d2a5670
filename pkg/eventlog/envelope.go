package eventlog

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the stable payload structure stored in event_logs.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}
