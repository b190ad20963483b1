package webhook

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds delivered by Calendly. Anything else is acknowledged and
// ignored; the provider's event catalog grows over time.
const (
	EventInviteeCreated  = "invitee.created"
	EventInviteeCanceled = "invitee.canceled"
)

// Envelope is the top-level webhook body.
type Envelope struct {
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
}

// Payload describes the invitee. Its URI is the invitee reference, the only
// identifier shared by creation and cancellation events.
type Payload struct {
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	URI            string         `json:"uri"`
	CancelURL      string         `json:"cancel_url"`
	RescheduleURL  string         `json:"reschedule_url"`
	ScheduledEvent ScheduledEvent `json:"scheduled_event"`
}

type ScheduledEvent struct {
	URI       string     `json:"uri"`
	EventType string     `json:"event_type"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// ParseEnvelope decodes the raw body. Timestamps are RFC 3339; Calendly sends
// Z-suffixed UTC.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse webhook body: %w", err)
	}
	return &env, nil
}
