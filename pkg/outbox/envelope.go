package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
)

// EnvelopeVersion is written into every new envelope. Consumers branch on it
// when the shape of Data changes.
const EnvelopeVersion = 1

// ActorRef identifies the user behind a settlement event. Cron jobs and
// payment webhooks leave it nil.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses and validates a stored payload.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return PayloadEnvelope{}, err
	}
	return env, nil
}

// Validate rejects envelopes a consumer could not deduplicate or decode.
func (e PayloadEnvelope) Validate() error {
	switch {
	case e.Version <= 0 || e.Version > EnvelopeVersion:
		return fmt.Errorf("unsupported envelope version %d", e.Version)
	case e.EventID == "":
		return errors.New("envelope event id is required")
	case e.OccurredAt.IsZero():
		return errors.New("envelope occurred_at is required")
	}
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errors.New("envelope data is required")
	}
	return nil
}

// MessageAttributes are the Pub/Sub attributes subscribers filter on. The
// event id doubles as the consumer dedupe key.
func (e PayloadEnvelope) MessageAttributes(row models.OutboxEvent) map[string]string {
	attrs := map[string]string{
		"event_id":         e.EventID,
		"event_type":       string(row.EventType),
		"aggregate_type":   string(row.AggregateType),
		"aggregate_id":     row.AggregateID.String(),
		"envelope_version": strconv.Itoa(e.Version),
		"occurred_at":      e.OccurredAt.UTC().Format(time.RFC3339Nano),
		"created_at":       row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if e.Actor != nil && e.Actor.UserID != uuid.Nil {
		attrs["actor_user_id"] = e.Actor.UserID.String()
	}
	return attrs
}
