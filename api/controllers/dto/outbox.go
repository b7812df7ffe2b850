package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

type DeadLetter struct {
	ID            uuid.UUID                  `json:"id"`
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	Error         string                     `json:"error,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload"`
}

func NewDeadLetter(row models.OutboxDLQ) DeadLetter {
	out := DeadLetter{
		ID:            row.ID,
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Reason:        row.ErrorReason,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
		Payload:       row.Payload,
	}
	if row.ErrorMessage != nil {
		out.Error = *row.ErrorMessage
	}
	return out
}

func NewDeadLetters(rows []models.OutboxDLQ) []DeadLetter {
	out := make([]DeadLetter, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewDeadLetter(row))
	}
	return out
}
