package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a domain event emitted by a successful state change.
type EventType string

// Domain event types.
const (
	EventRecordCommitted EventType = "RecordCommitted"
	EventRecordDiscarded EventType = "RecordDiscarded"
	EventRecordMerged    EventType = "RecordMerged"
	EventReviewQueued    EventType = "ReviewQueued"
)

// DomainEvent is the envelope stored in the outbox and published to consumers.
type DomainEvent struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregateId"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload"`
}

// RecordCommittedPayload accompanies EventRecordCommitted.
type RecordCommittedPayload struct {
	Record       AttendeeRecord `json:"record"`
	ReviewItemID string         `json:"reviewItemId,omitempty"`
}

// RecordDiscardedPayload accompanies EventRecordDiscarded.
type RecordDiscardedPayload struct {
	ReviewItemID string         `json:"reviewItemId"`
	Candidate    AttendeeRecord `json:"candidate"`
}

// RecordMergedPayload accompanies EventRecordMerged.
type RecordMergedPayload struct {
	Record       AttendeeRecord `json:"record"`
	SupersededID string         `json:"supersededId"`
	ReviewItemID string         `json:"reviewItemId"`
}

// ReviewQueuedPayload accompanies EventReviewQueued.
type ReviewQueuedPayload struct {
	Item ReviewItem `json:"item"`
}

// NewEvent builds an envelope around payload.
func NewEvent(id string, typ EventType, aggregateID string, at time.Time, payload any) (DomainEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return DomainEvent{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return DomainEvent{
		ID:          id,
		Type:        typ,
		AggregateID: aggregateID,
		OccurredAt:  at.UTC(),
		Payload:     raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e *DomainEvent) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
