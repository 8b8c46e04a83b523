package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DomainEventEnvelope is the canonical envelope consumed across services.
// message_id is optional for older producers.
type DomainEventEnvelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	TraceID    string    `json:"trace_id,omitempty"`
	MessageID  string    `json:"message_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// EventPublishedPayload carries the waitlist-relevant part of an event
// snapshot. Extra producer fields are ignored.
type EventPublishedPayload struct {
	EventID     string `json:"event_id"`
	OrganizerID string `json:"organizer_id,omitempty"`
	Status      string `json:"status,omitempty"`

	Capacity        *int `json:"capacity,omitempty"`
	WaitlistLimited bool `json:"waitlist_limited,omitempty"`
	WaitlistLimit   *int `json:"waitlist_limit,omitempty"`

	RegistrationOpensAt  *time.Time `json:"registration_opens_at,omitempty"`
	RegistrationClosesAt *time.Time `json:"registration_closes_at,omitempty"`
	LotteryDrawAt        *time.Time `json:"lottery_draw_at,omitempty"`

	RequireLocation bool `json:"require_location,omitempty"`
}

type EventUpdatedPayload = EventPublishedPayload

// EventCanceledPayload accepts both event_id and the legacy id field.
type EventCanceledPayload struct {
	EventID    string     `json:"event_id,omitempty"`
	ID         string     `json:"id,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	CanceledAt *time.Time `json:"canceled_at,omitempty"`
}

type EventDeletedPayload struct {
	EventID string `json:"event_id,omitempty"`
	ID      string `json:"id,omitempty"`
}

// ResolveEventID returns the first parseable id among the candidates.
func ResolveEventID(ids ...string) (uuid.UUID, error) {
	for _, s := range ids {
		if s == "" {
			continue
		}
		if id, err := uuid.Parse(s); err == nil {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("missing or invalid event id")
}

// Decode unmarshals an envelope, falling back to a bare payload for
// producers that do not wrap their messages.
func Decode[T any](body []byte) (DomainEventEnvelope[T], error) {
	var env DomainEventEnvelope[T]
	if err := json.Unmarshal(body, &env); err == nil && env.Version > 0 {
		return env, nil
	}

	var p T
	if err := json.Unmarshal(body, &p); err != nil {
		return DomainEventEnvelope[T]{}, err
	}
	return DomainEventEnvelope[T]{Payload: p}, nil
}
