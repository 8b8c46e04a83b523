package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusInvited   Status = "invited"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusInvited, StatusAccepted, StatusDeclined, StatusCancelled:
		return true
	}
	return false
}

type DrawKind string

const (
	DrawInitial     DrawKind = "initial"
	DrawReplacement DrawKind = "replacement"
)

// Event is the waitlist view of an organizer's event. Counters are owned by
// the lottery service and only change inside an event transaction.
type Event struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID

	Capacity        *int
	WaitlistLimited bool
	WaitlistLimit   *int

	RegistrationOpensAt  *time.Time
	RegistrationClosesAt *time.Time
	LotteryDrawAt        *time.Time

	RequireLocation bool

	WaitingCount  int
	AttendeeCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventConfig is the organizer-controlled part of an Event.
type EventConfig struct {
	ID          uuid.UUID
	OrganizerID uuid.UUID

	Capacity        *int
	WaitlistLimited bool
	WaitlistLimit   *int

	RegistrationOpensAt  *time.Time
	RegistrationClosesAt *time.Time
	LotteryDrawAt        *time.Time

	RequireLocation bool
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type WaitlistEntry struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	EntrantID uuid.UUID
	Status    Status

	JoinedAt   time.Time
	InvitedAt  *time.Time
	AcceptedAt *time.Time
	DeclinedAt *time.Time

	Location *Location
}

// DrawRecord keeps everything needed to replay a draw: the sorted candidate
// pool, the requested count and the seed.
type DrawRecord struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	Kind        DrawKind
	Seed        int64
	Requested   int
	Candidates  []string
	Selected    []string
	TriggeredBy *uuid.UUID
	CreatedAt   time.Time
}

type KeysetCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type EventStats struct {
	EventID       uuid.UUID
	Capacity      *int
	WaitingCount  int
	AttendeeCount int
	ByStatus      map[Status]int
	UpdatedAt     time.Time
}

// OutboxMessage is written in the same transaction as the state change it
// describes and published later by the outbox worker.
type OutboxMessage struct {
	RoutingKey string
	TraceID    string
	Payload    any
}

// EventTx is the store contract for a single event. Every method runs inside
// one transaction that holds the event lock until commit or rollback.
type EventTx interface {
	Event() Event

	// Get returns (nil, nil) when the entrant has no entry.
	Get(ctx context.Context, entrantID uuid.UUID) (*WaitlistEntry, error)
	ListByStatus(ctx context.Context, status Status) ([]WaitlistEntry, error)
	Insert(ctx context.Context, entry WaitlistEntry) error
	Transition(ctx context.Context, entrantID uuid.UUID, from, to Status, at time.Time) error
	Remove(ctx context.Context, entrantID uuid.UUID, from Status) error
	AdjustCounters(ctx context.Context, deltaWaiting, deltaAttendee int) error

	RecordDraw(ctx context.Context, rec DrawRecord) error
	Enqueue(ctx context.Context, msg OutboxMessage) error
}

// WaitlistStore is implemented by the Postgres repository and the in-memory
// store used in tests.
type WaitlistStore interface {
	WithinEvent(ctx context.Context, eventID uuid.UUID, fn func(tx EventTx) error) error

	UpsertEvent(ctx context.Context, cfg EventConfig) (Event, error)
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error
	GetEvent(ctx context.Context, eventID uuid.UUID) (Event, error)

	// Reads
	GetEntry(ctx context.Context, eventID, entrantID uuid.UUID) (WaitlistEntry, error)
	ListEntries(ctx context.Context, eventID uuid.UUID, status Status, limit int, cursor *KeysetCursor) ([]WaitlistEntry, *KeysetCursor, error)
	ListEntrantHistory(ctx context.Context, entrantID uuid.UUID, limit int, cursor *KeysetCursor) ([]WaitlistEntry, *KeysetCursor, error)
	CountByStatus(ctx context.Context, eventID uuid.UUID) (map[Status]int, error)
	ListDraws(ctx context.Context, eventID uuid.UUID) ([]DrawRecord, error)
}

// EventCache is an optional fast path for admission checks. It never
// replaces the transactional check.
type EventCache interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (Event, error)
	SetEvent(ctx context.Context, ev Event) error
	DeleteEvent(ctx context.Context, eventID uuid.UUID) error

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
