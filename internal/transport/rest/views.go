package rest

import (
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
)

type entryView struct {
	ID         uuid.UUID        `json:"id"`
	EventID    uuid.UUID        `json:"event_id"`
	EntrantID  uuid.UUID        `json:"entrant_id"`
	Status     domain.Status    `json:"status"`
	JoinedAt   time.Time        `json:"joined_at"`
	InvitedAt  *time.Time       `json:"invited_at,omitempty"`
	AcceptedAt *time.Time       `json:"accepted_at,omitempty"`
	DeclinedAt *time.Time       `json:"declined_at,omitempty"`
	Location   *domain.Location `json:"location,omitempty"`
}

func toEntryView(e domain.WaitlistEntry) entryView {
	return entryView{
		ID:         e.ID,
		EventID:    e.EventID,
		EntrantID:  e.EntrantID,
		Status:     e.Status,
		JoinedAt:   e.JoinedAt,
		InvitedAt:  e.InvitedAt,
		AcceptedAt: e.AcceptedAt,
		DeclinedAt: e.DeclinedAt,
		Location:   e.Location,
	}
}

func toEntryViews(entries []domain.WaitlistEntry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryView(e))
	}
	return out
}

// drawView encodes the seed as a string; JSON numbers lose int64 precision
// in most clients.
type drawView struct {
	ID          uuid.UUID       `json:"id"`
	EventID     uuid.UUID       `json:"event_id"`
	Kind        domain.DrawKind `json:"kind"`
	Seed        int64           `json:"seed,string"`
	Requested   int             `json:"requested"`
	Candidates  []string        `json:"candidates"`
	Selected    []string        `json:"selected"`
	TriggeredBy *uuid.UUID      `json:"triggered_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toDrawView(d domain.DrawRecord) drawView {
	return drawView{
		ID:          d.ID,
		EventID:     d.EventID,
		Kind:        d.Kind,
		Seed:        d.Seed,
		Requested:   d.Requested,
		Candidates:  nonNil(d.Candidates),
		Selected:    nonNil(d.Selected),
		TriggeredBy: d.TriggeredBy,
		CreatedAt:   d.CreatedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type eventView struct {
	ID                   uuid.UUID  `json:"id"`
	OrganizerID          uuid.UUID  `json:"organizer_id"`
	Capacity             *int       `json:"capacity"`
	WaitlistLimited      bool       `json:"waitlist_limited"`
	WaitlistLimit        *int       `json:"waitlist_limit"`
	RegistrationOpensAt  *time.Time `json:"registration_opens_at"`
	RegistrationClosesAt *time.Time `json:"registration_closes_at"`
	LotteryDrawAt        *time.Time `json:"lottery_draw_at"`
	RequireLocation      bool       `json:"require_location"`
	WaitingCount         int        `json:"waiting_count"`
	AttendeeCount        int        `json:"attendee_count"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toEventView(ev domain.Event) eventView {
	return eventView{
		ID:                   ev.ID,
		OrganizerID:          ev.OrganizerID,
		Capacity:             ev.Capacity,
		WaitlistLimited:      ev.WaitlistLimited,
		WaitlistLimit:        ev.WaitlistLimit,
		RegistrationOpensAt:  ev.RegistrationOpensAt,
		RegistrationClosesAt: ev.RegistrationClosesAt,
		LotteryDrawAt:        ev.LotteryDrawAt,
		RequireLocation:      ev.RequireLocation,
		WaitingCount:         ev.WaitingCount,
		AttendeeCount:        ev.AttendeeCount,
		UpdatedAt:            ev.UpdatedAt,
	}
}

type statsView struct {
	EventID       uuid.UUID             `json:"event_id"`
	Capacity      *int                  `json:"capacity"`
	WaitingCount  int                   `json:"waiting_count"`
	AttendeeCount int                   `json:"attendee_count"`
	ByStatus      map[domain.Status]int `json:"by_status"`
	UpdatedAt     time.Time             `json:"updated_at"`
}
