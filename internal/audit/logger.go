package audit

import (
	"context"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	appCtx "github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/context"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for waitlist business events
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

func (l *Logger) Joined(ctx context.Context, eventID, entrantID uuid.UUID) {
	l.log.Info().
		Str("action", "joined").
		Str("event_id", eventID.String()).
		Str("entrant_id", entrantID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Entrant joined waitlist")
}

func (l *Logger) Left(ctx context.Context, eventID, entrantID uuid.UUID, prev domain.Status) {
	l.log.Info().
		Str("action", "left").
		Str("event_id", eventID.String()).
		Str("entrant_id", entrantID.String()).
		Str("prev_status", string(prev)).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Entrant left waitlist")
}

// Invited logs one line per draw; replacement draws carry the entrant whose
// decline triggered them.
func (l *Logger) Invited(ctx context.Context, rec domain.DrawRecord) {
	ev := l.log.Info().
		Str("action", "invited").
		Str("event_id", rec.EventID.String()).
		Str("draw_id", rec.ID.String()).
		Str("kind", string(rec.Kind)).
		Int64("seed", rec.Seed).
		Int("requested", rec.Requested).
		Int("pool", len(rec.Candidates)).
		Strs("selected", rec.Selected).
		Str("trace_id", appCtx.GetRequestID(ctx))
	if rec.TriggeredBy != nil {
		ev = ev.Str("triggered_by", rec.TriggeredBy.String())
	}
	ev.Msg("Lottery draw completed")
}

func (l *Logger) Responded(ctx context.Context, eventID, entrantID uuid.UUID, to domain.Status) {
	l.log.Info().
		Str("action", "responded").
		Str("event_id", eventID.String()).
		Str("entrant_id", entrantID.String()).
		Str("status", string(to)).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Entrant responded to invitation")
}

func (l *Logger) Revoked(ctx context.Context, eventID, entrantID, actorID uuid.UUID) {
	l.log.Warn().
		Str("action", "revoked").
		Str("event_id", eventID.String()).
		Str("entrant_id", entrantID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Invitation revoked by organizer")
}

func (l *Logger) Removed(ctx context.Context, eventID, entrantID, actorID uuid.UUID) {
	l.log.Warn().
		Str("action", "removed").
		Str("event_id", eventID.String()).
		Str("entrant_id", entrantID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Entrant removed from waitlist by organizer")
}

func (l *Logger) EventConfigured(ctx context.Context, ev domain.Event, actorID uuid.UUID) {
	l.log.Info().
		Str("action", "event_configured").
		Str("event_id", ev.ID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Event waitlist configured")
}

func (l *Logger) EventDeleted(ctx context.Context, eventID, actorID uuid.UUID) {
	l.log.Warn().
		Str("action", "event_deleted").
		Str("event_id", eventID.String()).
		Str("actor_user_id", actorID.String()).
		Str("trace_id", appCtx.GetRequestID(ctx)).
		Msg("Event and waitlist deleted")
}
