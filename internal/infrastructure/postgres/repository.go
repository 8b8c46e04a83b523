package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const producer = "waitlist-service"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// -------------------------
// Deadlock policy:
// Always lock in this order (for the same event_id):
//   1) events row (FOR UPDATE)
//   2) waitlist_entries rows for that event (FOR UPDATE)
// Every writer goes through WithinEvent, so writers on one event serialize
// on the events row and never hold entry locks of another event.
// -------------------------

const eventColumns = `
	id, organizer_id, capacity, waitlist_limited, waitlist_limit,
	registration_opens_at, registration_closes_at, lottery_draw_at,
	require_location, waiting_count, attendee_count, created_at, updated_at`

const entryColumns = `
	id, event_id, entrant_id, status, joined_at,
	invited_at, accepted_at, declined_at, latitude, longitude`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var ev domain.Event
	err := row.Scan(
		&ev.ID, &ev.OrganizerID, &ev.Capacity, &ev.WaitlistLimited, &ev.WaitlistLimit,
		&ev.RegistrationOpensAt, &ev.RegistrationClosesAt, &ev.LotteryDrawAt,
		&ev.RequireLocation, &ev.WaitingCount, &ev.AttendeeCount, &ev.CreatedAt, &ev.UpdatedAt,
	)
	return ev, err
}

func scanEntry(row pgx.Row) (domain.WaitlistEntry, error) {
	var (
		e        domain.WaitlistEntry
		status   string
		lat, lng *float64
	)
	err := row.Scan(
		&e.ID, &e.EventID, &e.EntrantID, &status, &e.JoinedAt,
		&e.InvitedAt, &e.AcceptedAt, &e.DeclinedAt, &lat, &lng,
	)
	if err != nil {
		return domain.WaitlistEntry{}, err
	}
	e.Status = domain.Status(status)
	if lat != nil && lng != nil {
		e.Location = &domain.Location{Latitude: *lat, Longitude: *lng}
	}
	return e, nil
}

// WithinEvent runs fn in a transaction holding the event row lock. Domain
// errors from fn pass through; anything else is reported as a store failure.
// The transaction is rolled back unless fn succeeds and commit succeeds.
func (r *Repository) WithinEvent(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Unavailable("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ev, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return domain.Unavailable("lock_event", err)
	}

	if err := fn(&eventTx{tx: tx, ev: ev}); err != nil {
		return domain.Unavailable("tx", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable("commit", err)
	}
	return nil
}

// UpsertEvent writes the organizer-controlled columns. Counters and the
// organizer of an existing row are left alone.
func (r *Repository) UpsertEvent(ctx context.Context, cfg domain.EventConfig) (domain.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `
		INSERT INTO events (
			id, organizer_id, capacity, waitlist_limited, waitlist_limit,
			registration_opens_at, registration_closes_at, lottery_draw_at,
			require_location, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			capacity = EXCLUDED.capacity,
			waitlist_limited = EXCLUDED.waitlist_limited,
			waitlist_limit = EXCLUDED.waitlist_limit,
			registration_opens_at = EXCLUDED.registration_opens_at,
			registration_closes_at = EXCLUDED.registration_closes_at,
			lottery_draw_at = EXCLUDED.lottery_draw_at,
			require_location = EXCLUDED.require_location,
			updated_at = NOW()
		RETURNING `+eventColumns,
		cfg.ID, cfg.OrganizerID, cfg.Capacity, cfg.WaitlistLimited, cfg.WaitlistLimit,
		cfg.RegistrationOpensAt, cfg.RegistrationClosesAt, cfg.LotteryDrawAt, cfg.RequireLocation,
	))
	if err != nil {
		return domain.Event{}, domain.Unavailable("upsert_event", err)
	}
	return ev, nil
}

// DeleteEvent removes the event; entries and draws go with it via FK cascade.
func (r *Repository) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)
	if err != nil {
		return domain.Unavailable("delete_event", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *Repository) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.Event{}, domain.Unavailable("get_event", err)
	}
	return ev, nil
}

// eventTx is the EventTx for one locked event row.
type eventTx struct {
	tx pgx.Tx
	ev domain.Event
}

func (t *eventTx) Event() domain.Event { return t.ev }

func (t *eventTx) Get(ctx context.Context, entrantID uuid.UUID) (*domain.WaitlistEntry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE event_id = $1 AND entrant_id = $2
		FOR UPDATE
	`, t.ev.ID, entrantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Unavailable("get_entry", err)
	}
	return &e, nil
}

func (t *eventTx) ListByStatus(ctx context.Context, status domain.Status) ([]domain.WaitlistEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE event_id = $1 AND status = $2
		ORDER BY joined_at ASC, id ASC
		FOR UPDATE
	`, t.ev.ID, string(status))
	if err != nil {
		return nil, domain.Unavailable("list_by_status", err)
	}
	defer rows.Close()

	var out []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, domain.Unavailable("list_by_status", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list_by_status", err)
	}
	return out, nil
}

func (t *eventTx) Insert(ctx context.Context, entry domain.WaitlistEntry) error {
	var lat, lng *float64
	if entry.Location != nil {
		lat, lng = &entry.Location.Latitude, &entry.Location.Longitude
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO waitlist_entries (id, event_id, entrant_id, status, joined_at, latitude, longitude, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (event_id, entrant_id) DO NOTHING
	`, entry.ID, t.ev.ID, entry.EntrantID, string(entry.Status), entry.JoinedAt, lat, lng)
	if err != nil {
		return domain.Unavailable("insert_entry", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyOnWaitlist
	}
	return nil
}

func (t *eventTx) Transition(ctx context.Context, entrantID uuid.UUID, from, to domain.Status, at time.Time) error {
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $4,
		    invited_at  = CASE WHEN $4 = 'invited'  THEN $5 ELSE invited_at END,
		    accepted_at = CASE WHEN $4 = 'accepted' THEN $5 ELSE accepted_at END,
		    declined_at = CASE WHEN $4 = 'declined' THEN $5 ELSE declined_at END,
		    updated_at = NOW()
		WHERE event_id = $1 AND entrant_id = $2 AND status = $3
	`, t.ev.ID, entrantID, string(from), string(to), at)
	if err != nil {
		return domain.Unavailable("transition", err)
	}
	if tag.RowsAffected() == 0 {
		return t.explainMiss(ctx, entrantID, to)
	}
	return nil
}

func (t *eventTx) Remove(ctx context.Context, entrantID uuid.UUID, from domain.Status) error {
	tag, err := t.tx.Exec(ctx, `
		DELETE FROM waitlist_entries
		WHERE event_id = $1 AND entrant_id = $2 AND status = $3
	`, t.ev.ID, entrantID, string(from))
	if err != nil {
		return domain.Unavailable("remove_entry", err)
	}
	if tag.RowsAffected() == 0 {
		return t.explainMiss(ctx, entrantID, domain.StatusCancelled)
	}
	return nil
}

// explainMiss turns a zero-row update into NotOnWaitlist or a transition
// error naming the status actually stored.
func (t *eventTx) explainMiss(ctx context.Context, entrantID uuid.UUID, to domain.Status) error {
	var current string
	err := t.tx.QueryRow(ctx, `
		SELECT status FROM waitlist_entries WHERE event_id = $1 AND entrant_id = $2
	`, t.ev.ID, entrantID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotOnWaitlist
	}
	if err != nil {
		return domain.Unavailable("explain_miss", err)
	}
	return &domain.TransitionError{From: domain.Status(current), To: to}
}

func (t *eventTx) AdjustCounters(ctx context.Context, deltaWaiting, deltaAttendee int) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE events
		SET waiting_count = waiting_count + $2,
		    attendee_count = attendee_count + $3,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING waiting_count, attendee_count, updated_at
	`, t.ev.ID, deltaWaiting, deltaAttendee).Scan(&t.ev.WaitingCount, &t.ev.AttendeeCount, &t.ev.UpdatedAt)
	if err != nil {
		return domain.Unavailable("adjust_counters", err)
	}
	return nil
}

func (t *eventTx) RecordDraw(ctx context.Context, rec domain.DrawRecord) error {
	candidates := rec.Candidates
	if candidates == nil {
		candidates = []string{}
	}
	selected := rec.Selected
	if selected == nil {
		selected = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO lottery_draws (id, event_id, kind, seed, requested, candidates, selected, triggered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, t.ev.ID, string(rec.Kind), rec.Seed, rec.Requested, candidates, selected, rec.TriggeredBy, rec.CreatedAt)
	return domain.Unavailable("record_draw", err)
}

// Enqueue writes an outbox row wrapped in the shared domain event envelope.
func (t *eventTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	messageID := uuid.New()
	body, err := json.Marshal(event.DomainEventEnvelope[any]{
		Version:    1,
		Producer:   producer,
		TraceID:    msg.TraceID,
		MessageID:  messageID.String(),
		OccurredAt: time.Now().UTC(),
		Payload:    msg.Payload,
	})
	if err != nil {
		return domain.Unavailable("encode_outbox", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		VALUES ($1, $2, $3, $4, NOW(), 'pending')
	`, messageID, msg.TraceID, msg.RoutingKey, body)
	return domain.Unavailable("enqueue", err)
}
