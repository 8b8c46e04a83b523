package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/audit"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/draw"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/metrics"
	appCtx "github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/context"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/google/uuid"
)

// Outbox routing keys
const (
	RKJoined   = "waitlist.joined"
	RKLeft     = "waitlist.left"
	RKInvited  = "waitlist.invited"
	RKAccepted = "waitlist.accepted"
	RKDeclined = "waitlist.declined"
	RKRemoved  = "waitlist.removed"
	RKDrawn    = "lottery.drawn"
)

// Session is the caller identity for one request. It is built by the
// transport layer from a verified token and passed explicitly; nothing about
// the caller lives in package state.
type Session struct {
	UserID uuid.UUID
	Role   string
}

func (s Session) Privileged() bool {
	r := strings.ToLower(strings.TrimSpace(s.Role))
	return r == "admin" || r == "moderator"
}

type Option func(*LotteryService)

func WithClock(now func() time.Time) Option {
	return func(s *LotteryService) { s.now = now }
}

// WithSeedSource replaces crypto/rand seeds, e.g. with a fixed sequence in tests.
func WithSeedSource(seed func() (int64, error)) Option {
	return func(s *LotteryService) { s.seed = seed }
}

func WithAudit(a *audit.Logger) Option {
	return func(s *LotteryService) { s.audit = a }
}

func WithCache(c domain.EventCache) Option {
	return func(s *LotteryService) { s.cache = c }
}

// LotteryService is the waitlist controller. Each mutating call runs as one
// store transaction scoped to a single event.
type LotteryService struct {
	store domain.WaitlistStore
	cache domain.EventCache
	audit *audit.Logger
	now   func() time.Time
	seed  func() (int64, error)
}

func NewLotteryService(store domain.WaitlistStore, opts ...Option) *LotteryService {
	s := &LotteryService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		seed:  draw.NewSeed,
	}
	for _, o := range opts {
		o(s)
	}
	if s.audit == nil {
		s.audit = audit.New(logger.Logger)
	}
	return s
}

// RespondResult describes the outcome of an invitation response. Replacement
// is set when a decline promoted another entrant.
type RespondResult struct {
	Status      domain.Status
	Replacement *uuid.UUID
}

// Join puts entrantID on the event's waitlist as waiting.
func (s *LotteryService) Join(ctx context.Context, eventID, entrantID uuid.UUID, loc *domain.Location) (entry domain.WaitlistEntry, err error) {
	defer s.observe("join", time.Now(), &err)

	now := s.now()

	// cache fast-fail: only the registration window, counts may be stale.
	// An existing entry still wins over a closed window.
	if s.cache != nil {
		if ev, cerr := s.cache.GetEvent(ctx, eventID); cerr == nil {
			if !domain.RegistrationWindowActive(ev.RegistrationOpensAt, ev.RegistrationClosesAt, now) {
				_, gerr := s.store.GetEntry(ctx, eventID, entrantID)
				switch {
				case gerr == nil:
					return domain.WaitlistEntry{}, domain.ErrAlreadyOnWaitlist
				case errors.Is(gerr, domain.ErrNotOnWaitlist):
					return domain.WaitlistEntry{}, domain.ErrRegistrationClosed
				}
				// lookup failed: let the transaction decide
			}
		} else if !errors.Is(cerr, domain.ErrCacheMiss) {
			logger.WithCtx(ctx).Debug().Err(cerr).Msg("event cache read failed")
		}
	}

	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		existing, err := tx.Get(ctx, entrantID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyOnWaitlist
		}

		ev := tx.Event()
		if err := domain.CheckAdmission(ev, now); err != nil {
			return err
		}
		if ev.RequireLocation && loc == nil {
			return domain.InvalidArgument("this event requires a join location")
		}

		entry = domain.WaitlistEntry{
			ID:        uuid.New(),
			EventID:   eventID,
			EntrantID: entrantID,
			Status:    domain.StatusWaiting,
			JoinedAt:  now,
			Location:  loc,
		}
		if err := tx.Insert(ctx, entry); err != nil {
			return err
		}
		if err := tx.AdjustCounters(ctx, 1, 0); err != nil {
			return err
		}
		return tx.Enqueue(ctx, outboxMsg(ctx, RKJoined, map[string]any{
			"event_id":   eventID,
			"entrant_id": entrantID,
			"status":     domain.StatusWaiting,
		}))
	})
	if err != nil {
		return domain.WaitlistEntry{}, err
	}

	s.audit.Joined(ctx, eventID, entrantID)
	return entry, nil
}

// LeaveWaitlist removes a waiting entry. An invited entrant who leaves is
// recorded as having accepted the invitation.
func (s *LotteryService) LeaveWaitlist(ctx context.Context, eventID, entrantID uuid.UUID) (status domain.Status, err error) {
	defer s.observe("leave", time.Now(), &err)

	var prev domain.Status
	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		entry, err := tx.Get(ctx, entrantID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotOnWaitlist
		}
		prev = entry.Status

		switch entry.Status {
		case domain.StatusWaiting:
			if err := domain.CheckTransition(domain.StatusWaiting, domain.StatusCancelled); err != nil {
				return err
			}
			if err := tx.Remove(ctx, entrantID, domain.StatusWaiting); err != nil {
				return err
			}
			dw, da := domain.CounterDelta(domain.StatusWaiting, domain.StatusCancelled)
			if err := tx.AdjustCounters(ctx, dw, da); err != nil {
				return err
			}
			status = domain.StatusCancelled
			return tx.Enqueue(ctx, outboxMsg(ctx, RKLeft, map[string]any{
				"event_id":    eventID,
				"entrant_id":  entrantID,
				"prev_status": domain.StatusWaiting,
			}))
		case domain.StatusInvited:
			status = domain.StatusAccepted
			return s.accept(ctx, tx, *entry)
		default:
			return &domain.TransitionError{From: entry.Status, To: domain.StatusCancelled}
		}
	})
	if err != nil {
		return "", err
	}

	if prev == domain.StatusInvited {
		s.audit.Responded(ctx, eventID, entrantID, domain.StatusAccepted)
	} else {
		s.audit.Left(ctx, eventID, entrantID, prev)
	}
	metrics.RecordTransition(string(prev), string(status))
	return status, nil
}

// RespondToInvitation accepts or declines an invitation. A decline promotes
// exactly one waiting entrant, chosen by a replacement draw, in the same
// transaction.
func (s *LotteryService) RespondToInvitation(ctx context.Context, eventID, entrantID uuid.UUID, accept bool) (res RespondResult, err error) {
	defer s.observe("respond", time.Now(), &err)

	var rec *domain.DrawRecord
	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		entry, err := tx.Get(ctx, entrantID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotOnWaitlist
		}

		if accept {
			if entry.Status != domain.StatusInvited {
				return &domain.TransitionError{From: entry.Status, To: domain.StatusAccepted}
			}
			res.Status = domain.StatusAccepted
			return s.accept(ctx, tx, *entry)
		}

		if entry.Status != domain.StatusInvited {
			return &domain.TransitionError{From: entry.Status, To: domain.StatusDeclined}
		}
		res.Status = domain.StatusDeclined
		rec, err = s.decline(ctx, tx, *entry, "entrant")
		return err
	})
	if err != nil {
		return RespondResult{}, err
	}

	s.audit.Responded(ctx, eventID, entrantID, res.Status)
	metrics.RecordTransition(string(domain.StatusInvited), string(res.Status))
	res.Replacement = s.afterReplacement(ctx, rec)
	return res, nil
}

// RunInitialDraw invites up to capacity-attendeeCount waiting entrants.
func (s *LotteryService) RunInitialDraw(ctx context.Context, eventID uuid.UUID) (rec domain.DrawRecord, err error) {
	defer s.observe("draw", time.Now(), &err)

	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		n := domain.SeatsToDraw(tx.Event())
		if n == 0 {
			return domain.ErrNothingToDraw
		}

		pool, err := tx.ListByStatus(ctx, domain.StatusWaiting)
		if err != nil {
			return err
		}
		r, err := s.drawAndInvite(ctx, tx, domain.DrawInitial, n, candidateIDs(pool), nil)
		if err != nil {
			return err
		}
		rec = *r
		return nil
	})
	if err != nil {
		return domain.DrawRecord{}, err
	}

	s.audit.Invited(ctx, rec)
	metrics.RecordDraw(string(rec.Kind), len(rec.Selected))
	return rec, nil
}

func (s *LotteryService) accept(ctx context.Context, tx domain.EventTx, entry domain.WaitlistEntry) error {
	if err := tx.Transition(ctx, entry.EntrantID, domain.StatusInvited, domain.StatusAccepted, s.now()); err != nil {
		return err
	}
	dw, da := domain.CounterDelta(domain.StatusInvited, domain.StatusAccepted)
	if err := tx.AdjustCounters(ctx, dw, da); err != nil {
		return err
	}
	return tx.Enqueue(ctx, outboxMsg(ctx, RKAccepted, map[string]any{
		"event_id":   entry.EventID,
		"entrant_id": entry.EntrantID,
	}))
}

// decline marks entry declined and draws one replacement from the waiting
// pool. It returns the replacement draw, or nil when the pool was empty.
func (s *LotteryService) decline(ctx context.Context, tx domain.EventTx, entry domain.WaitlistEntry, by string) (*domain.DrawRecord, error) {
	if err := tx.Transition(ctx, entry.EntrantID, domain.StatusInvited, domain.StatusDeclined, s.now()); err != nil {
		return nil, err
	}
	if err := tx.Enqueue(ctx, outboxMsg(ctx, RKDeclined, map[string]any{
		"event_id":   entry.EventID,
		"entrant_id": entry.EntrantID,
		"by":         by,
	})); err != nil {
		return nil, err
	}

	pool, err := tx.ListByStatus(ctx, domain.StatusWaiting)
	if err != nil {
		return nil, err
	}
	candidates := make([]string, 0, len(pool))
	for _, e := range pool {
		if e.EntrantID != entry.EntrantID {
			candidates = append(candidates, e.EntrantID.String())
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	trigger := entry.EntrantID
	return s.drawAndInvite(ctx, tx, domain.DrawReplacement, 1, candidates, &trigger)
}

// drawAndInvite selects n of candidates, moves them waiting -> invited,
// adjusts the waiting counter once for the batch and records the draw.
func (s *LotteryService) drawAndInvite(ctx context.Context, tx domain.EventTx, kind domain.DrawKind, n int, candidates []string, trigger *uuid.UUID) (*domain.DrawRecord, error) {
	seed, err := s.seed()
	if err != nil {
		return nil, domain.Unavailable("seed", err)
	}
	pool := draw.Normalize(candidates)
	selected, err := draw.Select(pool, n, seed)
	if err != nil {
		return nil, err
	}

	ev := tx.Event()
	now := s.now()
	for _, id := range selected {
		entrantID, err := uuid.Parse(id)
		if err != nil {
			return nil, domain.InvalidArgument("candidate id is not a uuid: " + id)
		}
		if err := tx.Transition(ctx, entrantID, domain.StatusWaiting, domain.StatusInvited, now); err != nil {
			return nil, err
		}
		if err := tx.Enqueue(ctx, outboxMsg(ctx, RKInvited, map[string]any{
			"event_id":   ev.ID,
			"entrant_id": entrantID,
			"draw_kind":  kind,
		})); err != nil {
			return nil, err
		}
	}
	if len(selected) > 0 {
		dw, da := domain.CounterDelta(domain.StatusWaiting, domain.StatusInvited)
		if err := tx.AdjustCounters(ctx, dw*len(selected), da*len(selected)); err != nil {
			return nil, err
		}
	}

	rec := domain.DrawRecord{
		ID:          uuid.New(),
		EventID:     ev.ID,
		Kind:        kind,
		Seed:        seed,
		Requested:   n,
		Candidates:  pool,
		Selected:    selected,
		TriggeredBy: trigger,
		CreatedAt:   now,
	}
	if err := tx.RecordDraw(ctx, rec); err != nil {
		return nil, err
	}
	if err := tx.Enqueue(ctx, outboxMsg(ctx, RKDrawn, map[string]any{
		"event_id":  ev.ID,
		"draw_id":   rec.ID,
		"kind":      kind,
		"requested": n,
		"selected":  selected,
	})); err != nil {
		return nil, err
	}
	return &rec, nil
}

// afterReplacement logs a committed replacement draw and returns the promoted
// entrant, if any.
func (s *LotteryService) afterReplacement(ctx context.Context, rec *domain.DrawRecord) *uuid.UUID {
	if rec == nil || len(rec.Selected) == 0 {
		return nil
	}
	s.audit.Invited(ctx, *rec)
	metrics.RecordDraw(string(rec.Kind), len(rec.Selected))
	id, err := uuid.Parse(rec.Selected[0])
	if err != nil {
		return nil
	}
	return &id
}

func (s *LotteryService) observe(op string, start time.Time, errp *error) {
	metrics.RecordOperation(op, resultLabel(*errp), time.Since(start))
	if *errp != nil && errors.Is(*errp, domain.ErrStoreUnavailable) {
		logger.Logger.Warn().Err(*errp).Str("op", op).Msg("store unavailable")
	}
}

func candidateIDs(entries []domain.WaitlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.EntrantID.String())
	}
	return out
}

func outboxMsg(ctx context.Context, rk string, payload map[string]any) domain.OutboxMessage {
	return domain.OutboxMessage{
		RoutingKey: rk,
		TraceID:    appCtx.TraceID(ctx),
		Payload:    payload,
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, domain.ErrNotOnWaitlist):
		return "not_on_waitlist"
	case errors.Is(err, domain.ErrAlreadyOnWaitlist):
		return "already_on_waitlist"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, domain.ErrRegistrationClosed):
		return "registration_closed"
	case errors.Is(err, domain.ErrWaitlistFull):
		return "waitlist_full"
	case errors.Is(err, domain.ErrNothingToDraw):
		return "nothing_to_draw"
	case errors.Is(err, domain.ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
