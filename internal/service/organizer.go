package service

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/draw"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/google/uuid"
)

// requireOrganizerOrAdmin loads the event and checks that the caller owns it
// or holds an admin/moderator role.
func (s *LotteryService) requireOrganizerOrAdmin(ctx context.Context, sess Session, eventID uuid.UUID) (domain.Event, error) {
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if sess.Privileged() || ev.OrganizerID == sess.UserID {
		return ev, nil
	}
	return domain.Event{}, domain.ErrForbidden
}

// ConfigureEvent creates or updates the waitlist configuration of an event.
// A new event is owned by the caller; an existing one may only be changed by
// its organizer or a privileged user. Counters are never touched here.
func (s *LotteryService) ConfigureEvent(ctx context.Context, sess Session, cfg domain.EventConfig) (ev domain.Event, err error) {
	defer s.observe("configure_event", time.Now(), &err)

	if cfg.ID == uuid.Nil {
		return domain.Event{}, domain.InvalidArgument("event id is required")
	}

	existing, err := s.store.GetEvent(ctx, cfg.ID)
	switch {
	case err == nil:
		if !sess.Privileged() && existing.OrganizerID != sess.UserID {
			return domain.Event{}, domain.ErrForbidden
		}
		cfg.OrganizerID = existing.OrganizerID
	case errors.Is(err, domain.ErrEventNotFound):
		if cfg.OrganizerID == uuid.Nil || !sess.Privileged() {
			cfg.OrganizerID = sess.UserID
		}
	default:
		return domain.Event{}, err
	}

	ev, err = s.SyncEvent(ctx, cfg)
	if err != nil {
		return domain.Event{}, err
	}
	s.audit.EventConfigured(ctx, ev, sess.UserID)
	return ev, nil
}

// SyncEvent stores cfg without an ACL check. It is used for snapshots coming
// from the event service and by ConfigureEvent after authorization.
func (s *LotteryService) SyncEvent(ctx context.Context, cfg domain.EventConfig) (domain.Event, error) {
	if err := ValidateEventConfig(cfg); err != nil {
		return domain.Event{}, err
	}
	ev, err := s.store.UpsertEvent(ctx, cfg)
	if err != nil {
		return domain.Event{}, err
	}
	s.refreshCache(ctx, ev)
	return ev, nil
}

// SyncSnapshot applies an event-service snapshot through SyncEvent, except
// that a registration window which has already closed stays closed: a late
// event.updated must not undo an event.canceled.
func (s *LotteryService) SyncSnapshot(ctx context.Context, cfg domain.EventConfig) (domain.Event, error) {
	ev, err := s.store.GetEvent(ctx, cfg.ID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
	case err != nil:
		return domain.Event{}, err
	default:
		closed := ev.RegistrationClosesAt
		if closed != nil && !closed.After(s.now()) &&
			(cfg.RegistrationClosesAt == nil || cfg.RegistrationClosesAt.After(*closed)) {
			at := *closed
			cfg.RegistrationClosesAt = &at
			if cfg.RegistrationOpensAt != nil && cfg.RegistrationOpensAt.After(at) {
				cfg.RegistrationOpensAt = &at
			}
		}
	}
	return s.SyncEvent(ctx, cfg)
}

// CloseRegistration moves the close timestamp to at unless the window
// already closes earlier. Unknown events are ignored.
func (s *LotteryService) CloseRegistration(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	ev, err := s.store.GetEvent(ctx, eventID)
	if errors.Is(err, domain.ErrEventNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ev.RegistrationClosesAt != nil && !ev.RegistrationClosesAt.After(at) {
		return nil
	}

	cfg := configOf(ev)
	cfg.RegistrationClosesAt = &at
	if cfg.RegistrationOpensAt != nil && cfg.RegistrationOpensAt.After(at) {
		cfg.RegistrationOpensAt = &at
	}
	_, err = s.SyncEvent(ctx, cfg)
	return err
}

// DeleteEvent removes the event together with its entries and draws.
func (s *LotteryService) DeleteEvent(ctx context.Context, sess Session, eventID uuid.UUID) (err error) {
	defer s.observe("delete_event", time.Now(), &err)

	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return err
	}
	if err := s.PurgeEvent(ctx, eventID); err != nil {
		return err
	}
	s.audit.EventDeleted(ctx, eventID, sess.UserID)
	return nil
}

// PurgeEvent deletes an event without an ACL check.
func (s *LotteryService) PurgeEvent(ctx context.Context, eventID uuid.UUID) error {
	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.DeleteEvent(ctx, eventID); err != nil {
			logger.WithCtx(ctx).Warn().Err(err).Str("event_id", eventID.String()).Msg("event cache invalidation failed")
		}
	}
	return nil
}

// DrawAs runs the initial draw on behalf of the event organizer.
func (s *LotteryService) DrawAs(ctx context.Context, sess Session, eventID uuid.UUID) (domain.DrawRecord, error) {
	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return domain.DrawRecord{}, err
	}
	return s.RunInitialDraw(ctx, eventID)
}

// RevokeInvitation declines an outstanding invitation on the entrant's behalf
// and promotes a replacement, like an entrant decline.
func (s *LotteryService) RevokeInvitation(ctx context.Context, sess Session, eventID, entrantID uuid.UUID) (res RespondResult, err error) {
	defer s.observe("revoke", time.Now(), &err)

	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return RespondResult{}, err
	}

	var rec *domain.DrawRecord
	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		entry, err := tx.Get(ctx, entrantID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotOnWaitlist
		}
		if entry.Status != domain.StatusInvited {
			return &domain.TransitionError{From: entry.Status, To: domain.StatusDeclined}
		}
		rec, err = s.decline(ctx, tx, *entry, "organizer")
		return err
	})
	if err != nil {
		return RespondResult{}, err
	}

	s.audit.Revoked(ctx, eventID, entrantID, sess.UserID)
	metrics.RecordTransition(string(domain.StatusInvited), string(domain.StatusDeclined))
	return RespondResult{
		Status:      domain.StatusDeclined,
		Replacement: s.afterReplacement(ctx, rec),
	}, nil
}

// RemoveEntrant cancels a waiting entry. The row is kept as cancelled, which
// blocks the entrant from joining the same event again.
func (s *LotteryService) RemoveEntrant(ctx context.Context, sess Session, eventID, entrantID uuid.UUID) (err error) {
	defer s.observe("remove", time.Now(), &err)

	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return err
	}

	err = s.store.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		entry, err := tx.Get(ctx, entrantID)
		if err != nil {
			return err
		}
		if entry == nil {
			return domain.ErrNotOnWaitlist
		}
		if entry.Status != domain.StatusWaiting {
			return &domain.TransitionError{From: entry.Status, To: domain.StatusCancelled}
		}
		if err := tx.Transition(ctx, entrantID, domain.StatusWaiting, domain.StatusCancelled, s.now()); err != nil {
			return err
		}
		dw, da := domain.CounterDelta(domain.StatusWaiting, domain.StatusCancelled)
		if err := tx.AdjustCounters(ctx, dw, da); err != nil {
			return err
		}
		return tx.Enqueue(ctx, outboxMsg(ctx, RKRemoved, map[string]any{
			"event_id":      eventID,
			"entrant_id":    entrantID,
			"actor_user_id": sess.UserID,
		}))
	})
	if err != nil {
		return err
	}

	s.audit.Removed(ctx, eventID, entrantID, sess.UserID)
	metrics.RecordTransition(string(domain.StatusWaiting), string(domain.StatusCancelled))
	return nil
}

// ListEntries pages through an event's entries in join order.
func (s *LotteryService) ListEntries(ctx context.Context, sess Session, eventID uuid.UUID, status domain.Status, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	if status != "" && !status.Valid() {
		return nil, nil, domain.InvalidArgument("unknown status " + string(status))
	}
	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return nil, nil, err
	}
	return s.store.ListEntries(ctx, eventID, status, limit, cursor)
}

func (s *LotteryService) GetStats(ctx context.Context, sess Session, eventID uuid.UUID) (domain.EventStats, error) {
	ev, err := s.requireOrganizerOrAdmin(ctx, sess, eventID)
	if err != nil {
		return domain.EventStats{}, err
	}
	counts, err := s.store.CountByStatus(ctx, eventID)
	if err != nil {
		return domain.EventStats{}, err
	}
	return domain.EventStats{
		EventID:       ev.ID,
		Capacity:      ev.Capacity,
		WaitingCount:  ev.WaitingCount,
		AttendeeCount: ev.AttendeeCount,
		ByStatus:      counts,
		UpdatedAt:     ev.UpdatedAt,
	}, nil
}

func (s *LotteryService) ListDraws(ctx context.Context, sess Session, eventID uuid.UUID) ([]domain.DrawRecord, error) {
	if _, err := s.requireOrganizerOrAdmin(ctx, sess, eventID); err != nil {
		return nil, err
	}
	return s.store.ListDraws(ctx, eventID)
}

// VerifyDraw replays a recorded draw from its seed and candidate pool.
func (s *LotteryService) VerifyDraw(ctx context.Context, sess Session, eventID, drawID uuid.UUID) (domain.DrawRecord, bool, error) {
	draws, err := s.ListDraws(ctx, sess, eventID)
	if err != nil {
		return domain.DrawRecord{}, false, err
	}
	for _, rec := range draws {
		if rec.ID != drawID {
			continue
		}
		ok, err := draw.Verify(rec)
		if err != nil {
			return rec, false, err
		}
		return rec, ok, nil
	}
	return domain.DrawRecord{}, false, domain.InvalidArgument("draw not found")
}

// GetEntry returns the caller's own entry for an event.
func (s *LotteryService) GetEntry(ctx context.Context, eventID, entrantID uuid.UUID) (domain.WaitlistEntry, error) {
	return s.store.GetEntry(ctx, eventID, entrantID)
}

func (s *LotteryService) ListEntrantHistory(ctx context.Context, entrantID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	return s.store.ListEntrantHistory(ctx, entrantID, limit, cursor)
}

// ValidateEventConfig rejects configurations the admission rules cannot
// interpret.
func ValidateEventConfig(cfg domain.EventConfig) error {
	if cfg.ID == uuid.Nil {
		return domain.InvalidArgument("event id is required")
	}
	if cfg.OrganizerID == uuid.Nil {
		return domain.InvalidArgument("organizer id is required")
	}
	if cfg.Capacity != nil && *cfg.Capacity < 0 {
		return domain.InvalidArgument("capacity must not be negative")
	}
	if cfg.WaitlistLimited {
		if cfg.WaitlistLimit == nil {
			return domain.InvalidArgument("waitlist limit is required when the waitlist is limited")
		}
		if *cfg.WaitlistLimit < 0 {
			return domain.InvalidArgument("waitlist limit must not be negative")
		}
	}
	if cfg.RegistrationOpensAt != nil && cfg.RegistrationClosesAt != nil &&
		cfg.RegistrationClosesAt.Before(*cfg.RegistrationOpensAt) {
		return domain.InvalidArgument("registration closes before it opens")
	}
	return nil
}

func (s *LotteryService) refreshCache(ctx context.Context, ev domain.Event) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetEvent(ctx, ev); err != nil {
		logger.WithCtx(ctx).Warn().Err(err).Str("event_id", ev.ID.String()).Msg("event cache refresh failed")
	}
}

func configOf(ev domain.Event) domain.EventConfig {
	return domain.EventConfig{
		ID:                   ev.ID,
		OrganizerID:          ev.OrganizerID,
		Capacity:             ev.Capacity,
		WaitlistLimited:      ev.WaitlistLimited,
		WaitlistLimit:        ev.WaitlistLimit,
		RegistrationOpensAt:  ev.RegistrationOpensAt,
		RegistrationClosesAt: ev.RegistrationClosesAt,
		LotteryDrawAt:        ev.LotteryDrawAt,
		RequireLocation:      ev.RequireLocation,
	}
}
