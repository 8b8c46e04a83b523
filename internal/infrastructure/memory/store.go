// Package memory is an in-process WaitlistStore. It serializes transactions
// per event and applies their writes only on commit, so a failed callback
// leaves nothing behind. It backs STORE_BACKEND=memory and the service tests.
package memory

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
)

var errCounterUnderflow = errors.New("counter would become negative")

type eventState struct {
	mu      sync.Mutex
	deleted bool
	event   domain.Event
	entries map[uuid.UUID]domain.WaitlistEntry
	draws   []domain.DrawRecord
}

type Store struct {
	mu        sync.Mutex
	events    map[uuid.UUID]*eventState
	outbox    []domain.OutboxMessage
	processed map[string]time.Time

	// Fault, when set, is consulted before every store operation; a non-nil
	// return is reported as a store failure. Ops are "begin", "get", "list",
	// "insert", "transition", "remove", "adjust", "draw", "enqueue", "commit".
	Fault func(op string) error

	// OutboxLimit caps the buffered outbox; the oldest messages are dropped
	// first. Zero keeps everything.
	OutboxLimit int

	now func() time.Time
}

func New() *Store {
	return &Store{
		events:    make(map[uuid.UUID]*eventState),
		processed: make(map[string]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) fault(op string) error {
	if s.Fault == nil {
		return nil
	}
	if err := s.Fault(op); err != nil {
		return &domain.StoreError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) state(eventID uuid.UUID) *eventState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[eventID]
}

func (s *Store) WithinEvent(ctx context.Context, eventID uuid.UUID, fn func(tx domain.EventTx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("begin", err)
	}
	if err := s.fault("begin"); err != nil {
		return err
	}

	st := s.state(eventID)
	if st == nil {
		return domain.ErrEventNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.deleted {
		return domain.ErrEventNotFound
	}

	tx := &eventTx{
		store:   s,
		event:   st.event,
		entries: make(map[uuid.UUID]domain.WaitlistEntry, len(st.entries)),
	}
	for k, v := range st.entries {
		tx.entries[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := s.fault("commit"); err != nil {
		return err
	}

	st.event = tx.event
	st.entries = tx.entries
	st.draws = append(st.draws, tx.draws...)

	s.mu.Lock()
	s.outbox = append(s.outbox, tx.outbox...)
	if s.OutboxLimit > 0 && len(s.outbox) > s.OutboxLimit {
		s.outbox = append([]domain.OutboxMessage(nil), s.outbox[len(s.outbox)-s.OutboxLimit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) UpsertEvent(ctx context.Context, cfg domain.EventConfig) (domain.Event, error) {
	if err := s.fault("upsert_event"); err != nil {
		return domain.Event{}, err
	}
	now := s.now()

	s.mu.Lock()
	st, ok := s.events[cfg.ID]
	if !ok {
		st = &eventState{
			entries: make(map[uuid.UUID]domain.WaitlistEntry),
			event:   domain.Event{ID: cfg.ID, OrganizerID: cfg.OrganizerID, CreatedAt: now},
		}
		s.events[cfg.ID] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	ev := st.event
	ev.Capacity = cfg.Capacity
	ev.WaitlistLimited = cfg.WaitlistLimited
	ev.WaitlistLimit = cfg.WaitlistLimit
	ev.RegistrationOpensAt = cfg.RegistrationOpensAt
	ev.RegistrationClosesAt = cfg.RegistrationClosesAt
	ev.LotteryDrawAt = cfg.LotteryDrawAt
	ev.RequireLocation = cfg.RequireLocation
	ev.UpdatedAt = now
	st.event = ev
	return ev, nil
}

func (s *Store) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	if err := s.fault("delete_event"); err != nil {
		return err
	}
	s.mu.Lock()
	st, ok := s.events[eventID]
	delete(s.events, eventID)
	s.mu.Unlock()
	if !ok {
		return domain.ErrEventNotFound
	}

	st.mu.Lock()
	st.deleted = true
	st.mu.Unlock()
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	if err := s.fault("get_event"); err != nil {
		return domain.Event{}, err
	}
	st := s.state(eventID)
	if st == nil {
		return domain.Event{}, domain.ErrEventNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.event, nil
}

// Outbox returns a copy of every committed outbox message, oldest first.
func (s *Store) Outbox() []domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.OutboxMessage, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// Seen reports whether a consumer already handled messageID.
func (s *Store) Seen(ctx context.Context, messageID, handlerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[handlerName+"/"+messageID]
	return ok, nil
}

func (s *Store) MarkProcessed(ctx context.Context, messageID, handlerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[handlerName+"/"+messageID] = s.now()
	return nil
}

// eventTx buffers one transaction's writes over a private copy of the event.
type eventTx struct {
	store   *Store
	event   domain.Event
	entries map[uuid.UUID]domain.WaitlistEntry
	draws   []domain.DrawRecord
	outbox  []domain.OutboxMessage
}

func (t *eventTx) Event() domain.Event { return t.event }

func (t *eventTx) Get(ctx context.Context, entrantID uuid.UUID) (*domain.WaitlistEntry, error) {
	if err := t.store.fault("get"); err != nil {
		return nil, err
	}
	e, ok := t.entries[entrantID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (t *eventTx) ListByStatus(ctx context.Context, status domain.Status) ([]domain.WaitlistEntry, error) {
	if err := t.store.fault("list"); err != nil {
		return nil, err
	}
	out := make([]domain.WaitlistEntry, 0)
	for _, e := range t.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sortAsc(out)
	return out, nil
}

func (t *eventTx) Insert(ctx context.Context, entry domain.WaitlistEntry) error {
	if err := t.store.fault("insert"); err != nil {
		return err
	}
	if _, ok := t.entries[entry.EntrantID]; ok {
		return domain.ErrAlreadyOnWaitlist
	}
	entry.EventID = t.event.ID
	t.entries[entry.EntrantID] = entry
	return nil
}

func (t *eventTx) Transition(ctx context.Context, entrantID uuid.UUID, from, to domain.Status, at time.Time) error {
	if err := t.store.fault("transition"); err != nil {
		return err
	}
	if err := domain.CheckTransition(from, to); err != nil {
		return err
	}
	e, ok := t.entries[entrantID]
	if !ok {
		return domain.ErrNotOnWaitlist
	}
	if e.Status != from {
		return &domain.TransitionError{From: e.Status, To: to}
	}

	e.Status = to
	ts := at
	switch to {
	case domain.StatusInvited:
		e.InvitedAt = &ts
	case domain.StatusAccepted:
		e.AcceptedAt = &ts
	case domain.StatusDeclined:
		e.DeclinedAt = &ts
	}
	t.entries[entrantID] = e
	return nil
}

func (t *eventTx) Remove(ctx context.Context, entrantID uuid.UUID, from domain.Status) error {
	if err := t.store.fault("remove"); err != nil {
		return err
	}
	e, ok := t.entries[entrantID]
	if !ok {
		return domain.ErrNotOnWaitlist
	}
	if e.Status != from {
		return &domain.TransitionError{From: e.Status, To: domain.StatusCancelled}
	}
	delete(t.entries, entrantID)
	return nil
}

func (t *eventTx) AdjustCounters(ctx context.Context, deltaWaiting, deltaAttendee int) error {
	if err := t.store.fault("adjust"); err != nil {
		return err
	}
	w := t.event.WaitingCount + deltaWaiting
	a := t.event.AttendeeCount + deltaAttendee
	if w < 0 || a < 0 {
		return &domain.StoreError{Op: "adjust", Err: errCounterUnderflow}
	}
	t.event.WaitingCount = w
	t.event.AttendeeCount = a
	t.event.UpdatedAt = t.store.now()
	return nil
}

func (t *eventTx) RecordDraw(ctx context.Context, rec domain.DrawRecord) error {
	if err := t.store.fault("draw"); err != nil {
		return err
	}
	t.draws = append(t.draws, rec)
	return nil
}

func (t *eventTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	if err := t.store.fault("enqueue"); err != nil {
		return err
	}
	t.outbox = append(t.outbox, msg)
	return nil
}

func sortAsc(entries []domain.WaitlistEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
}

func entryLess(a, b domain.WaitlistEntry) bool {
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
