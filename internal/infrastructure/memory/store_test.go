package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := s.UpsertEvent(context.Background(), domain.EventConfig{ID: id, OrganizerID: uuid.New()})
	require.NoError(t, err)
	return id
}

func waiting(eventID, entrantID uuid.UUID, at time.Time) domain.WaitlistEntry {
	return domain.WaitlistEntry{
		ID:        uuid.New(),
		EventID:   eventID,
		EntrantID: entrantID,
		Status:    domain.StatusWaiting,
		JoinedAt:  at,
	}
}

func TestWithinEvent_UnknownEvent(t *testing.T) {
	s := New()
	err := s.WithinEvent(context.Background(), uuid.New(), func(tx domain.EventTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestWithinEvent_CommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	entrant := uuid.New()

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		require.NoError(t, tx.Insert(ctx, waiting(eventID, entrant, time.Now())))
		require.NoError(t, tx.AdjustCounters(ctx, 1, 0))
		return tx.Enqueue(ctx, domain.OutboxMessage{RoutingKey: "waitlist.joined"})
	})
	require.NoError(t, err)

	ev, err := s.GetEvent(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.WaitingCount)

	e, err := s.GetEntry(ctx, eventID, entrant)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaiting, e.Status)
	assert.Len(t, s.Outbox(), 1)
}

func TestWithinEvent_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	boom := errors.New("boom")

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		require.NoError(t, tx.Insert(ctx, waiting(eventID, uuid.New(), time.Now())))
		require.NoError(t, tx.AdjustCounters(ctx, 1, 0))
		require.NoError(t, tx.Enqueue(ctx, domain.OutboxMessage{RoutingKey: "x"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ev, _ := s.GetEvent(ctx, eventID)
	assert.Equal(t, 0, ev.WaitingCount)
	counts, _ := s.CountByStatus(ctx, eventID)
	assert.Empty(t, counts)
	assert.Empty(t, s.Outbox())
}

func TestWithinEvent_CommitFaultDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	s.Fault = func(op string) error {
		if op == "commit" {
			return errors.New("connection reset")
		}
		return nil
	}

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		return tx.Insert(ctx, waiting(eventID, uuid.New(), time.Now()))
	})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	var se *domain.StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "commit", se.Op)

	s.Fault = nil
	counts, _ := s.CountByStatus(ctx, eventID)
	assert.Empty(t, counts)
}

func TestTransition_ChecksCurrentStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	entrant := uuid.New()
	now := time.Now()

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		require.NoError(t, tx.Insert(ctx, waiting(eventID, entrant, now)))

		err := tx.Transition(ctx, entrant, domain.StatusInvited, domain.StatusAccepted, now)
		var te *domain.TransitionError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, domain.StatusWaiting, te.From)

		assert.ErrorIs(t, tx.Transition(ctx, uuid.New(), domain.StatusWaiting, domain.StatusInvited, now), domain.ErrNotOnWaitlist)
		assert.ErrorIs(t, tx.Transition(ctx, entrant, domain.StatusWaiting, domain.StatusAccepted, now), domain.ErrInvalidStateTransition)

		require.NoError(t, tx.Transition(ctx, entrant, domain.StatusWaiting, domain.StatusInvited, now))
		got, err := tx.Get(ctx, entrant)
		require.NoError(t, err)
		require.NotNil(t, got.InvitedAt)
		return nil
	})
	require.NoError(t, err)
}

func TestInsert_Duplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	entrant := uuid.New()

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		require.NoError(t, tx.Insert(ctx, waiting(eventID, entrant, time.Now())))
		return tx.Insert(ctx, waiting(eventID, entrant, time.Now()))
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyOnWaitlist)
}

func TestAdjustCounters_Underflow(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)

	err := s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		return tx.AdjustCounters(ctx, -1, 0)
	})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestUpsertEvent_PreservesCounters(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)

	require.NoError(t, s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		return tx.AdjustCounters(ctx, 3, 1)
	}))

	capacity := 10
	ev, err := s.UpsertEvent(ctx, domain.EventConfig{ID: eventID, OrganizerID: uuid.New(), Capacity: &capacity})
	require.NoError(t, err)
	assert.Equal(t, 3, ev.WaitingCount)
	assert.Equal(t, 1, ev.AttendeeCount)
	require.NotNil(t, ev.Capacity)
	assert.Equal(t, 10, *ev.Capacity)
}

func TestDeleteEvent(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)

	require.NoError(t, s.DeleteEvent(ctx, eventID))
	_, err := s.GetEvent(ctx, eventID)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
	assert.ErrorIs(t, s.DeleteEvent(ctx, eventID), domain.ErrEventNotFound)
}

func TestListEntries_KeysetPaging(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var want []uuid.UUID
	require.NoError(t, s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
		for i := 0; i < 5; i++ {
			e := waiting(eventID, uuid.New(), base.Add(time.Duration(i)*time.Minute))
			want = append(want, e.EntrantID)
			if err := tx.Insert(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []uuid.UUID
	var cursor *domain.KeysetCursor
	for {
		page, next, err := s.ListEntries(ctx, eventID, domain.StatusWaiting, 2, cursor)
		require.NoError(t, err)
		for _, e := range page {
			got = append(got, e.EntrantID)
		}
		if next == nil {
			break
		}
		cursor = next
	}
	assert.Equal(t, want, got)
}

func TestListEntrantHistory_NewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	entrant := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var events []uuid.UUID
	for i := 0; i < 3; i++ {
		eventID := newEvent(t, s)
		events = append(events, eventID)
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
			return tx.Insert(ctx, waiting(eventID, entrant, at))
		}))
	}

	page, next, err := s.ListEntrantHistory(ctx, entrant, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, events[2], page[0].EventID)
	assert.Equal(t, events[1], page[1].EventID)

	page, next, err = s.ListEntrantHistory(ctx, entrant, 2, next)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Nil(t, next)
	assert.Equal(t, events[0], page[0].EventID)
}

func TestWithinEvent_SerializesPerEvent(t *testing.T) {
	s := New()
	ctx := context.Background()
	eventID := newEvent(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
				if err := tx.Insert(ctx, waiting(eventID, uuid.New(), time.Now())); err != nil {
					return err
				}
				return tx.AdjustCounters(ctx, 1, 0)
			})
		}()
	}
	wg.Wait()

	ev, err := s.GetEvent(ctx, eventID)
	require.NoError(t, err)
	counts, err := s.CountByStatus(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 50, ev.WaitingCount)
	assert.Equal(t, 50, counts[domain.StatusWaiting])
}

func TestInbox(t *testing.T) {
	s := New()
	ctx := context.Background()

	seen, err := s.Seen(ctx, "m1", "h")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.MarkProcessed(ctx, "m1", "h"))
	seen, _ = s.Seen(ctx, "m1", "h")
	assert.True(t, seen)
	seen, _ = s.Seen(ctx, "m1", "other")
	assert.False(t, seen)
}

func TestOutboxLimit_DropsOldest(t *testing.T) {
	s := New()
	s.OutboxLimit = 3
	ctx := context.Background()
	eventID := newEvent(t, s)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.WithinEvent(ctx, eventID, func(tx domain.EventTx) error {
			return tx.Enqueue(ctx, domain.OutboxMessage{RoutingKey: "waitlist.joined", TraceID: string(rune('a' + i))})
		}))
	}

	out := s.Outbox()
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].TraceID)
	assert.Equal(t, "e", out[2].TraceID)
}

func TestPurgeOlderThan_ForgetsOldMarkers(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.MarkProcessed(ctx, "old", "event_snapshots"))
	now = now.Add(10 * 24 * time.Hour)
	require.NoError(t, s.MarkProcessed(ctx, "fresh", "event_snapshots"))

	_, processed, err := s.PurgeOlderThan(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, processed)

	seen, _ := s.Seen(ctx, "old", "event_snapshots")
	assert.False(t, seen)
	seen, _ = s.Seen(ctx, "fresh", "event_snapshots")
	assert.True(t, seen)
}
