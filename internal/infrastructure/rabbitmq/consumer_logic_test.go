package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockApplier struct{ mock.Mock }

func (m *MockApplier) SyncSnapshot(ctx context.Context, cfg domain.EventConfig) (domain.Event, error) {
	args := m.Called(ctx, cfg)
	return domain.Event{ID: cfg.ID}, args.Error(0)
}
func (m *MockApplier) CloseRegistration(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	return m.Called(ctx, eventID, at).Error(0)
}
func (m *MockApplier) PurgeEvent(ctx context.Context, eventID uuid.UUID) error {
	return m.Called(ctx, eventID).Error(0)
}

type MockInbox struct{ mock.Mock }

func (m *MockInbox) Seen(ctx context.Context, messageID, handler string) (bool, error) {
	args := m.Called(ctx, messageID, handler)
	return args.Bool(0), args.Error(1)
}
func (m *MockInbox) MarkProcessed(ctx context.Context, messageID, handler string) error {
	return m.Called(ctx, messageID, handler).Error(0)
}

var occurred = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func envelope(t *testing.T, msgID string, payload any) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(event.DomainEventEnvelope[json.RawMessage]{
		Version:    1,
		Producer:   "event-service",
		TraceID:    "trace-1",
		MessageID:  msgID,
		OccurredAt: occurred,
		Payload:    raw,
	})
	require.NoError(t, err)
	return body
}

func TestHandle_PublishedSyncsSnapshot(t *testing.T) {
	applier := new(MockApplier)
	inbox := new(MockInbox)
	c := NewConsumer("", "city.events", "q", applier, inbox)
	ctx := context.Background()

	eid, oid := uuid.New(), uuid.New()
	capacity := 30
	body := envelope(t, "m-1", event.EventPublishedPayload{
		EventID: eid.String(), OrganizerID: oid.String(), Capacity: &capacity, RequireLocation: true,
	})

	inbox.On("Seen", ctx, "m-1", handlerName).Return(false, nil).Once()
	applier.On("SyncSnapshot", ctx, mock.MatchedBy(func(cfg domain.EventConfig) bool {
		return cfg.ID == eid && cfg.OrganizerID == oid && *cfg.Capacity == 30 && cfg.RequireLocation
	})).Return(nil).Once()
	inbox.On("MarkProcessed", ctx, "m-1", handlerName).Return(nil).Once()

	assert.NoError(t, c.handle(ctx, rkEventPublished, "", body))
	applier.AssertExpectations(t)
	inbox.AssertExpectations(t)
}

func TestHandle_DuplicateSkipped(t *testing.T) {
	applier := new(MockApplier)
	inbox := new(MockInbox)
	c := NewConsumer("", "x", "q", applier, inbox)
	ctx := context.Background()

	inbox.On("Seen", ctx, "m-2", handlerName).Return(true, nil).Once()
	body := envelope(t, "m-2", event.EventDeletedPayload{EventID: uuid.NewString()})

	assert.NoError(t, c.handle(ctx, rkEventDeleted, "", body))
	applier.AssertNotCalled(t, "PurgeEvent", mock.Anything, mock.Anything)
}

func TestHandle_CanceledClosesRegistration(t *testing.T) {
	applier := new(MockApplier)
	c := NewConsumer("", "x", "q", applier, nil)
	ctx := context.Background()
	eid := uuid.New()

	applier.On("CloseRegistration", ctx, eid, occurred).Return(nil).Once()
	body := envelope(t, "m-3", event.EventCanceledPayload{ID: eid.String(), Reason: "rain"})

	assert.NoError(t, c.handle(ctx, rkEventCanceled, "", body))
	applier.AssertExpectations(t)
}

func TestHandle_CanceledPrefersExplicitTimestamp(t *testing.T) {
	applier := new(MockApplier)
	c := NewConsumer("", "x", "q", applier, nil)
	ctx := context.Background()
	eid := uuid.New()
	at := occurred.Add(-time.Hour)

	applier.On("CloseRegistration", ctx, eid, at).Return(nil).Once()
	body := envelope(t, "", event.EventCanceledPayload{EventID: eid.String(), CanceledAt: &at})

	assert.NoError(t, c.handle(ctx, rkEventCanceled, "amqp-id", body))
	applier.AssertExpectations(t)
}

func TestHandle_DeletedUnknownEventIsDone(t *testing.T) {
	applier := new(MockApplier)
	inbox := new(MockInbox)
	c := NewConsumer("", "x", "q", applier, inbox)
	ctx := context.Background()
	eid := uuid.New()

	inbox.On("Seen", ctx, "m-4", handlerName).Return(false, nil)
	inbox.On("MarkProcessed", ctx, "m-4", handlerName).Return(nil).Once()
	applier.On("PurgeEvent", ctx, eid).Return(domain.ErrEventNotFound).Once()

	assert.NoError(t, c.handle(ctx, rkEventDeleted, "", envelope(t, "m-4", event.EventDeletedPayload{EventID: eid.String()})))
	inbox.AssertExpectations(t)
}

func TestHandle_StoreFailureRequeues(t *testing.T) {
	applier := new(MockApplier)
	inbox := new(MockInbox)
	c := NewConsumer("", "x", "q", applier, inbox)
	ctx := context.Background()
	eid := uuid.New()

	inbox.On("Seen", ctx, "m-5", handlerName).Return(false, nil)
	applier.On("PurgeEvent", ctx, eid).Return(&domain.StoreError{Op: "delete_event", Err: errors.New("conn refused")})

	err := c.handle(ctx, rkEventDeleted, "", envelope(t, "m-5", event.EventDeletedPayload{EventID: eid.String()}))
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	inbox.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_PoisonMessagesDropped(t *testing.T) {
	applier := new(MockApplier)
	c := NewConsumer("", "x", "q", applier, nil)
	ctx := context.Background()

	assert.NoError(t, c.handle(ctx, rkEventPublished, "", []byte("{oops")))

	old, _ := json.Marshal(map[string]any{"version": 2, "payload": map[string]any{}})
	assert.NoError(t, c.handle(ctx, rkEventPublished, "", old))

	// missing organizer
	assert.NoError(t, c.handle(ctx, rkEventPublished, "", envelope(t, "m-6", event.EventPublishedPayload{EventID: uuid.NewString()})))

	// rejected by validation
	applier.On("SyncSnapshot", ctx, mock.Anything).Return(domain.InvalidArgument("capacity must not be negative")).Once()
	neg := -1
	assert.NoError(t, c.handle(ctx, rkEventUpdated, "", envelope(t, "m-7", event.EventPublishedPayload{
		EventID: uuid.NewString(), OrganizerID: uuid.NewString(), Capacity: &neg,
	})))

	applier.AssertNumberOfCalls(t, "SyncSnapshot", 1)
}

func TestMessageID_Fallbacks(t *testing.T) {
	assert.Equal(t, "env", messageID(" env ", "amqp", "rk", nil))
	assert.Equal(t, "amqp", messageID("", "amqp", "rk", nil))

	a := messageID("", "", "rk", []byte("body"))
	b := messageID("", "", "rk", []byte("body"))
	assert.Equal(t, a, b)
	assert.Contains(t, a, "hash:")
	assert.NotEqual(t, a, messageID("", "", "other", []byte("body")))
}
