package rabbitmq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/contracts/event"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	supportedVersion = 1
	handlerName      = "event_snapshots"

	rkEventPublished = "event.published"
	rkEventUpdated   = "event.updated"
	rkEventCanceled  = "event.canceled"
	rkEventDeleted   = "event.deleted"
)

// SnapshotApplier is the part of the lottery service that mirrors event
// state coming from the event service.
type SnapshotApplier interface {
	SyncSnapshot(ctx context.Context, cfg domain.EventConfig) (domain.Event, error)
	CloseRegistration(ctx context.Context, eventID uuid.UUID, at time.Time) error
	PurgeEvent(ctx context.Context, eventID uuid.UUID) error
}

// Inbox deduplicates deliveries. Snapshot application is idempotent, so a
// crash between apply and mark only costs a redundant re-apply.
type Inbox interface {
	Seen(ctx context.Context, messageID, handlerName string) (bool, error)
	MarkProcessed(ctx context.Context, messageID, handlerName string) error
}

type Consumer struct {
	rabbitURL string
	exchange  string
	queue     string
	applier   SnapshotApplier
	inbox     Inbox
	now       func() time.Time
}

func NewConsumer(rabbitURL, exchange, queue string, applier SnapshotApplier, inbox Inbox) *Consumer {
	return &Consumer{
		rabbitURL: strings.TrimSpace(rabbitURL),
		exchange:  strings.TrimSpace(exchange),
		queue:     strings.TrimSpace(queue),
		applier:   applier,
		inbox:     inbox,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	log := logger.Logger.With().Str("component", "rabbitmq_consumer").Logger()

	conn, err := amqp.Dial(c.rabbitURL)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	fail := func(err error) error {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fail(err)
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		return fail(err)
	}
	for _, rk := range []string{rkEventPublished, rkEventUpdated, rkEventCanceled, rkEventDeleted} {
		if err := ch.QueueBind(q.Name, rk, c.exchange, false, nil); err != nil {
			return fail(err)
		}
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return fail(err)
	}
	deliveries, err := ch.Consume(q.Name, "waitlist-service", false, false, false, false, nil)
	if err != nil {
		return fail(err)
	}

	go func() {
		defer func() {
			_ = ch.Close()
			_ = conn.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Warn().Msg("delivery channel closed")
					return
				}
				if err := c.handle(ctx, d.RoutingKey, d.MessageId, d.Body); err != nil {
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	log.Info().Str("queue", q.Name).Msg("consumer started")
	return nil
}

// handle returns an error only for failures worth a redelivery. Malformed
// messages are logged and dropped.
func (c *Consumer) handle(ctx context.Context, routingKey, amqpMessageID string, body []byte) error {
	baseLog := logger.Logger.With().
		Str("component", "rabbitmq_consumer").
		Str("routing_key", routingKey).
		Logger()

	var env event.DomainEventEnvelope[json.RawMessage]
	if err := json.Unmarshal(body, &env); err != nil {
		baseLog.Warn().Err(err).Msg("invalid envelope json; dropping")
		metrics.RecordConsumed(routingKey, "dropped")
		return nil
	}
	if env.Version != supportedVersion {
		baseLog.Warn().Int("version", env.Version).Msg("unsupported envelope version; dropping")
		metrics.RecordConsumed(routingKey, "dropped")
		return nil
	}

	msgID := messageID(env.MessageID, amqpMessageID, routingKey, body)
	log := baseLog.With().
		Str("message_id", msgID).
		Str("trace_id", strings.TrimSpace(env.TraceID)).
		Logger()

	if c.inbox != nil {
		seen, err := c.inbox.Seen(ctx, msgID, handlerName)
		if err != nil {
			log.Error().Err(err).Msg("dedupe lookup failed (requeue)")
			metrics.RecordConsumed(routingKey, "retry")
			return err
		}
		if seen {
			log.Info().Msg("duplicate delivery ignored")
			metrics.RecordConsumed(routingKey, "duplicate")
			return nil
		}
	}

	if err := c.apply(ctx, routingKey, env.Payload, env.OccurredAt, log); err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) || !domain.IsDomainError(err) {
			log.Error().Err(err).Msg("processing failed (requeue)")
			metrics.RecordConsumed(routingKey, "retry")
			return err
		}
		log.Warn().Err(err).Msg("snapshot rejected; dropping")
		metrics.RecordConsumed(routingKey, "dropped")
		return nil
	}

	if c.inbox != nil {
		if err := c.inbox.MarkProcessed(ctx, msgID, handlerName); err != nil {
			log.Warn().Err(err).Msg("mark processed failed")
		}
	}
	metrics.RecordConsumed(routingKey, "ok")
	return nil
}

// messageID prefers the envelope id, then the AMQP id, else a content hash.
func messageID(envID, amqpID, routingKey string, body []byte) string {
	if id := strings.TrimSpace(envID); id != "" {
		return id
	}
	if id := strings.TrimSpace(amqpID); id != "" {
		return id
	}
	h := sha256.Sum256(append([]byte(routingKey+"\n"), body...))
	return "hash:" + hex.EncodeToString(h[:])
}

func (c *Consumer) apply(ctx context.Context, routingKey string, raw json.RawMessage, occurredAt time.Time, log zerolog.Logger) error {
	switch routingKey {
	case rkEventPublished, rkEventUpdated:
		var p event.EventPublishedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.InvalidArgument("payload: " + err.Error())
		}
		eid, err := event.ResolveEventID(p.EventID)
		if err != nil {
			return domain.InvalidArgument(err.Error())
		}
		oid, err := uuid.Parse(strings.TrimSpace(p.OrganizerID))
		if err != nil {
			return domain.InvalidArgument("missing or invalid organizer_id")
		}

		if _, err := c.applier.SyncSnapshot(ctx, domain.EventConfig{
			ID:                   eid,
			OrganizerID:          oid,
			Capacity:             p.Capacity,
			WaitlistLimited:      p.WaitlistLimited,
			WaitlistLimit:        p.WaitlistLimit,
			RegistrationOpensAt:  p.RegistrationOpensAt,
			RegistrationClosesAt: p.RegistrationClosesAt,
			LotteryDrawAt:        p.LotteryDrawAt,
			RequireLocation:      p.RequireLocation,
		}); err != nil {
			return err
		}
		if strings.EqualFold(strings.TrimSpace(p.Status), "canceled") {
			return c.applier.CloseRegistration(ctx, eid, c.closeAt(nil, occurredAt))
		}
		log.Debug().Str("event_id", eid.String()).Msg("event snapshot applied")
		return nil

	case rkEventCanceled:
		var p event.EventCanceledPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.InvalidArgument("payload: " + err.Error())
		}
		eid, err := event.ResolveEventID(p.EventID, p.ID)
		if err != nil {
			return domain.InvalidArgument(err.Error())
		}
		log.Info().Str("event_id", eid.String()).Str("reason", p.Reason).Msg("event canceled; closing registration")
		return c.applier.CloseRegistration(ctx, eid, c.closeAt(p.CanceledAt, occurredAt))

	case rkEventDeleted:
		var p event.EventDeletedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return domain.InvalidArgument("payload: " + err.Error())
		}
		eid, err := event.ResolveEventID(p.EventID, p.ID)
		if err != nil {
			return domain.InvalidArgument(err.Error())
		}
		err = c.applier.PurgeEvent(ctx, eid)
		if errors.Is(err, domain.ErrEventNotFound) {
			return nil
		}
		return err

	default:
		log.Warn().Msg("unknown routing key; ignoring")
		return nil
	}
}

func (c *Consumer) closeAt(explicit *time.Time, occurredAt time.Time) time.Time {
	switch {
	case explicit != nil:
		return *explicit
	case !occurredAt.IsZero():
		return occurredAt
	default:
		return c.now()
	}
}
