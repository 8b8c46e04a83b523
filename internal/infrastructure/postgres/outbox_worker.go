package postgres

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	outboxBatchSize   = 20
	outboxMaxAttempts = 12
	outboxPollEvery   = 500 * time.Millisecond
	outboxInFlight    = 15 * time.Second
	confirmWait       = 600 * time.Millisecond
	reconnectDelay    = 5 * time.Second
)

type outboxRow struct {
	ID         uuid.UUID
	MessageID  uuid.UUID
	TraceID    string
	RoutingKey string
	Payload    []byte
	Attempt    int
}

// computeNextRetry is 2^attempt seconds clamped to [5s, 30m] with +/-10% jitter.
func computeNextRetry(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	sec := math.Pow(2, float64(attempt))
	if sec < 5 {
		sec = 5
	}
	if sec > 1800 {
		sec = 1800
	}

	d := time.Duration(sec) * time.Second
	j := time.Duration(rand.Int63n(int64(d/5))) - d/10
	return d + j
}

// StartOutboxWorker publishes pending outbox rows to exchange with publisher
// confirms and mandatory routing. It reconnects after connection loss until
// ctx is cancelled.
func (r *Repository) StartOutboxWorker(ctx context.Context, rabbitURL, exchange string) {
	go func() {
		log := logger.Logger.With().Str("component", "outbox_worker").Logger()
		for {
			err := r.runOutbox(ctx, log, rabbitURL, exchange)
			if ctx.Err() != nil {
				log.Info().Msg("stopped")
				return
			}
			log.Error().Err(err).Dur("retry_in", reconnectDelay).Msg("outbox publisher disconnected")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

func (r *Repository) runOutbox(ctx context.Context, log zerolog.Logger, rabbitURL, exchange string) error {
	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 100))
	returnCh := ch.NotifyReturn(make(chan amqp.Return, 100))
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))

	ticker := time.NewTicker(outboxPollEvery)
	defer ticker.Stop()

	var lastErr string
	var lastAt time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closeCh:
			return fmt.Errorf("connection closed: %v", amqpErr)
		case <-ticker.C:
			if err := r.processOutboxBatch(ctx, log, ch, exchange, confirmCh, returnCh); err != nil {
				// rate-limit identical errors
				if err.Error() != lastErr || time.Since(lastAt) > 10*time.Second {
					log.Warn().Err(err).Msg("outbox batch failed")
					lastErr = err.Error()
					lastAt = time.Now()
				}
			} else {
				lastErr = ""
			}
		}
	}
}

// claimOutboxBatch locks due rows, pushes their next_retry_at past the
// publish window so other workers skip them, and commits immediately.
func (r *Repository) claimOutboxBatch(ctx context.Context) ([]outboxRow, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, trace_id, routing_key, payload, attempt
		FROM outbox
		WHERE status = 'pending'
		  AND next_retry_at <= NOW()
		ORDER BY next_retry_at ASC, occurred_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, outboxBatchSize)
	if err != nil {
		return nil, err
	}

	var batch []outboxRow
	for rows.Next() {
		var m outboxRow
		if err := rows.Scan(&m.ID, &m.MessageID, &m.TraceID, &m.RoutingKey, &m.Payload, &m.Attempt); err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(batch) > 0 {
		ids := make([]string, len(batch))
		for i, m := range batch {
			ids[i] = m.ID.String()
		}
		if _, err := tx.Exec(ctx, `
			UPDATE outbox SET next_retry_at = $2 WHERE id = ANY($1::uuid[])
		`, ids, time.Now().Add(outboxInFlight)); err != nil {
			return nil, err
		}
	}
	return batch, tx.Commit(ctx)
}

func (r *Repository) processOutboxBatch(
	ctx context.Context,
	log zerolog.Logger,
	ch *amqp.Channel,
	exchange string,
	confirmCh <-chan amqp.Confirmation,
	returnCh <-chan amqp.Return,
) error {
	batch, err := r.claimOutboxBatch(ctx)
	if err != nil {
		return err
	}

	for _, m := range batch {
		drainNotifications(confirmCh, returnCh)

		pub := amqp.Publishing{
			ContentType:   "application/json",
			Body:          m.Payload,
			DeliveryMode:  amqp.Persistent,
			Timestamp:     time.Now().UTC(),
			MessageId:     m.MessageID.String(),
			CorrelationId: m.TraceID,
			AppId:         producer,
		}
		if err := ch.PublishWithContext(ctx, exchange, m.RoutingKey, true, false, pub); err != nil {
			r.failOutbox(ctx, log, m, fmt.Sprintf("publish error: %v", err))
			continue
		}

		if reason := awaitConfirm(confirmCh, returnCh); reason != "" {
			r.failOutbox(ctx, log, m, reason)
			continue
		}

		if _, err := r.pool.Exec(ctx, `
			UPDATE outbox SET status = 'sent', last_error = NULL WHERE id = $1
		`, m.ID); err != nil {
			// published but not marked: it will be sent again, consumers dedupe on message_id
			log.Warn().Err(err).Str("outbox_id", m.ID.String()).Msg("mark sent failed")
		}
		metrics.RecordOutboxPublished(m.RoutingKey)

		log.Debug().
			Str("outbox_id", m.ID.String()).
			Str("message_id", m.MessageID.String()).
			Str("routing_key", m.RoutingKey).
			Msg("published")
	}
	return nil
}

func drainNotifications(confirmCh <-chan amqp.Confirmation, returnCh <-chan amqp.Return) {
	for {
		select {
		case <-returnCh:
		case <-confirmCh:
		default:
			return
		}
	}
}

// awaitConfirm waits for the broker's confirm. A mandatory return arrives
// before the confirm and marks the publish as unroutable. It returns an empty
// string on a clean ack.
func awaitConfirm(confirmCh <-chan amqp.Confirmation, returnCh <-chan amqp.Return) string {
	var returned string
	deadline := time.After(confirmWait)
	for {
		select {
		case ret := <-returnCh:
			returned = fmt.Sprintf("NO_ROUTE: code=%d text=%s exchange=%s rk=%s",
				ret.ReplyCode, ret.ReplyText, ret.Exchange, ret.RoutingKey)
		case c := <-confirmCh:
			if returned != "" {
				return returned
			}
			if !c.Ack {
				return fmt.Sprintf("NACK: delivery_tag=%d", c.DeliveryTag)
			}
			return ""
		case <-deadline:
			if returned != "" {
				return returned
			}
			return "confirm timeout"
		}
	}
}

func (r *Repository) failOutbox(ctx context.Context, log zerolog.Logger, m outboxRow, errMsg string) {
	nextAttempt := m.Attempt + 1
	if nextAttempt >= outboxMaxAttempts {
		_, _ = r.pool.Exec(ctx, `
			UPDATE outbox
			SET status = 'dead', attempt = $2, last_error = $3
			WHERE id = $1
		`, m.ID, nextAttempt, errMsg)
		metrics.RecordOutboxFailed(m.RoutingKey, true)

		log.Error().
			Str("outbox_id", m.ID.String()).
			Str("message_id", m.MessageID.String()).
			Str("routing_key", m.RoutingKey).
			Int("attempt", nextAttempt).
			Str("error", errMsg).
			Msg("outbox moved to DEAD")
		return
	}

	delay := computeNextRetry(nextAttempt)
	_, _ = r.pool.Exec(ctx, `
		UPDATE outbox
		SET attempt = $2,
		    next_retry_at = NOW() + $3::interval,
		    last_error = $4
		WHERE id = $1
	`, m.ID, nextAttempt, fmt.Sprintf("%f seconds", delay.Seconds()), errMsg)
	metrics.RecordOutboxFailed(m.RoutingKey, false)

	log.Warn().
		Str("outbox_id", m.ID.String()).
		Str("routing_key", m.RoutingKey).
		Int("attempt", nextAttempt).
		Dur("retry_in", delay).
		Str("error", errMsg).
		Msg("outbox publish failed; scheduled retry")
}
