package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
)

// StartRetentionCleanup periodically deletes sent outbox rows and consumer
// dedupe markers older than retention. Dead outbox rows are kept for
// inspection.
func (r *Repository) StartRetentionCleanup(ctx context.Context, retention, every time.Duration) {
	go func() {
		log := logger.Logger.With().Str("component", "retention_cleanup").Logger()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		r.cleanupOnce(ctx, retention)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				r.cleanupOnce(ctx, retention)
			}
		}
	}()
}

func (r *Repository) cleanupOnce(ctx context.Context, retention time.Duration) {
	outbox, processed, err := r.PurgeOlderThan(ctx, retention)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("retention cleanup failed")
		return
	}
	if outbox > 0 || processed > 0 {
		logger.Logger.Info().
			Int64("outbox_deleted", outbox).
			Int64("processed_deleted", processed).
			Msg("retention cleanup done")
	}
}

// PurgeOlderThan deletes sent outbox rows and processed_messages older than
// retention and returns how many of each were removed.
func (r *Repository) PurgeOlderThan(ctx context.Context, retention time.Duration) (outbox, processed int64, err error) {
	interval := fmt.Sprintf("%f seconds", retention.Seconds())

	tag, err := r.pool.Exec(ctx, `
		DELETE FROM outbox
		WHERE status = 'sent' AND occurred_at < NOW() - $1::interval
	`, interval)
	if err != nil {
		return 0, 0, err
	}
	outbox = tag.RowsAffected()

	tag, err = r.pool.Exec(ctx, `
		DELETE FROM processed_messages
		WHERE processed_at < NOW() - $1::interval
	`, interval)
	if err != nil {
		return outbox, 0, err
	}
	return outbox, tag.RowsAffected(), nil
}
