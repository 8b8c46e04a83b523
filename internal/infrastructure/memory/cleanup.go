package memory

import (
	"context"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/pkg/logger"
)

// StartRetentionCleanup periodically forgets consumer dedupe markers older
// than retention.
func (s *Store) StartRetentionCleanup(ctx context.Context, retention, every time.Duration) {
	go func() {
		log := logger.Logger.With().Str("component", "retention_cleanup").Logger()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("stopped")
				return
			case <-ticker.C:
				_, processed, _ := s.PurgeOlderThan(ctx, retention)
				if processed > 0 {
					log.Info().Int64("processed_deleted", processed).Msg("retention cleanup done")
				}
			}
		}
	}()
}

// PurgeOlderThan drops processed-message markers older than retention. The
// outbox is bounded by OutboxLimit instead, so the outbox count is always 0.
func (s *Store) PurgeOlderThan(ctx context.Context, retention time.Duration) (outbox, processed int64, err error) {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, at := range s.processed {
		if at.Before(cutoff) {
			delete(s.processed, k)
			processed++
		}
	}
	return 0, processed, nil
}
