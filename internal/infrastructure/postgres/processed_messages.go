package postgres

import (
	"context"
	"strings"
)

// Seen reports whether (message_id, handler_name) was already recorded.
// An empty message id can never be deduplicated and is reported as unseen.
func (r *Repository) Seen(ctx context.Context, messageID, handlerName string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM processed_messages
			WHERE message_id = $1 AND handler_name = $2
		)
	`, messageID, normalizeHandler(handlerName)).Scan(&exists)
	return exists, err
}

// MarkProcessed records a handled delivery. Duplicate inserts are ignored.
func (r *Repository) MarkProcessed(ctx context.Context, messageID, handlerName string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, handler_name)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, messageID, normalizeHandler(handlerName))
	return err
}

func normalizeHandler(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return "unknown"
	}
	return h
}
