package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

func (r *Repository) GetEntry(ctx context.Context, eventID, entrantID uuid.UUID) (domain.WaitlistEntry, error) {
	e, err := scanEntry(r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE event_id = $1 AND entrant_id = $2
	`, eventID, entrantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WaitlistEntry{}, domain.ErrNotOnWaitlist
	}
	if err != nil {
		return domain.WaitlistEntry{}, domain.Unavailable("get_entry", err)
	}
	return e, nil
}

// event entries: ORDER BY joined_at ASC, id ASC
// cursor means "start after this item" -> WHERE (joined_at, id) > (cursor.created_at, cursor.id)
func (r *Repository) ListEntries(ctx context.Context, eventID uuid.UUID, status domain.Status, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{eventID}
	where := "WHERE event_id = $1"
	argN := 2

	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, string(status))
		argN++
	}
	if cursor != nil {
		where += fmt.Sprintf(" AND (joined_at, id) > ($%d, $%d)", argN, argN+1)
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM waitlist_entries
		%s
		ORDER BY joined_at ASC, id ASC
		LIMIT %d
	`, entryColumns, where, limit+1)

	return r.queryPage(ctx, "list_entries", q, limit, args...)
}

// entrant history: ORDER BY joined_at DESC, id DESC
// cursor -> WHERE (joined_at, id) < (cursor.created_at, cursor.id)
func (r *Repository) ListEntrantHistory(ctx context.Context, entrantID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	limit = clampLimit(limit)
	args := []any{entrantID}
	where := "WHERE entrant_id = $1"

	if cursor != nil {
		where += " AND (joined_at, id) < ($2, $3)"
		args = append(args, cursor.CreatedAt, cursor.ID)
	}

	q := fmt.Sprintf(`
		SELECT %s
		FROM waitlist_entries
		%s
		ORDER BY joined_at DESC, id DESC
		LIMIT %d
	`, entryColumns, where, limit+1)

	return r.queryPage(ctx, "list_history", q, limit, args...)
}

func (r *Repository) queryPage(ctx context.Context, op, q string, limit int, args ...any) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, nil, domain.Unavailable(op, err)
	}
	defer rows.Close()

	var out []domain.WaitlistEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, nil, domain.Unavailable(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, domain.Unavailable(op, err)
	}

	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.JoinedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}

func (r *Repository) CountByStatus(ctx context.Context, eventID uuid.UUID) (map[domain.Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM waitlist_entries
		WHERE event_id = $1
		GROUP BY status
	`, eventID)
	if err != nil {
		return nil, domain.Unavailable("count_by_status", err)
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.Unavailable("count_by_status", err)
		}
		out[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("count_by_status", err)
	}
	return out, nil
}

func (r *Repository) ListDraws(ctx context.Context, eventID uuid.UUID) ([]domain.DrawRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, kind, seed, requested, candidates, selected, triggered_by, created_at
		FROM lottery_draws
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC
	`, eventID)
	if err != nil {
		return nil, domain.Unavailable("list_draws", err)
	}
	defer rows.Close()

	var out []domain.DrawRecord
	for rows.Next() {
		var rec domain.DrawRecord
		var kind string
		if err := rows.Scan(
			&rec.ID, &rec.EventID, &kind, &rec.Seed, &rec.Requested,
			&rec.Candidates, &rec.Selected, &rec.TriggeredBy, &rec.CreatedAt,
		); err != nil {
			return nil, domain.Unavailable("list_draws", err)
		}
		rec.Kind = domain.DrawKind(kind)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("list_draws", err)
	}
	return out, nil
}
