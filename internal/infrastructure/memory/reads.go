package memory

import (
	"bytes"
	"context"
	"sort"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
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

func (s *Store) GetEntry(ctx context.Context, eventID, entrantID uuid.UUID) (domain.WaitlistEntry, error) {
	if err := s.fault("get_entry"); err != nil {
		return domain.WaitlistEntry{}, err
	}
	st := s.state(eventID)
	if st == nil {
		return domain.WaitlistEntry{}, domain.ErrNotOnWaitlist
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[entrantID]
	if !ok {
		return domain.WaitlistEntry{}, domain.ErrNotOnWaitlist
	}
	return e, nil
}

// ListEntries orders by (joined_at, id) ascending; the cursor means "start
// after this item". An empty status lists every status.
func (s *Store) ListEntries(ctx context.Context, eventID uuid.UUID, status domain.Status, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	if err := s.fault("list_entries"); err != nil {
		return nil, nil, err
	}
	limit = clampLimit(limit)

	st := s.state(eventID)
	if st == nil {
		return nil, nil, domain.ErrEventNotFound
	}
	st.mu.Lock()
	all := make([]domain.WaitlistEntry, 0, len(st.entries))
	for _, e := range st.entries {
		if status == "" || e.Status == status {
			all = append(all, e)
		}
	}
	st.mu.Unlock()

	sortAsc(all)
	out := make([]domain.WaitlistEntry, 0, limit+1)
	for _, e := range all {
		if cursor != nil && !afterCursor(e, *cursor) {
			continue
		}
		out = append(out, e)
		if len(out) > limit {
			break
		}
	}
	return page(out, limit)
}

// ListEntrantHistory orders by (joined_at, id) descending across events.
func (s *Store) ListEntrantHistory(ctx context.Context, entrantID uuid.UUID, limit int, cursor *domain.KeysetCursor) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	if err := s.fault("list_history"); err != nil {
		return nil, nil, err
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	states := make([]*eventState, 0, len(s.events))
	for _, st := range s.events {
		states = append(states, st)
	}
	s.mu.Unlock()

	var all []domain.WaitlistEntry
	for _, st := range states {
		st.mu.Lock()
		if e, ok := st.entries[entrantID]; ok && !st.deleted {
			all = append(all, e)
		}
		st.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool { return entryLess(all[j], all[i]) })

	out := make([]domain.WaitlistEntry, 0, limit+1)
	for _, e := range all {
		if cursor != nil && !beforeCursor(e, *cursor) {
			continue
		}
		out = append(out, e)
		if len(out) > limit {
			break
		}
	}
	return page(out, limit)
}

func (s *Store) CountByStatus(ctx context.Context, eventID uuid.UUID) (map[domain.Status]int, error) {
	if err := s.fault("count"); err != nil {
		return nil, err
	}
	st := s.state(eventID)
	if st == nil {
		return nil, domain.ErrEventNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	counts := make(map[domain.Status]int)
	for _, e := range st.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (s *Store) ListDraws(ctx context.Context, eventID uuid.UUID) ([]domain.DrawRecord, error) {
	if err := s.fault("list_draws"); err != nil {
		return nil, err
	}
	st := s.state(eventID)
	if st == nil {
		return nil, domain.ErrEventNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]domain.DrawRecord, len(st.draws))
	copy(out, st.draws)
	return out, nil
}

func afterCursor(e domain.WaitlistEntry, c domain.KeysetCursor) bool {
	if !e.JoinedAt.Equal(c.CreatedAt) {
		return e.JoinedAt.After(c.CreatedAt)
	}
	return bytes.Compare(e.ID[:], c.ID[:]) > 0
}

func beforeCursor(e domain.WaitlistEntry, c domain.KeysetCursor) bool {
	if !e.JoinedAt.Equal(c.CreatedAt) {
		return e.JoinedAt.Before(c.CreatedAt)
	}
	return bytes.Compare(e.ID[:], c.ID[:]) < 0
}

func page(out []domain.WaitlistEntry, limit int) ([]domain.WaitlistEntry, *domain.KeysetCursor, error) {
	var next *domain.KeysetCursor
	if len(out) > limit {
		last := out[limit-1]
		next = &domain.KeysetCursor{CreatedAt: last.JoinedAt, ID: last.ID}
		out = out[:limit]
	}
	return out, next, nil
}
