package domain_test

import (
	"testing"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(v int) *int              { return &v }

func TestRegistrationWindowActive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name     string
		start    *time.Time
		end      *time.Time
		expected bool
	}{
		{"Open both sides", nil, nil, true},
		{"Started, no end", ptrTime(before), nil, true},
		{"Not started yet", ptrTime(after), nil, false},
		{"No start, not ended", nil, ptrTime(after), true},
		{"Ended", nil, ptrTime(before), false},
		{"Inside window", ptrTime(before), ptrTime(after), true},
		{"Start equals now", ptrTime(now), ptrTime(after), true},
		{"End equals now", ptrTime(before), ptrTime(now), true},
		{"Inverted window", ptrTime(after), ptrTime(before), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.RegistrationWindowActive(tt.start, tt.end, now))
		})
	}
}

func TestCanJoin(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	assert.True(t, domain.CanJoin(nil, now))
	assert.True(t, domain.CanJoin(ptrTime(now), now), "deadline is inclusive")
	assert.True(t, domain.CanJoin(ptrTime(now.Add(time.Second)), now))
	assert.False(t, domain.CanJoin(ptrTime(now.Add(-time.Second)), now))
}

func TestCheckAdmission(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		ev       domain.Event
		expected error
	}{
		{"No limits", domain.Event{}, nil},
		{"Closed", domain.Event{RegistrationClosesAt: ptrTime(now.Add(-time.Minute))}, domain.ErrRegistrationClosed},
		{"Not yet open", domain.Event{RegistrationOpensAt: ptrTime(now.Add(time.Minute))}, domain.ErrRegistrationClosed},
		{"At limit", domain.Event{WaitlistLimited: true, WaitlistLimit: ptrInt(2), WaitingCount: 2}, domain.ErrWaitlistFull},
		{"Below limit", domain.Event{WaitlistLimited: true, WaitlistLimit: ptrInt(2), WaitingCount: 1}, nil},
		{"Limit ignored when flag unset", domain.Event{WaitlistLimited: false, WaitlistLimit: ptrInt(0), WaitingCount: 5}, nil},
		{"Limited without a limit value", domain.Event{WaitlistLimited: true, WaitingCount: 5}, nil},
		{"Closed wins over full", domain.Event{
			RegistrationClosesAt: ptrTime(now.Add(-time.Minute)),
			WaitlistLimited:      true, WaitlistLimit: ptrInt(1), WaitingCount: 1,
		}, domain.ErrRegistrationClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.CheckAdmission(tt.ev, now)
			if tt.expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestSeatsToDraw(t *testing.T) {
	tests := []struct {
		name     string
		ev       domain.Event
		expected int
	}{
		{"Unset capacity", domain.Event{}, 0},
		{"Zero capacity", domain.Event{Capacity: ptrInt(0)}, 0},
		{"Negative capacity", domain.Event{Capacity: ptrInt(-1)}, 0},
		{"Fresh event", domain.Event{Capacity: ptrInt(10)}, 10},
		{"Partly accepted", domain.Event{Capacity: ptrInt(10), AttendeeCount: 4}, 6},
		{"Over accepted clamps", domain.Event{Capacity: ptrInt(3), AttendeeCount: 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, domain.SeatsToDraw(tt.ev))
		})
	}
}
