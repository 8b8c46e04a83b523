package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/baechuer/real-time-ressys/services/waitlist-service/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventKeyPrefix = "waitlist:event:"

type Cache struct {
	Client   *redis.Client
	eventTTL time.Duration
}

func New(addr, pass string, db int, eventTTL time.Duration) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr, Password: pass, DB: db,
	})
	return NewWithClient(rdb, eventTTL)
}

func NewWithClient(rdb *redis.Client, eventTTL time.Duration) *Cache {
	if eventTTL <= 0 {
		eventTTL = 5 * time.Minute
	}
	return &Cache{Client: rdb, eventTTL: eventTTL}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// cachedEvent is the admission-relevant slice of an event. Counters are
// read under the event lock and never cached.
type cachedEvent struct {
	ID                   uuid.UUID  `json:"id"`
	OrganizerID          uuid.UUID  `json:"organizer_id"`
	Capacity             *int       `json:"capacity,omitempty"`
	WaitlistLimited      bool       `json:"waitlist_limited"`
	WaitlistLimit        *int       `json:"waitlist_limit,omitempty"`
	RegistrationOpensAt  *time.Time `json:"registration_opens_at,omitempty"`
	RegistrationClosesAt *time.Time `json:"registration_closes_at,omitempty"`
	LotteryDrawAt        *time.Time `json:"lottery_draw_at,omitempty"`
	RequireLocation      bool       `json:"require_location"`
}

func (c *Cache) GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error) {
	raw, err := c.Client.Get(ctx, eventKeyPrefix+eventID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Event{}, domain.ErrCacheMiss
		}
		return domain.Event{}, err
	}

	var ce cachedEvent
	if err := json.Unmarshal(raw, &ce); err != nil {
		// treat a corrupt entry as a miss and drop it
		_ = c.Client.Del(ctx, eventKeyPrefix+eventID.String()).Err()
		return domain.Event{}, domain.ErrCacheMiss
	}
	return domain.Event{
		ID:                   ce.ID,
		OrganizerID:          ce.OrganizerID,
		Capacity:             ce.Capacity,
		WaitlistLimited:      ce.WaitlistLimited,
		WaitlistLimit:        ce.WaitlistLimit,
		RegistrationOpensAt:  ce.RegistrationOpensAt,
		RegistrationClosesAt: ce.RegistrationClosesAt,
		LotteryDrawAt:        ce.LotteryDrawAt,
		RequireLocation:      ce.RequireLocation,
	}, nil
}

func (c *Cache) SetEvent(ctx context.Context, ev domain.Event) error {
	raw, err := json.Marshal(cachedEvent{
		ID:                   ev.ID,
		OrganizerID:          ev.OrganizerID,
		Capacity:             ev.Capacity,
		WaitlistLimited:      ev.WaitlistLimited,
		WaitlistLimit:        ev.WaitlistLimit,
		RegistrationOpensAt:  ev.RegistrationOpensAt,
		RegistrationClosesAt: ev.RegistrationClosesAt,
		LotteryDrawAt:        ev.LotteryDrawAt,
		RequireLocation:      ev.RequireLocation,
	})
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, eventKeyPrefix+ev.ID.String(), raw, c.eventTTL).Err()
}

func (c *Cache) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	return c.Client.Del(ctx, eventKeyPrefix+eventID.String()).Err()
}

// AllowRequest is a fixed-window counter keyed by client. Redis errors fail
// open.
func (c *Cache) AllowRequest(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := "ratelimit:" + key
	count, err := c.Client.Incr(ctx, k).Result()
	if err != nil {
		return true, nil
	}
	if count == 1 {
		_ = c.Client.Expire(ctx, k, window).Err()
	}
	return count <= int64(limit), nil
}
