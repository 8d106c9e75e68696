package orders

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/StepIgor/otus-final/internal/redisx"
)

// Claims deduplicates order intake on (user, client request id) for a bounded window.
type Claims interface {
	// Claim binds the request to orderID. When the request was claimed before it returns the
	// stored order id and claimed false.
	Claim(ctx context.Context, userID, clientRequestID, orderID string) (existing string, claimed bool, err error)
	// Release drops the claim if it still points at orderID.
	Release(ctx context.Context, userID, clientRequestID, orderID string) error
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisClaims struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisClaims(rdb redis.Cmdable, ttl time.Duration) *RedisClaims {
	return &RedisClaims{rdb: rdb, ttl: ttl}
}

func (c *RedisClaims) Claim(ctx context.Context, userID, clientRequestID, orderID string) (string, bool, error) {
	key := redisx.OrderClaimKey(userID, clientRequestID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.rdb.SetNX(ctx, key, orderID, c.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if ok {
			return orderID, true, nil
		}
		existing, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between SETNX and GET
		}
		if err != nil {
			return "", false, err
		}
		return existing, false, nil
	}
	return "", false, ErrOrderInFlight
}

func (c *RedisClaims) Release(ctx context.Context, userID, clientRequestID, orderID string) error {
	return releaseScript.Run(ctx, c.rdb, []string{redisx.OrderClaimKey(userID, clientRequestID)}, orderID).Err()
}
