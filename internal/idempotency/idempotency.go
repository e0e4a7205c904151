package idempotency

import (
	"context"
	"time"

	redisadapter "github.com/yatrago/hold-engine/internal/adapters/redis"
)

// Idempotency replays stored responses for retried hold requests so a
// network-level retry never creates a second hold.
type Idempotency struct {
	redis *redisadapter.Idempotency
	ttl   time.Duration
}

func NewIdempotency(redis *redisadapter.Idempotency, ttl time.Duration) *Idempotency {
	return &Idempotency{redis: redis, ttl: ttl}
}

type Response struct {
	Status int
	HoldID string
	Result []byte
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.redis.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, HoldID: stored.HoldID, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.redis.Set(ctx, key, redisadapter.StoredResponse{Status: resp.Status, HoldID: resp.HoldID, Result: resp.Result}, i.ttl)
}
