package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency stores the outcome of a completed hold creation so a retried
// request replays the original hold instead of claiming units a second time.
type Idempotency struct {
	client *redis.Client
}

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

// StoredResponse is the replayable outcome of a hold creation: the HTTP
// status, the hold the original attempt produced, and the exact body.
type StoredResponse struct {
	Status int    `json:"status"`
	HoldID string `json:"hold_id,omitempty"`
	Result []byte `json:"result"`
}

func holdIdempKey(key string) string {
	return "hold-idemp:" + key
}

func (i *Idempotency) Get(ctx context.Context, key string) (*StoredResponse, error) {
	val, err := i.client.Get(ctx, holdIdempKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp StoredResponse
	if err := json.Unmarshal(val, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp StoredResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return i.client.Set(ctx, holdIdempKey(key), data, ttl).Err()
}
