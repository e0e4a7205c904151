package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yatrago/hold-engine/internal/domain"
)

// PolicyCache stores partner-policy snapshots with a TTL. Staleness is
// bounded by the TTL; admin updates delete the key to take effect sooner.
type PolicyCache struct {
	client *redis.Client
}

func NewPolicyCache(client *redis.Client) *PolicyCache {
	return &PolicyCache{client: client}
}

func policyKey(partnerID string) string {
	return "policy:" + partnerID
}

func (c *PolicyCache) Get(ctx context.Context, partnerID string) (*domain.PartnerPolicy, error) {
	val, err := c.client.Get(ctx, policyKey(partnerID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var pol domain.PartnerPolicy
	if err := json.Unmarshal(val, &pol); err != nil {
		return nil, err
	}
	return &pol, nil
}

func (c *PolicyCache) Set(ctx context.Context, pol domain.PartnerPolicy, ttl time.Duration) error {
	data, err := json.Marshal(pol)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, policyKey(pol.PartnerID), data, ttl).Err()
}

func (c *PolicyCache) Delete(ctx context.Context, partnerID string) error {
	return c.client.Del(ctx, policyKey(partnerID)).Err()
}
