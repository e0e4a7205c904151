package policy

import (
	"context"
	"time"

	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/observability"
)

// Provider supplies per-partner hold configuration.
type Provider interface {
	GetPolicy(ctx context.Context, partnerID string) (domain.PartnerPolicy, error)
}

// Static serves the same policy for every partner. Used as the platform
// default and by deployments without a partner admin store.
type Static struct {
	Policy domain.PartnerPolicy
}

func (s Static) GetPolicy(ctx context.Context, partnerID string) (domain.PartnerPolicy, error) {
	pol := s.Policy
	pol.PartnerID = partnerID
	return pol, nil
}

// Cache is the snapshot cache in front of a Provider. A nil policy with a
// nil error means miss.
type Cache interface {
	Get(ctx context.Context, partnerID string) (*domain.PartnerPolicy, error)
	Set(ctx context.Context, pol domain.PartnerPolicy, ttl time.Duration) error
	Delete(ctx context.Context, partnerID string) error
}

// CachedProvider serves policy snapshots from a cache with a TTL bound on
// staleness. Admin changes call Invalidate so they take effect within one
// lookup rather than one TTL. Cache failures degrade to the inner provider
// and are logged, never surfaced.
type CachedProvider struct {
	inner  Provider
	cache  Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewCachedProvider(inner Provider, cache Cache, ttl time.Duration, logger observability.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, ttl: ttl, logger: logger}
}

func (p *CachedProvider) GetPolicy(ctx context.Context, partnerID string) (domain.PartnerPolicy, error) {
	cached, err := p.cache.Get(ctx, partnerID)
	if err != nil {
		p.logger.WithError(err).Warn("policy cache read failed")
	} else if cached != nil {
		return *cached, nil
	}

	pol, err := p.inner.GetPolicy(ctx, partnerID)
	if err != nil {
		return domain.PartnerPolicy{}, err
	}
	if err := p.cache.Set(ctx, pol, p.ttl); err != nil {
		p.logger.WithError(err).Warn("policy cache write failed")
	}
	return pol, nil
}

// Invalidate drops the cached snapshot for a partner.
func (p *CachedProvider) Invalidate(ctx context.Context, partnerID string) {
	if err := p.cache.Delete(ctx, partnerID); err != nil {
		p.logger.WithError(err).Warn("policy cache invalidation failed")
	}
}
