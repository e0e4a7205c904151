package domain

import "time"

// PartnerPolicy is the per-partner hold configuration. It is owned by the
// admin workflow; the hold engine only reads snapshots of it, possibly a
// few seconds stale when served from cache.
type PartnerPolicy struct {
	PartnerID    string
	HoldEnabled  bool
	HoldQuotaPct float64
	HoldExpiry   time.Duration
}
