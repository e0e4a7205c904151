package domain

import (
	"time"

	"github.com/google/uuid"
)

type HoldStatus string

const (
	HoldStatusActive    HoldStatus = "ACTIVE"
	HoldStatusReleased  HoldStatus = "RELEASED"
	HoldStatusConverted HoldStatus = "CONVERTED"
)

type ReleaseReason string

const (
	ReleaseReasonExpired   ReleaseReason = "EXPIRED"
	ReleaseReasonCancelled ReleaseReason = "CANCELLED"
)

// HoldRecord is a temporary claim on inventory during checkout. Transitions
// are ACTIVE -> RELEASED or ACTIVE -> CONVERTED, both terminal.
type HoldRecord struct {
	ID       uuid.UUID
	Key      InventoryKey
	Units    []string // empty for count-only holds
	Quantity int
	HeldBy   string
	Status   HoldStatus
	// Reason is set when Status is RELEASED.
	Reason ReleaseReason
	// BookingRef links the confirmed booking when Status is CONVERTED.
	BookingRef string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ReleasedAt *time.Time
}

func (h HoldRecord) Terminal() bool {
	return h.Status != HoldStatusActive
}

func NewHold(key InventoryKey, units []string, quantity int, heldBy string, now time.Time, ttl time.Duration) HoldRecord {
	return HoldRecord{
		ID:        uuid.New(),
		Key:       key,
		Units:     units,
		Quantity:  quantity,
		HeldBy:    heldBy,
		Status:    HoldStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
