package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventHoldCreated   = "hold.created"
	EventHoldReleased  = "hold.released"
	EventHoldConverted = "hold.converted"
)

// HoldEvent is a lifecycle notification written in the same transaction as
// the inventory mutation it describes, then relayed to the broker.
type HoldEvent struct {
	ID         uuid.UUID
	Type       string
	HoldID     uuid.UUID
	Key        InventoryKey
	Payload    []byte
	DedupeKey  string
	OccurredAt time.Time
}
