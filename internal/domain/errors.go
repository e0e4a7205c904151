package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInactiveSchedule     = errors.New("schedule not active")
	ErrPolicyDisabled       = errors.New("holds disabled by partner policy")
	ErrAlreadyTerminal      = errors.New("hold already terminal")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrUnitsRequired        = errors.New("unit selection required for seat inventory")
	ErrNotAddressable       = errors.New("inventory has no per-unit identity")
)

// QuotaExceededError is returned when a hold request would push held units
// past the computed cap. It carries the numbers callers display.
type QuotaExceededError struct {
	MaxAllowed    int
	CurrentlyHeld int
	Requested     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("hold quota exceeded: %d held + %d requested > %d allowed",
		e.CurrentlyHeld, e.Requested, e.MaxAllowed)
}

// UnitUnavailableError reports which requested units are not AVAILABLE.
type UnitUnavailableError struct {
	Units []string
}

func (e *UnitUnavailableError) Error() string {
	return "units unavailable: " + strings.Join(e.Units, ", ")
}
