package domain

// UnitStatus is the state of a single addressable unit (a seat).
type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitHeld      UnitStatus = "HELD"
	UnitBooked    UnitStatus = "BOOKED"
)

// InventoryKey identifies one bookable unit-set: a bus run on a date, a
// hotel room-type/date combination, or a cabin class on a flight. The
// class dimension keeps per-class quota policies possible without a
// schema change.
type InventoryKey struct {
	ScheduleID string
	Class      string
}

func (k InventoryKey) String() string {
	return k.ScheduleID + "/" + k.Class
}

// ScheduleInventory tracks the unit counts for one inventory key.
// Counts always satisfy available + held + booked == total.
type ScheduleInventory struct {
	Key            InventoryKey
	PartnerID      string
	TotalUnits     int
	AvailableUnits int
	HeldUnits      int
	BookedUnits    int
	// Units maps unit identifiers (seat numbers) to their status.
	// Empty for count-only inventory such as hotel rooms.
	Units   map[string]UnitStatus
	Retired bool
}

// Addressable reports whether this inventory tracks per-unit identity.
func (inv ScheduleInventory) Addressable() bool {
	return len(inv.Units) > 0
}

// CountsConsistent verifies the conservation invariant over the counts.
func (inv ScheduleInventory) CountsConsistent() bool {
	if inv.AvailableUnits < 0 || inv.HeldUnits < 0 || inv.BookedUnits < 0 {
		return false
	}
	return inv.AvailableUnits+inv.HeldUnits+inv.BookedUnits == inv.TotalUnits
}

// NewScheduleInventory builds a fresh inventory with every unit available.
// Pass unitIDs for seat-addressable inventory; leave nil for count-only.
func NewScheduleInventory(key InventoryKey, partnerID string, totalUnits int, unitIDs []string) ScheduleInventory {
	inv := ScheduleInventory{
		Key:            key,
		PartnerID:      partnerID,
		TotalUnits:     totalUnits,
		AvailableUnits: totalUnits,
	}
	if len(unitIDs) > 0 {
		inv.Units = make(map[string]UnitStatus, len(unitIDs))
		for _, id := range unitIDs {
			inv.Units[id] = UnitAvailable
		}
	}
	return inv
}
