package domain

import "math"

// MaxHoldableUnits returns how many units may be simultaneously held for an
// inventory of totalUnits under a percentage quota:
// floor(totalUnits * quotaPct / 100).
//
// quotaPct is clamped into [0, 100] so a mis-stored policy can never raise
// the cap above the inventory size. The admin boundary validates the range
// separately; the clamp here is the hard guarantee.
func MaxHoldableUnits(totalUnits int, quotaPct float64) int {
	if totalUnits <= 0 {
		return 0
	}
	if quotaPct < 0 {
		quotaPct = 0
	}
	if quotaPct > 100 {
		quotaPct = 100
	}
	return int(math.Floor(float64(totalUnits) * quotaPct / 100))
}
