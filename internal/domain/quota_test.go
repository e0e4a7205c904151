package domain_test

import (
	"testing"

	"github.com/yatrago/hold-engine/internal/domain"
)

func TestMaxHoldableUnits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		total int
		pct   float64
		want  int
	}{
		{name: "quarter of hundred", total: 100, pct: 25, want: 25},
		{name: "rounds down", total: 10, pct: 25, want: 2},
		{name: "rounds down below one", total: 3, pct: 25, want: 0},
		{name: "full quota", total: 40, pct: 100, want: 40},
		{name: "zero quota", total: 40, pct: 0, want: 0},
		{name: "fractional percent", total: 1000, pct: 12.5, want: 125},
		{name: "zero inventory", total: 0, pct: 50, want: 0},
		{name: "negative inventory", total: -5, pct: 50, want: 0},
		{name: "negative percent clamps to zero", total: 100, pct: -10, want: 0},
		{name: "oversized percent clamps to total", total: 100, pct: 180, want: 100},
		{name: "single unit half quota", total: 1, pct: 50, want: 0},
		{name: "single unit full quota", total: 1, pct: 100, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.MaxHoldableUnits(tt.total, tt.pct); got != tt.want {
				t.Fatalf("MaxHoldableUnits(%d, %v) = %d, want %d", tt.total, tt.pct, got, tt.want)
			}
		})
	}
}

func TestScheduleInventoryAddressable(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "f-1", Class: "economy"}

	seat := domain.NewScheduleInventory(key, "p-1", 2, []string{"1A", "1B"})
	if !seat.Addressable() {
		t.Fatal("expected seat inventory to be addressable")
	}
	if seat.Units["1A"] != domain.UnitAvailable {
		t.Fatalf("expected seeded unit AVAILABLE, got %v", seat.Units["1A"])
	}

	room := domain.NewScheduleInventory(key, "p-1", 30, nil)
	if room.Addressable() {
		t.Fatal("expected count-only inventory to not be addressable")
	}
	if room.AvailableUnits != 30 || room.TotalUnits != 30 {
		t.Fatalf("unexpected seeded counts: %+v", room)
	}
	if !room.CountsConsistent() {
		t.Fatal("expected fresh inventory counts to be consistent")
	}
}
