package hold_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/adapters/memory"
	"github.com/yatrago/hold-engine/internal/clock"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/hold"
	"github.com/yatrago/hold-engine/internal/observability"
	"github.com/yatrago/hold-engine/internal/policy"
	"golang.org/x/sync/errgroup"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func defaultPolicy() domain.PartnerPolicy {
	return domain.PartnerPolicy{
		HoldEnabled:  true,
		HoldQuotaPct: 25,
		HoldExpiry:   15 * time.Minute,
	}
}

func newManager(t *testing.T, clk clock.Clock, pol domain.PartnerPolicy) (*hold.Manager, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	mgr := hold.NewManager(store, policy.Static{Policy: pol}, clk, observability.NewLogger())
	return mgr, store
}

func seedSeatInventory(t *testing.T, mgr *hold.Manager, key domain.InventoryKey, seats []string) {
	t.Helper()
	inv := domain.NewScheduleInventory(key, "partner-1", len(seats), seats)
	if err := mgr.PublishInventory(context.Background(), inv); err != nil {
		t.Fatalf("publish inventory: %v", err)
	}
}

func seedRoomInventory(t *testing.T, mgr *hold.Manager, key domain.InventoryKey, total int) {
	t.Helper()
	inv := domain.NewScheduleInventory(key, "partner-1", total, nil)
	if err := mgr.PublishInventory(context.Background(), inv); err != nil {
		t.Fatalf("publish inventory: %v", err)
	}
}

func mustInventory(t *testing.T, store *memory.Store, key domain.InventoryKey) domain.ScheduleInventory {
	t.Helper()
	inv, err := store.GetInventory(context.Background(), key)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	if !inv.CountsConsistent() {
		t.Fatalf("counts inconsistent: total=%d available=%d held=%d booked=%d",
			inv.TotalUnits, inv.AvailableUnits, inv.HeldUnits, inv.BookedUnits)
	}
	return inv
}

func TestManager_RequestHold(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "bus-17", Class: "standard"}

	t.Run("holds selected seats", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldQuotaPct = 50
		mgr, store := newManager(t, clock.NewFixed(testStart), pol)
		seedSeatInventory(t, mgr, key, []string{"A1", "A2", "A3", "A4"})

		rec, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key:    key,
			Units:  []string{"A1", "A2"},
			HeldBy: "user-7",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if rec.Status != domain.HoldStatusActive {
			t.Fatalf("expected status ACTIVE, got %s", rec.Status)
		}
		if got, want := rec.ExpiresAt, testStart.Add(15*time.Minute); !got.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, got)
		}

		inv := mustInventory(t, store, key)
		if inv.AvailableUnits != 2 || inv.HeldUnits != 2 || inv.BookedUnits != 0 {
			t.Fatalf("unexpected counts: %+v", inv)
		}
		if inv.Units["A1"] != domain.UnitHeld || inv.Units["A2"] != domain.UnitHeld {
			t.Fatalf("expected A1/A2 HELD, got %v", inv.Units)
		}
		if inv.Units["A3"] != domain.UnitAvailable {
			t.Fatalf("expected A3 AVAILABLE, got %v", inv.Units["A3"])
		}

		events := store.Events()
		if len(events) != 1 || events[0].Type != domain.EventHoldCreated {
			t.Fatalf("expected one hold.created event, got %v", events)
		}
	})

	t.Run("rejects conflicting seats and reports them", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldQuotaPct = 100
		mgr, store := newManager(t, clock.NewFixed(testStart), pol)
		seedSeatInventory(t, mgr, key, []string{"A1", "A2", "A3"})

		if _, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Units: []string{"A1"}, HeldBy: "user-1",
		}); err != nil {
			t.Fatal(err)
		}

		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Units: []string{"A1", "A3"}, HeldBy: "user-2",
		})
		var ue *domain.UnitUnavailableError
		if !errors.As(err, &ue) {
			t.Fatalf("expected UnitUnavailableError, got %v", err)
		}
		if len(ue.Units) != 1 || ue.Units[0] != "A1" {
			t.Fatalf("expected conflict on A1, got %v", ue.Units)
		}

		// the failed request must not leak partial state
		inv := mustInventory(t, store, key)
		if inv.HeldUnits != 1 || inv.Units["A3"] != domain.UnitAvailable {
			t.Fatalf("conflicting request mutated inventory: %+v", inv)
		}
	})

	t.Run("enforces quota across holds", func(t *testing.T) {
		// 100 rooms, 25% quota: 20 ok, then 10 busts the cap, 5 lands exactly on it.
		mgr, store := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		roomKey := domain.InventoryKey{ScheduleID: "hotel-9:2025-07-01", Class: "deluxe"}
		seedRoomInventory(t, mgr, roomKey, 100)

		first, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: roomKey, Quantity: 20, HeldBy: "user-1",
		})
		if err != nil {
			t.Fatalf("expected 20-unit hold to succeed, got %v", err)
		}

		_, err = mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: roomKey, Quantity: 10, HeldBy: "user-2",
		})
		var qe *domain.QuotaExceededError
		if !errors.As(err, &qe) {
			t.Fatalf("expected QuotaExceededError, got %v", err)
		}
		if qe.MaxAllowed != 25 || qe.CurrentlyHeld != 20 || qe.Requested != 10 {
			t.Fatalf("unexpected quota error fields: %+v", qe)
		}

		if _, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: roomKey, Quantity: 5, HeldBy: "user-3",
		}); err != nil {
			t.Fatalf("expected 5-unit hold to land exactly on the cap, got %v", err)
		}

		inv := mustInventory(t, store, roomKey)
		if inv.HeldUnits != 25 || inv.AvailableUnits != 75 {
			t.Fatalf("unexpected counts after quota fill: %+v", inv)
		}

		if err := mgr.ReleaseHold(context.Background(), first.ID, domain.ReleaseReasonCancelled); err != nil {
			t.Fatal(err)
		}
		inv = mustInventory(t, store, roomKey)
		if inv.AvailableUnits != 95 || inv.HeldUnits != 5 {
			t.Fatalf("unexpected counts after release: %+v", inv)
		}
	})

	t.Run("rejects when policy disables holds", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldEnabled = false
		mgr, _ := newManager(t, clock.NewFixed(testStart), pol)
		seedRoomInventory(t, mgr, key, 10)

		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Quantity: 1, HeldBy: "user-1",
		})
		if !errors.Is(err, domain.ErrPolicyDisabled) {
			t.Fatalf("expected ErrPolicyDisabled, got %v", err)
		}
	})

	t.Run("rejects unknown inventory", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: domain.InventoryKey{ScheduleID: "ghost", Class: "x"}, Quantity: 1, HeldBy: "user-1",
		})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("rejects retired inventory", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		seedRoomInventory(t, mgr, key, 10)
		if err := mgr.RetireInventory(context.Background(), key); err != nil {
			t.Fatal(err)
		}
		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Quantity: 1, HeldBy: "user-1",
		})
		if !errors.Is(err, domain.ErrInactiveSchedule) {
			t.Fatalf("expected ErrInactiveSchedule, got %v", err)
		}
	})

	t.Run("rejects zero quantity", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		seedRoomInventory(t, mgr, key, 10)
		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, HeldBy: "user-1",
		})
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("seat inventory requires explicit seats", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldQuotaPct = 100
		mgr, _ := newManager(t, clock.NewFixed(testStart), pol)
		seedSeatInventory(t, mgr, key, []string{"A1", "A2"})
		_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Quantity: 2, HeldBy: "user-1",
		})
		if !errors.Is(err, domain.ErrUnitsRequired) {
			t.Fatalf("expected ErrUnitsRequired, got %v", err)
		}
	})

	t.Run("expiry override wins over policy", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		seedRoomInventory(t, mgr, key, 10)
		rec, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Quantity: 1, HeldBy: "user-1", ExpiryOverride: time.Minute,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got, want := rec.ExpiresAt, testStart.Add(time.Minute); !got.Equal(want) {
			t.Fatalf("expected expires_at %v, got %v", want, got)
		}
	})
}

func TestManager_ReleaseHold(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "bus-3", Class: "standard"}

	t.Run("restores counts and units exactly once", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldQuotaPct = 100
		mgr, store := newManager(t, clock.NewFixed(testStart), pol)
		seedSeatInventory(t, mgr, key, []string{"A1", "A2", "A3"})

		rec, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Units: []string{"A1", "A2"}, HeldBy: "user-1",
		})
		if err != nil {
			t.Fatal(err)
		}

		if err := mgr.ReleaseHold(context.Background(), rec.ID, domain.ReleaseReasonCancelled); err != nil {
			t.Fatalf("expected release to succeed, got %v", err)
		}

		inv := mustInventory(t, store, key)
		if inv.AvailableUnits != 3 || inv.HeldUnits != 0 {
			t.Fatalf("unexpected counts after release: %+v", inv)
		}
		if inv.Units["A1"] != domain.UnitAvailable {
			t.Fatalf("expected A1 back to AVAILABLE, got %v", inv.Units["A1"])
		}

		stored, err := store.GetHold(context.Background(), rec.ID)
		if err != nil {
			t.Fatal(err)
		}
		if stored.Status != domain.HoldStatusReleased || stored.Reason != domain.ReleaseReasonCancelled {
			t.Fatalf("unexpected hold state: %+v", stored)
		}
		if stored.ReleasedAt == nil {
			t.Fatal("expected released_at to be stamped")
		}

		// double release is a benign no-op failure, counts untouched
		err = mgr.ReleaseHold(context.Background(), rec.ID, domain.ReleaseReasonCancelled)
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
		inv = mustInventory(t, store, key)
		if inv.AvailableUnits != 3 || inv.HeldUnits != 0 {
			t.Fatalf("double release changed counts: %+v", inv)
		}
	})

	t.Run("unknown hold", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		err := mgr.ReleaseHold(context.Background(), uuid.New(), domain.ReleaseReasonExpired)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestManager_ConvertHold(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "bus-5", Class: "sleeper"}

	t.Run("moves units from held to booked", func(t *testing.T) {
		pol := defaultPolicy()
		pol.HoldQuotaPct = 100
		mgr, store := newManager(t, clock.NewFixed(testStart), pol)
		seedSeatInventory(t, mgr, key, []string{"S1", "S2", "S3"})

		rec, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Units: []string{"S1", "S2"}, HeldBy: "user-1",
		})
		if err != nil {
			t.Fatal(err)
		}

		if err := mgr.ConvertHold(context.Background(), rec.ID, "BK-1001"); err != nil {
			t.Fatalf("expected convert to succeed, got %v", err)
		}

		inv := mustInventory(t, store, key)
		if inv.BookedUnits != 2 || inv.HeldUnits != 0 || inv.AvailableUnits != 1 {
			t.Fatalf("unexpected counts after convert: %+v", inv)
		}
		if inv.Units["S1"] != domain.UnitBooked {
			t.Fatalf("expected S1 BOOKED, got %v", inv.Units["S1"])
		}

		stored, _ := store.GetHold(context.Background(), rec.ID)
		if stored.Status != domain.HoldStatusConverted || stored.BookingRef != "BK-1001" {
			t.Fatalf("unexpected hold state: %+v", stored)
		}

		// a retry with the same booking reference must not double-book
		if err := mgr.ConvertHold(context.Background(), rec.ID, "BK-1001"); err != nil {
			t.Fatalf("expected idempotent retry to succeed, got %v", err)
		}
		inv = mustInventory(t, store, key)
		if inv.BookedUnits != 2 {
			t.Fatalf("retry double-booked: %+v", inv)
		}

		// a different booking reference is a real conflict
		err = mgr.ConvertHold(context.Background(), rec.ID, "BK-9999")
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
	})

	t.Run("cannot convert a released hold", func(t *testing.T) {
		mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
		seedRoomInventory(t, mgr, key, 20)

		rec, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
			Key: key, Quantity: 2, HeldBy: "user-1",
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := mgr.ReleaseHold(context.Background(), rec.ID, domain.ReleaseReasonExpired); err != nil {
			t.Fatal(err)
		}
		err = mgr.ConvertHold(context.Background(), rec.ID, "BK-1")
		if !errors.Is(err, domain.ErrAlreadyTerminal) {
			t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
		}
	})
}

func TestManager_QuotaStatus(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "hotel-2:2025-08-01", Class: "standard"}

	mgr, _ := newManager(t, clock.NewFixed(testStart), defaultPolicy())
	seedRoomInventory(t, mgr, key, 100)

	if _, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
		Key: key, Quantity: 10, HeldBy: "user-1",
	}); err != nil {
		t.Fatal(err)
	}

	st, err := mgr.QuotaStatus(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalUnits != 100 || st.MaxHoldable != 25 || st.CurrentlyHeld != 10 || st.AvailableForHold != 15 {
		t.Fatalf("unexpected quota status: %+v", st)
	}
	if st.HoldExpiry != 15*time.Minute {
		t.Fatalf("unexpected hold expiry: %v", st.HoldExpiry)
	}
}

func TestManager_ConcurrentHoldsNeverOversubscribe(t *testing.T) {
	t.Parallel()

	key := domain.InventoryKey{ScheduleID: "bus-rush", Class: "standard"}
	mgr, store := newManager(t, clock.NewSystem(), defaultPolicy())
	seedRoomInventory(t, mgr, key, 100) // 25% quota -> cap of 25

	const attempts = 60
	var successes, quotaRejected atomic.Int64

	g := new(errgroup.Group)
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := mgr.RequestHold(context.Background(), hold.RequestHoldInput{
				Key: key, Quantity: 1, HeldBy: "user",
			})
			var qe *domain.QuotaExceededError
			switch {
			case err == nil:
				successes.Add(1)
			case errors.As(err, &qe):
				quotaRejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error under concurrency: %v", err)
	}

	if successes.Load() != 25 {
		t.Fatalf("expected exactly 25 successes, got %d", successes.Load())
	}
	if quotaRejected.Load() != attempts-25 {
		t.Fatalf("expected %d quota rejections, got %d", attempts-25, quotaRejected.Load())
	}

	inv := mustInventory(t, store, key)
	if inv.HeldUnits != 25 || inv.AvailableUnits != 75 {
		t.Fatalf("unexpected final counts: %+v", inv)
	}
}
