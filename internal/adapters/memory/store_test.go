package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/domain"
)

func seedInventory(t *testing.T, s *Store, key domain.InventoryKey, total int, units []string) {
	t.Helper()
	inv := domain.NewScheduleInventory(key, "partner-1", total, units)
	if err := s.CreateInventory(context.Background(), inv); err != nil {
		t.Fatalf("create inventory: %v", err)
	}
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := NewStore()
	key := domain.InventoryKey{ScheduleID: "sch-1", Class: "economy"}
	seedInventory(t, s, key, 4, []string{"1A", "1B", "1C", "1D"})

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if err := s.MarkUnits(ctx, key, []string{"1A", "1B"}, domain.UnitHeld); err != nil {
			return err
		}
		if err := s.AdjustCounts(ctx, key, -2, 2, 0); err != nil {
			return err
		}
		h := domain.NewHold(key, []string{"1A", "1B"}, 2, "user-1", time.Now(), time.Minute)
		if err := s.CreateHold(ctx, h); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the section error back, got %v", err)
	}

	inv, err := s.GetInventory(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if inv.AvailableUnits != 4 || inv.HeldUnits != 0 {
		t.Fatalf("rollback left modified counts: %+v", inv)
	}
	if inv.Units["1A"] != domain.UnitAvailable {
		t.Fatalf("rollback left unit marked: %v", inv.Units["1A"])
	}
	if got := len(s.Events()); got != 0 {
		t.Fatalf("rollback left %d events", got)
	}
}

func TestStore_WithTxCommits(t *testing.T) {
	t.Parallel()

	s := NewStore()
	key := domain.InventoryKey{ScheduleID: "sch-2", Class: "economy"}
	seedInventory(t, s, key, 4, nil)

	h := domain.NewHold(key, nil, 2, "user-1", time.Now(), time.Minute)
	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if err := s.AdjustCounts(ctx, key, -2, 2, 0); err != nil {
			return err
		}
		return s.CreateHold(ctx, h)
	})
	if err != nil {
		t.Fatal(err)
	}

	inv, _ := s.GetInventory(context.Background(), key)
	if inv.AvailableUnits != 2 || inv.HeldUnits != 2 {
		t.Fatalf("commit lost changes: %+v", inv)
	}
	if _, err := s.GetHold(context.Background(), h.ID); err != nil {
		t.Fatalf("committed hold missing: %v", err)
	}
}

func TestStore_DuplicateCreates(t *testing.T) {
	t.Parallel()

	s := NewStore()
	key := domain.InventoryKey{ScheduleID: "sch-3", Class: "economy"}
	seedInventory(t, s, key, 4, nil)

	inv := domain.NewScheduleInventory(key, "partner-1", 4, nil)
	if err := s.CreateInventory(context.Background(), inv); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	h := domain.NewHold(key, nil, 1, "user-1", time.Now(), time.Minute)
	if err := s.CreateHold(context.Background(), h); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateHold(context.Background(), h); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_FinishHoldRequiresActive(t *testing.T) {
	t.Parallel()

	s := NewStore()
	key := domain.InventoryKey{ScheduleID: "sch-4", Class: "economy"}
	h := domain.NewHold(key, nil, 1, "user-1", time.Now(), time.Minute)
	if err := s.CreateHold(context.Background(), h); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	if err := s.FinishHold(context.Background(), h.ID, domain.HoldStatusReleased, domain.ReleaseReasonExpired, "", now); err != nil {
		t.Fatal(err)
	}
	err := s.FinishHold(context.Background(), h.ID, domain.HoldStatusConverted, "", "BK-1", now)
	if !errors.Is(err, domain.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	err = s.FinishHold(context.Background(), uuid.New(), domain.HoldStatusReleased, domain.ReleaseReasonExpired, "", now)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListExpiredHolds(t *testing.T) {
	t.Parallel()

	s := NewStore()
	key := domain.InventoryKey{ScheduleID: "sch-5", Class: "economy"}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := domain.NewHold(key, nil, 1, "user-1", base, time.Minute)
	active := domain.NewHold(key, nil, 1, "user-2", base, time.Hour)
	for _, h := range []domain.HoldRecord{old, active} {
		if err := s.CreateHold(context.Background(), h); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := s.ListExpiredHolds(context.Background(), base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0].ID != old.ID {
		t.Fatalf("expected only the old hold, got %v", expired)
	}

	// mutating the returned copy must not touch the stored record
	expired[0].Status = domain.HoldStatusReleased
	stored, _ := s.GetHold(context.Background(), old.ID)
	if stored.Status != domain.HoldStatusActive {
		t.Fatal("returned record aliases store memory")
	}
}
