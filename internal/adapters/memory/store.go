package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/domain"
)

type txKey struct{}

// Store is an in-process implementation of the hold engine's store. A
// single mutex serializes every WithTx section, which is a stronger
// guarantee than the per-inventory lock the engine needs. On error the
// section is rolled back from a snapshot, so callers observe the same
// all-or-nothing behavior as the durable store.
type Store struct {
	mu     sync.Mutex
	invs   map[domain.InventoryKey]*domain.ScheduleInventory
	holds  map[uuid.UUID]*domain.HoldRecord
	events []domain.HoldEvent
}

func NewStore() *Store {
	return &Store{
		invs:  make(map[domain.InventoryKey]*domain.ScheduleInventory),
		holds: make(map[uuid.UUID]*domain.HoldRecord),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapInvs, snapHolds, snapEvents := s.snapshot()
	err := fn(context.WithValue(ctx, txKey{}, struct{}{}))
	if err != nil {
		s.invs, s.holds, s.events = snapInvs, snapHolds, snapEvents
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	return ctx.Value(txKey{}) != nil
}

// lock acquires the store mutex for a single call made outside WithTx.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) snapshot() (map[domain.InventoryKey]*domain.ScheduleInventory, map[uuid.UUID]*domain.HoldRecord, []domain.HoldEvent) {
	invs := make(map[domain.InventoryKey]*domain.ScheduleInventory, len(s.invs))
	for k, inv := range s.invs {
		invs[k] = cloneInventory(inv)
	}
	holds := make(map[uuid.UUID]*domain.HoldRecord, len(s.holds))
	for id, h := range s.holds {
		holds[id] = cloneHold(h)
	}
	events := make([]domain.HoldEvent, len(s.events))
	copy(events, s.events)
	return invs, holds, events
}

func cloneInventory(inv *domain.ScheduleInventory) *domain.ScheduleInventory {
	out := *inv
	if inv.Units != nil {
		out.Units = make(map[string]domain.UnitStatus, len(inv.Units))
		for id, st := range inv.Units {
			out.Units[id] = st
		}
	}
	return &out
}

func cloneHold(h *domain.HoldRecord) *domain.HoldRecord {
	out := *h
	if h.Units != nil {
		out.Units = append([]string(nil), h.Units...)
	}
	if h.ReleasedAt != nil {
		at := *h.ReleasedAt
		out.ReleasedAt = &at
	}
	return &out
}

func (s *Store) CreateInventory(ctx context.Context, inv domain.ScheduleInventory) error {
	defer s.lock(ctx)()
	if _, ok := s.invs[inv.Key]; ok {
		return domain.ErrConflict
	}
	s.invs[inv.Key] = cloneInventory(&inv)
	return nil
}

func (s *Store) GetInventory(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error) {
	defer s.lock(ctx)()
	inv, ok := s.invs[key]
	if !ok {
		return domain.ScheduleInventory{}, domain.ErrNotFound
	}
	return *cloneInventory(inv), nil
}

func (s *Store) GetInventoryForUpdate(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error) {
	return s.GetInventory(ctx, key)
}

func (s *Store) RetireInventory(ctx context.Context, key domain.InventoryKey) error {
	defer s.lock(ctx)()
	inv, ok := s.invs[key]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Retired = true
	return nil
}

func (s *Store) AdjustCounts(ctx context.Context, key domain.InventoryKey, availableDelta, heldDelta, bookedDelta int) error {
	defer s.lock(ctx)()
	inv, ok := s.invs[key]
	if !ok {
		return domain.ErrNotFound
	}
	inv.AvailableUnits += availableDelta
	inv.HeldUnits += heldDelta
	inv.BookedUnits += bookedDelta
	if !inv.CountsConsistent() {
		return domain.ErrInsufficientCapacity
	}
	return nil
}

func (s *Store) MarkUnits(ctx context.Context, key domain.InventoryKey, units []string, status domain.UnitStatus) error {
	defer s.lock(ctx)()
	inv, ok := s.invs[key]
	if !ok {
		return domain.ErrNotFound
	}
	for _, u := range units {
		if _, ok := inv.Units[u]; !ok {
			return domain.ErrNotFound
		}
	}
	for _, u := range units {
		inv.Units[u] = status
	}
	return nil
}

func (s *Store) GetHold(ctx context.Context, holdID uuid.UUID) (domain.HoldRecord, error) {
	defer s.lock(ctx)()
	h, ok := s.holds[holdID]
	if !ok {
		return domain.HoldRecord{}, domain.ErrNotFound
	}
	return *cloneHold(h), nil
}

func (s *Store) CreateHold(ctx context.Context, h domain.HoldRecord) error {
	defer s.lock(ctx)()
	if _, ok := s.holds[h.ID]; ok {
		return domain.ErrConflict
	}
	s.holds[h.ID] = cloneHold(&h)
	return nil
}

func (s *Store) FinishHold(ctx context.Context, holdID uuid.UUID, status domain.HoldStatus, reason domain.ReleaseReason, bookingRef string, at time.Time) error {
	defer s.lock(ctx)()
	h, ok := s.holds[holdID]
	if !ok {
		return domain.ErrNotFound
	}
	if h.Status != domain.HoldStatusActive {
		return domain.ErrAlreadyTerminal
	}
	h.Status = status
	h.Reason = reason
	h.BookingRef = bookingRef
	h.ReleasedAt = &at
	return nil
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.HoldRecord, error) {
	defer s.lock(ctx)()
	var out []domain.HoldRecord
	for _, h := range s.holds {
		if h.Status == domain.HoldStatusActive && !h.ExpiresAt.After(now) {
			out = append(out, *cloneHold(h))
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev domain.HoldEvent) error {
	defer s.lock(ctx)()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of every event inserted so far.
func (s *Store) Events() []domain.HoldEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.HoldEvent, len(s.events))
	copy(out, s.events)
	return out
}
