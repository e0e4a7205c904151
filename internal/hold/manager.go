package hold

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/clock"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/observability"
)

// Store is the durable inventory state the manager mutates. Every method
// except WithTx must be called inside a WithTx section; the transaction (or
// the in-memory lock) rides the context. Implementations guarantee that a
// WithTx section is atomic per inventory key.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateInventory(ctx context.Context, inv domain.ScheduleInventory) error
	GetInventory(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error)
	GetInventoryForUpdate(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error)
	RetireInventory(ctx context.Context, key domain.InventoryKey) error
	AdjustCounts(ctx context.Context, key domain.InventoryKey, availableDelta, heldDelta, bookedDelta int) error
	MarkUnits(ctx context.Context, key domain.InventoryKey, units []string, status domain.UnitStatus) error

	GetHold(ctx context.Context, holdID uuid.UUID) (domain.HoldRecord, error)
	CreateHold(ctx context.Context, h domain.HoldRecord) error
	FinishHold(ctx context.Context, holdID uuid.UUID, status domain.HoldStatus, reason domain.ReleaseReason, bookingRef string, at time.Time) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.HoldRecord, error)

	InsertEvent(ctx context.Context, ev domain.HoldEvent) error
}

// PolicyProvider supplies the per-partner hold configuration. Lookups may
// be served from a bounded-staleness cache.
type PolicyProvider interface {
	GetPolicy(ctx context.Context, partnerID string) (domain.PartnerPolicy, error)
}

// Auditor records hold transitions for back-office reporting. Calls are
// best-effort and happen after the transaction commits.
type Auditor interface {
	RecordTransition(ctx context.Context, action string, h domain.HoldRecord)
}

// Manager is the sole mutator of inventory counts, unit statuses and hold
// lifecycle. Partner policy is always fetched before the atomic section;
// nothing network-bound runs while the inventory is locked.
type Manager struct {
	store      Store
	policies   PolicyProvider
	clock      clock.Clock
	logger     observability.Logger
	auditor    Auditor
	defaultTTL time.Duration
}

const defaultHoldTTL = 5 * time.Minute

type ManagerOption func(*Manager)

// WithDefaultTTL sets the expiry used when the partner policy carries none.
func WithDefaultTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.defaultTTL = d
		}
	}
}

// WithAuditor attaches a transition auditor.
func WithAuditor(a Auditor) ManagerOption {
	return func(m *Manager) {
		m.auditor = a
	}
}

func NewManager(store Store, policies PolicyProvider, clk clock.Clock, logger observability.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:      store,
		policies:   policies,
		clock:      clk,
		logger:     logger,
		defaultTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type RequestHoldInput struct {
	Key domain.InventoryKey
	// Units selects specific seats; leave empty for count-only inventory.
	Units []string
	// Quantity is the number of units for count-only requests. Ignored
	// when Units is set.
	Quantity int
	HeldBy   string
	// ExpiryOverride replaces the policy expiry when positive.
	ExpiryOverride time.Duration
}

// RequestHold atomically claims units and creates an ACTIVE hold. Quota and
// unit-availability checks run inside the same atomic section as the
// mutation, so two concurrent requests can never both pass the check and
// oversubscribe the inventory.
func (m *Manager) RequestHold(ctx context.Context, in RequestHoldInput) (domain.HoldRecord, error) {
	qty := in.Quantity
	if len(in.Units) > 0 {
		qty = len(in.Units)
	}
	if qty <= 0 {
		return domain.HoldRecord{}, domain.ErrInvalidQuantity
	}

	// Snapshot read to learn the owning partner, then fetch policy before
	// taking the inventory lock.
	snap, err := m.store.GetInventory(ctx, in.Key)
	if err != nil {
		return domain.HoldRecord{}, err
	}
	if snap.Retired {
		return domain.HoldRecord{}, domain.ErrInactiveSchedule
	}
	pol, err := m.policies.GetPolicy(ctx, snap.PartnerID)
	if err != nil {
		return domain.HoldRecord{}, err
	}
	if !pol.HoldEnabled {
		return domain.HoldRecord{}, domain.ErrPolicyDisabled
	}

	ttl := pol.HoldExpiry
	if in.ExpiryOverride > 0 {
		ttl = in.ExpiryOverride
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	now := m.clock.Now()
	var rec domain.HoldRecord

	err = m.store.WithTx(ctx, func(ctx context.Context) error {
		inv, err := m.store.GetInventoryForUpdate(ctx, in.Key)
		if err != nil {
			return err
		}
		if inv.Retired {
			return domain.ErrInactiveSchedule
		}

		maxHoldable := domain.MaxHoldableUnits(inv.TotalUnits, pol.HoldQuotaPct)
		if inv.HeldUnits+qty > maxHoldable {
			return &domain.QuotaExceededError{
				MaxAllowed:    maxHoldable,
				CurrentlyHeld: inv.HeldUnits,
				Requested:     qty,
			}
		}

		if len(in.Units) > 0 {
			if !inv.Addressable() {
				return domain.ErrNotAddressable
			}
			var conflicts []string
			for _, u := range in.Units {
				if st, ok := inv.Units[u]; !ok || st != domain.UnitAvailable {
					conflicts = append(conflicts, u)
				}
			}
			if len(conflicts) > 0 {
				return &domain.UnitUnavailableError{Units: conflicts}
			}
			if err := m.store.MarkUnits(ctx, in.Key, in.Units, domain.UnitHeld); err != nil {
				return err
			}
		} else {
			if inv.Addressable() {
				return domain.ErrUnitsRequired
			}
			if qty > inv.AvailableUnits {
				return domain.ErrInsufficientCapacity
			}
		}

		if err := m.store.AdjustCounts(ctx, in.Key, -qty, qty, 0); err != nil {
			return err
		}

		rec = domain.NewHold(in.Key, in.Units, qty, in.HeldBy, now, ttl)
		if err := m.store.CreateHold(ctx, rec); err != nil {
			return err
		}
		return m.insertEvent(ctx, domain.EventHoldCreated, rec, now)
	})
	if err != nil {
		if _, ok := asQuotaExceeded(err); ok {
			observability.QuotaRejections.Inc()
		}
		return domain.HoldRecord{}, err
	}

	observability.HoldsCreated.Inc()
	observability.ActiveHoldUnits.Add(float64(qty))
	m.audit(ctx, domain.EventHoldCreated, rec)
	return rec, nil
}

// ReleaseHold returns a hold's units to availability. Releasing a hold that
// is no longer ACTIVE returns ErrAlreadyTerminal and changes nothing, which
// makes sweeper/user/conversion races last-writer-wins safe.
func (m *Manager) ReleaseHold(ctx context.Context, holdID uuid.UUID, reason domain.ReleaseReason) error {
	now := m.clock.Now()
	var rec domain.HoldRecord

	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		h, err := m.store.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if h.Terminal() {
			return domain.ErrAlreadyTerminal
		}

		if len(h.Units) > 0 {
			if err := m.store.MarkUnits(ctx, h.Key, h.Units, domain.UnitAvailable); err != nil {
				return err
			}
		}
		if err := m.store.AdjustCounts(ctx, h.Key, h.Quantity, -h.Quantity, 0); err != nil {
			return err
		}
		if err := m.store.FinishHold(ctx, holdID, domain.HoldStatusReleased, reason, "", now); err != nil {
			return err
		}

		h.Status = domain.HoldStatusReleased
		h.Reason = reason
		h.ReleasedAt = &now
		rec = h
		return m.insertEvent(ctx, domain.EventHoldReleased, rec, now)
	})
	if err != nil {
		return err
	}

	observability.HoldsReleased.WithLabelValues(string(reason)).Inc()
	observability.ActiveHoldUnits.Sub(float64(rec.Quantity))
	m.audit(ctx, domain.EventHoldReleased, rec)
	return nil
}

// ConvertHold moves a hold's units from held to booked after the booking
// has durably succeeded. Retrying a conversion with the same booking
// reference is a no-op success, so a crash between payment confirmation and
// conversion is recovered by simply calling again.
func (m *Manager) ConvertHold(ctx context.Context, holdID uuid.UUID, bookingRef string) error {
	now := m.clock.Now()
	var rec domain.HoldRecord
	var replayed bool

	err := m.store.WithTx(ctx, func(ctx context.Context) error {
		h, err := m.store.GetHold(ctx, holdID)
		if err != nil {
			return err
		}
		if h.Status == domain.HoldStatusConverted && h.BookingRef == bookingRef {
			replayed = true
			return nil
		}
		if h.Terminal() {
			return domain.ErrAlreadyTerminal
		}

		if len(h.Units) > 0 {
			if err := m.store.MarkUnits(ctx, h.Key, h.Units, domain.UnitBooked); err != nil {
				return err
			}
		}
		if err := m.store.AdjustCounts(ctx, h.Key, 0, -h.Quantity, h.Quantity); err != nil {
			return err
		}
		if err := m.store.FinishHold(ctx, holdID, domain.HoldStatusConverted, "", bookingRef, now); err != nil {
			return err
		}

		h.Status = domain.HoldStatusConverted
		h.BookingRef = bookingRef
		h.ReleasedAt = &now
		rec = h
		return m.insertEvent(ctx, domain.EventHoldConverted, rec, now)
	})
	if err != nil {
		return err
	}
	if replayed {
		return nil
	}

	observability.HoldsConverted.Inc()
	observability.ActiveHoldUnits.Sub(float64(rec.Quantity))
	m.audit(ctx, domain.EventHoldConverted, rec)
	return nil
}

// QuotaStatus reports the hold headroom for one inventory. Read-only.
type QuotaStatus struct {
	TotalUnits       int
	MaxHoldable      int
	CurrentlyHeld    int
	AvailableForHold int
	HoldExpiry       time.Duration
}

func (m *Manager) QuotaStatus(ctx context.Context, key domain.InventoryKey) (QuotaStatus, error) {
	inv, err := m.store.GetInventory(ctx, key)
	if err != nil {
		return QuotaStatus{}, err
	}
	pol, err := m.policies.GetPolicy(ctx, inv.PartnerID)
	if err != nil {
		return QuotaStatus{}, err
	}

	st := QuotaStatus{
		TotalUnits:    inv.TotalUnits,
		CurrentlyHeld: inv.HeldUnits,
		HoldExpiry:    pol.HoldExpiry,
	}
	if st.HoldExpiry <= 0 {
		st.HoldExpiry = m.defaultTTL
	}
	if !pol.HoldEnabled {
		return st, nil
	}
	st.MaxHoldable = domain.MaxHoldableUnits(inv.TotalUnits, pol.HoldQuotaPct)
	st.AvailableForHold = st.MaxHoldable - inv.HeldUnits
	if st.AvailableForHold > inv.AvailableUnits {
		st.AvailableForHold = inv.AvailableUnits
	}
	if st.AvailableForHold < 0 {
		st.AvailableForHold = 0
	}
	return st, nil
}

// PublishInventory creates the inventory row for a newly published
// schedule/class. Operator-facing; fails on duplicate keys.
func (m *Manager) PublishInventory(ctx context.Context, inv domain.ScheduleInventory) error {
	if inv.TotalUnits <= 0 {
		return domain.ErrInvalidQuantity
	}
	if inv.Addressable() && len(inv.Units) != inv.TotalUnits {
		return domain.ErrInvalidQuantity
	}
	return m.store.WithTx(ctx, func(ctx context.Context) error {
		return m.store.CreateInventory(ctx, inv)
	})
}

// RetireInventory soft-retires an inventory; existing holds and bookings
// keep referencing it, new holds are rejected.
func (m *Manager) RetireInventory(ctx context.Context, key domain.InventoryKey) error {
	return m.store.WithTx(ctx, func(ctx context.Context) error {
		return m.store.RetireInventory(ctx, key)
	})
}

func (m *Manager) insertEvent(ctx context.Context, eventType string, h domain.HoldRecord, now time.Time) error {
	payload, err := json.Marshal(map[string]interface{}{
		"hold_id":     h.ID,
		"schedule_id": h.Key.ScheduleID,
		"class":       h.Key.Class,
		"units":       h.Units,
		"quantity":    h.Quantity,
		"held_by":     h.HeldBy,
		"status":      h.Status,
		"reason":      h.Reason,
		"booking_ref": h.BookingRef,
		"expires_at":  h.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return m.store.InsertEvent(ctx, domain.HoldEvent{
		ID:         uuid.New(),
		Type:       eventType,
		HoldID:     h.ID,
		Key:        h.Key,
		Payload:    payload,
		DedupeKey:  h.ID.String() + ":" + eventType,
		OccurredAt: now,
	})
}

func (m *Manager) audit(ctx context.Context, action string, h domain.HoldRecord) {
	if m.auditor == nil {
		return
	}
	m.auditor.RecordTransition(ctx, action, h)
}

func asQuotaExceeded(err error) (*domain.QuotaExceededError, bool) {
	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
