package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mongoadapter "github.com/yatrago/hold-engine/internal/adapters/mongo"
	"github.com/yatrago/hold-engine/internal/config"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/hold"
	"github.com/yatrago/hold-engine/internal/idempotency"
)

// ScheduleCatalog is the slice of the catalog the handlers need.
type ScheduleCatalog interface {
	GetSchedule(ctx context.Context, id string) (*mongoadapter.ScheduleDoc, error)
	CreateSchedule(ctx context.Context, doc mongoadapter.ScheduleDoc) error
	SetActive(ctx context.Context, id string, active bool) error
}

// PolicyAdmin persists partner policy updates.
type PolicyAdmin interface {
	UpsertPolicy(ctx context.Context, pol domain.PartnerPolicy) error
}

// PolicyInvalidator drops cached policy snapshots after an admin update.
type PolicyInvalidator interface {
	Invalidate(ctx context.Context, partnerID string)
}

// IdempotencyStore replays responses for retried hold requests.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*idempotency.Response, error)
	Set(ctx context.Context, key string, resp idempotency.Response) error
}

type Handlers struct {
	cfg         *config.Config
	mgr         *hold.Manager
	catalog     ScheduleCatalog
	policyAdmin PolicyAdmin
	invalidator PolicyInvalidator
	idemp       IdempotencyStore
}

func NewHandlers(cfg *config.Config, mgr *hold.Manager, catalog ScheduleCatalog, policyAdmin PolicyAdmin, invalidator PolicyInvalidator, idemp IdempotencyStore) *Handlers {
	return &Handlers{
		cfg:         cfg,
		mgr:         mgr,
		catalog:     catalog,
		policyAdmin: policyAdmin,
		invalidator: invalidator,
		idemp:       idemp,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) []byte {
	data, _ := json.Marshal(body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

// writeHoldError maps the hold engine's error taxonomy onto HTTP statuses.
func writeHoldError(w http.ResponseWriter, err error) {
	var qe *domain.QuotaExceededError
	if errors.As(err, &qe) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":          "quota_exceeded",
			"max_allowed":    qe.MaxAllowed,
			"currently_held": qe.CurrentlyHeld,
			"requested":      qe.Requested,
		})
		return
	}
	var ue *domain.UnitUnavailableError
	if errors.As(err, &ue) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error": "units_unavailable",
			"units": ue.Units,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not_found"})
	case errors.Is(err, domain.ErrInactiveSchedule):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "inactive_schedule"})
	case errors.Is(err, domain.ErrPolicyDisabled):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"error": "holds_disabled"})
	case errors.Is(err, domain.ErrAlreadyTerminal):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "already_terminal"})
	case errors.Is(err, domain.ErrInsufficientCapacity):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "insufficient_capacity"})
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrUnitsRequired),
		errors.Is(err, domain.ErrNotAddressable):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
	case errors.Is(err, domain.ErrSerializationFailure):
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "conflict, try again"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
	}
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err == nil && existing != nil {
		if existing.HoldID != "" {
			w.Header().Set("X-Hold-ID", existing.HoldID)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		ScheduleID string   `json:"schedule_id"`
		Class      string   `json:"class"`
		Units      []string `json:"units"`
		Quantity   int      `json:"quantity"`
		HeldBy     string   `json:"held_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	rec, err := h.mgr.RequestHold(r.Context(), hold.RequestHoldInput{
		Key:      domain.InventoryKey{ScheduleID: req.ScheduleID, Class: req.Class},
		Units:    req.Units,
		Quantity: req.Quantity,
		HeldBy:   req.HeldBy,
	})
	if err != nil {
		writeHoldError(w, err)
		return
	}

	w.Header().Set("X-Hold-ID", rec.ID.String())
	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"hold_id":    rec.ID,
		"units":      rec.Units,
		"quantity":   rec.Quantity,
		"expires_at": rec.ExpiresAt.Format(time.RFC3339),
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{
		Status: http.StatusCreated,
		HoldID: rec.ID.String(),
		Result: data,
	})
}

func (h *Handlers) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid id"})
		return
	}

	if err := h.mgr.ReleaseHold(r.Context(), id, domain.ReleaseReasonCancelled); err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": string(domain.HoldStatusReleased)})
}

func (h *Handlers) ConvertHold(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid id"})
		return
	}

	var req struct {
		BookingRef string `json:"booking_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BookingRef == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "booking_ref required"})
		return
	}

	if err := h.mgr.ConvertHold(r.Context(), id, req.BookingRef); err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      string(domain.HoldStatusConverted),
		"booking_ref": req.BookingRef,
	})
}

func (h *Handlers) QuotaStatus(w http.ResponseWriter, r *http.Request) {
	key := domain.InventoryKey{
		ScheduleID: chi.URLParam(r, "scheduleID"),
		Class:      chi.URLParam(r, "class"),
	}

	st, err := h.mgr.QuotaStatus(r.Context(), key)
	if err != nil {
		writeHoldError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_units":        st.TotalUnits,
		"max_holdable":       st.MaxHoldable,
		"currently_held":     st.CurrentlyHeld,
		"available_for_hold": st.AvailableForHold,
		"hold_expiry":        st.HoldExpiry.String(),
	})
}

// CreateSchedule publishes a schedule: catalog metadata plus one inventory
// row per class.
func (h *Handlers) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleID string `json:"schedule_id"`
		PartnerID  string `json:"partner_id"`
		Mode       string `json:"mode"`
		Name       string `json:"name"`
		DepartsAt  string `json:"departs_at"`
		Classes    []struct {
			Class      string   `json:"class"`
			TotalUnits int      `json:"total_units"`
			UnitIDs    []string `json:"unit_ids"`
		} `json:"classes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.ScheduleID == "" || req.PartnerID == "" || len(req.Classes) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "schedule_id, partner_id and classes required"})
		return
	}

	// The catalog doc is written last, so its presence marks a completed
	// publish. Probing it first makes a duplicate publish a clean 409.
	if _, err := h.catalog.GetSchedule(r.Context(), req.ScheduleID); err == nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "schedule already published"})
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		loggerFrom(r.Context()).WithError(err).Error("catalog lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
		return
	}

	departsAt, _ := time.Parse(time.RFC3339, req.DepartsAt)
	doc := mongoadapter.ScheduleDoc{
		ID:        req.ScheduleID,
		PartnerID: req.PartnerID,
		Mode:      req.Mode,
		Name:      req.Name,
		DepartsAt: departsAt,
	}
	for _, c := range req.Classes {
		doc.Classes = append(doc.Classes, mongoadapter.ClassDoc{
			Class:      c.Class,
			TotalUnits: c.TotalUnits,
			UnitIDs:    c.UnitIDs,
		})
	}

	for _, c := range req.Classes {
		inv := domain.NewScheduleInventory(
			domain.InventoryKey{ScheduleID: req.ScheduleID, Class: c.Class},
			req.PartnerID, c.TotalUnits, c.UnitIDs)
		err := h.mgr.PublishInventory(r.Context(), inv)
		if errors.Is(err, domain.ErrConflict) {
			// leftover row from an attempt that died before the catalog
			// write; the retry picks up where it stopped
			continue
		}
		if err != nil {
			writeHoldError(w, err)
			return
		}
	}

	if err := h.catalog.CreateSchedule(r.Context(), doc); err != nil {
		loggerFrom(r.Context()).WithError(err).Error("catalog write failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"schedule_id": req.ScheduleID})
}

// RetireSchedule soft-retires a schedule and all of its class inventories.
func (h *Handlers) RetireSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := h.catalog.GetSchedule(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not_found"})
		return
	}
	if err != nil {
		loggerFrom(r.Context()).WithError(err).Error("catalog lookup failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
		return
	}

	for _, c := range doc.Classes {
		key := domain.InventoryKey{ScheduleID: id, Class: c.Class}
		if err := h.mgr.RetireInventory(r.Context(), key); err != nil && !errors.Is(err, domain.ErrNotFound) {
			writeHoldError(w, err)
			return
		}
	}
	if err := h.catalog.SetActive(r.Context(), id, false); err != nil {
		loggerFrom(r.Context()).WithError(err).Error("catalog write failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schedule_id": id, "active": false})
}

// UpdatePartnerPolicy validates and stores a partner's hold policy, then
// invalidates the cached snapshot so the change takes effect promptly.
func (h *Handlers) UpdatePartnerPolicy(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "id")

	var req struct {
		HoldEnabled   bool    `json:"hold_enabled"`
		HoldQuotaPct  float64 `json:"hold_quota_pct"`
		HoldExpirySec int64   `json:"hold_expiry_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	if req.HoldQuotaPct < 0 || req.HoldQuotaPct > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "hold_quota_pct must be between 0 and 100"})
		return
	}
	if req.HoldExpirySec <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "hold_expiry_seconds must be positive"})
		return
	}

	pol := domain.PartnerPolicy{
		PartnerID:    partnerID,
		HoldEnabled:  req.HoldEnabled,
		HoldQuotaPct: req.HoldQuotaPct,
		HoldExpiry:   time.Duration(req.HoldExpirySec) * time.Second,
	}
	if err := h.policyAdmin.UpsertPolicy(r.Context(), pol); err != nil {
		loggerFrom(r.Context()).WithError(err).Error("policy write failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "internal"})
		return
	}
	h.invalidator.Invalidate(r.Context(), partnerID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"partner_id": partnerID})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
