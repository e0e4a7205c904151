package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yatrago/hold-engine/internal/domain"
)

const (
	serializationFailureCode = "40001"
	uniqueViolationCode      = "23505"
)

// Store is the durable inventory store. Atomicity relies on SERIALIZABLE
// transactions plus a FOR UPDATE lock on the inventory row; conflicting
// sections either serialize on the row lock or abort with 40001, which is
// surfaced as domain.ErrSerializationFailure for the caller to retry.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type txKey struct{}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
		return domain.ErrSerializationFailure
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// querier routes statements through the ambient transaction when present.
func (s *Store) querier(ctx context.Context) interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
} {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *Store) CreateInventory(ctx context.Context, inv domain.ScheduleInventory) error {
	q := s.querier(ctx)
	_, err := q.Exec(ctx, `
		INSERT INTO schedule_inventories (schedule_id, class, partner_id, total_units, available_units, held_units, booked_units, retired)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`, inv.Key.ScheduleID, inv.Key.Class, inv.PartnerID, inv.TotalUnits, inv.AvailableUnits, inv.HeldUnits, inv.BookedUnits)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "create inventory")
	}

	for id, status := range inv.Units {
		_, err := q.Exec(ctx, `
			INSERT INTO inventory_units (schedule_id, class, unit_id, status)
			VALUES ($1, $2, $3, $4)
		`, inv.Key.ScheduleID, inv.Key.Class, id, status)
		if err != nil {
			return errors.Wrap(err, "create inventory unit")
		}
	}
	return nil
}

func (s *Store) GetInventory(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error) {
	return s.getInventory(ctx, key, false)
}

func (s *Store) GetInventoryForUpdate(ctx context.Context, key domain.InventoryKey) (domain.ScheduleInventory, error) {
	return s.getInventory(ctx, key, true)
}

func (s *Store) getInventory(ctx context.Context, key domain.InventoryKey, forUpdate bool) (domain.ScheduleInventory, error) {
	q := s.querier(ctx)

	query := `
		SELECT partner_id, total_units, available_units, held_units, booked_units, retired
		FROM schedule_inventories WHERE schedule_id = $1 AND class = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	inv := domain.ScheduleInventory{Key: key}
	err := q.QueryRow(ctx, query, key.ScheduleID, key.Class).Scan(
		&inv.PartnerID, &inv.TotalUnits, &inv.AvailableUnits, &inv.HeldUnits, &inv.BookedUnits, &inv.Retired)
	if err == pgx.ErrNoRows {
		return domain.ScheduleInventory{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ScheduleInventory{}, errors.Wrap(err, "get inventory")
	}

	rows, err := q.Query(ctx, `
		SELECT unit_id, status FROM inventory_units WHERE schedule_id = $1 AND class = $2
	`, key.ScheduleID, key.Class)
	if err != nil {
		return domain.ScheduleInventory{}, errors.Wrap(err, "get inventory units")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var status domain.UnitStatus
		if err := rows.Scan(&id, &status); err != nil {
			return domain.ScheduleInventory{}, err
		}
		if inv.Units == nil {
			inv.Units = make(map[string]domain.UnitStatus)
		}
		inv.Units[id] = status
	}
	return inv, rows.Err()
}

func (s *Store) RetireInventory(ctx context.Context, key domain.InventoryKey) error {
	result, err := s.querier(ctx).Exec(ctx, `
		UPDATE schedule_inventories SET retired = true WHERE schedule_id = $1 AND class = $2
	`, key.ScheduleID, key.Class)
	if err != nil {
		return errors.Wrap(err, "retire inventory")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustCounts(ctx context.Context, key domain.InventoryKey, availableDelta, heldDelta, bookedDelta int) error {
	result, err := s.querier(ctx).Exec(ctx, `
		UPDATE schedule_inventories
		SET available_units = available_units + $3,
		    held_units = held_units + $4,
		    booked_units = booked_units + $5
		WHERE schedule_id = $1 AND class = $2
	`, key.ScheduleID, key.Class, availableDelta, heldDelta, bookedDelta)
	if err != nil {
		// The CHECK constraints on the counts reject any mutation that
		// would break available + held + booked == total.
		return errors.Wrap(err, "adjust counts")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) MarkUnits(ctx context.Context, key domain.InventoryKey, units []string, status domain.UnitStatus) error {
	result, err := s.querier(ctx).Exec(ctx, `
		UPDATE inventory_units SET status = $4
		WHERE schedule_id = $1 AND class = $2 AND unit_id = ANY($3)
	`, key.ScheduleID, key.Class, units, status)
	if err != nil {
		return errors.Wrap(err, "mark units")
	}
	if int(result.RowsAffected()) != len(units) {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetHold(ctx context.Context, holdID uuid.UUID) (domain.HoldRecord, error) {
	var h domain.HoldRecord
	err := s.querier(ctx).QueryRow(ctx, `
		SELECT id, schedule_id, class, unit_ids, quantity, held_by, status, reason, booking_ref, created_at, expires_at, released_at
		FROM holds WHERE id = $1
	`, holdID).Scan(&h.ID, &h.Key.ScheduleID, &h.Key.Class, &h.Units, &h.Quantity, &h.HeldBy,
		&h.Status, &h.Reason, &h.BookingRef, &h.CreatedAt, &h.ExpiresAt, &h.ReleasedAt)
	if err == pgx.ErrNoRows {
		return domain.HoldRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.HoldRecord{}, errors.Wrap(err, "get hold")
	}
	return h, nil
}

func (s *Store) CreateHold(ctx context.Context, h domain.HoldRecord) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO holds (id, schedule_id, class, unit_ids, quantity, held_by, status, reason, booking_ref, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, '', '', $8, $9)
	`, h.ID, h.Key.ScheduleID, h.Key.Class, h.Units, h.Quantity, h.HeldBy, h.Status, h.CreatedAt, h.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return errors.Wrap(err, "create hold")
	}
	return nil
}

func (s *Store) FinishHold(ctx context.Context, holdID uuid.UUID, status domain.HoldStatus, reason domain.ReleaseReason, bookingRef string, at time.Time) error {
	result, err := s.querier(ctx).Exec(ctx, `
		UPDATE holds SET status = $2, reason = $3, booking_ref = $4, released_at = $5
		WHERE id = $1 AND status = 'ACTIVE'
	`, holdID, status, reason, bookingRef, at)
	if err != nil {
		return errors.Wrap(err, "finish hold")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (s *Store) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.HoldRecord, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, schedule_id, class, unit_ids, quantity, held_by, status, reason, booking_ref, created_at, expires_at, released_at
		FROM holds WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list expired holds")
	}
	defer rows.Close()

	var holds []domain.HoldRecord
	for rows.Next() {
		var h domain.HoldRecord
		if err := rows.Scan(&h.ID, &h.Key.ScheduleID, &h.Key.Class, &h.Units, &h.Quantity, &h.HeldBy,
			&h.Status, &h.Reason, &h.BookingRef, &h.CreatedAt, &h.ExpiresAt, &h.ReleasedAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	return holds, rows.Err()
}
