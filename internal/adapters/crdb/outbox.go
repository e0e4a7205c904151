package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/domain"
)

// OutboxRecord is one hold lifecycle event awaiting relay to the broker.
// Records are written by InsertEvent inside the same transaction as the
// inventory mutation they describe.
type OutboxRecord struct {
	ID          uuid.UUID
	EventType   string
	HoldID      uuid.UUID
	ScheduleID  string
	Class       string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
	Status      string // NEW, PUBLISHED
	DedupeKey   string
}

func (s *Store) InsertEvent(ctx context.Context, ev domain.HoldEvent) error {
	_, err := s.querier(ctx).Exec(ctx, `
		INSERT INTO outbox (id, event_type, hold_id, schedule_id, class, payload_json, created_at, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'NEW', $8)
	`, ev.ID, ev.Type, ev.HoldID, ev.Key.ScheduleID, ev.Key.Class, ev.Payload, ev.OccurredAt, ev.DedupeKey)
	if err != nil {
		return errors.Wrap(err, "insert outbox event")
	}
	return nil
}

// GetUnpublishedEvents picks up a batch of pending records. Call it inside
// WithTx: SKIP LOCKED only shields a batch from concurrent relays while the
// transaction that read it stays open.
func (s *Store) GetUnpublishedEvents(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := s.querier(ctx).Query(ctx, `
		SELECT id, event_type, hold_id, schedule_id, class, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "get unpublished events")
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.EventType, &rec.HoldID, &rec.ScheduleID, &rec.Class,
			&rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := s.querier(ctx).Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}

// OldestUnpublishedAge reports how far the relay is behind, for the lag gauge.
func (s *Store) OldestUnpublishedAge(ctx context.Context, now time.Time) (time.Duration, error) {
	var createdAt *time.Time
	err := s.querier(ctx).QueryRow(ctx, `
		SELECT MIN(created_at) FROM outbox WHERE status = 'NEW'
	`).Scan(&createdAt)
	if err != nil {
		return 0, err
	}
	if createdAt == nil {
		return 0, nil
	}
	return now.Sub(*createdAt), nil
}
