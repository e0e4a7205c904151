package crdb

import "context"

// Schema holds the DDL for the hold engine's tables. The CHECK constraints
// back the count-conservation invariant at the storage layer as well.
const Schema = `
CREATE TABLE IF NOT EXISTS schedule_inventories (
	schedule_id TEXT NOT NULL,
	class TEXT NOT NULL,
	partner_id TEXT NOT NULL,
	total_units INT NOT NULL CHECK (total_units >= 0),
	available_units INT NOT NULL CHECK (available_units >= 0),
	held_units INT NOT NULL CHECK (held_units >= 0),
	booked_units INT NOT NULL CHECK (booked_units >= 0),
	retired BOOL NOT NULL DEFAULT false,
	PRIMARY KEY (schedule_id, class),
	CONSTRAINT counts_conserved CHECK (available_units + held_units + booked_units = total_units)
);

CREATE TABLE IF NOT EXISTS inventory_units (
	schedule_id TEXT NOT NULL,
	class TEXT NOT NULL,
	unit_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('AVAILABLE', 'HELD', 'BOOKED')),
	PRIMARY KEY (schedule_id, class, unit_id)
);

CREATE TABLE IF NOT EXISTS holds (
	id UUID PRIMARY KEY,
	schedule_id TEXT NOT NULL,
	class TEXT NOT NULL,
	unit_ids TEXT[] NOT NULL,
	quantity INT NOT NULL CHECK (quantity >= 1),
	held_by TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'RELEASED', 'CONVERTED')),
	reason TEXT NOT NULL DEFAULT '',
	booking_ref TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	released_at TIMESTAMPTZ,
	CONSTRAINT expiry_after_creation CHECK (expires_at > created_at)
);

CREATE INDEX IF NOT EXISTS holds_active_expiry ON holds (expires_at) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	event_type TEXT NOT NULL,
	hold_id UUID NOT NULL,
	schedule_id TEXT NOT NULL,
	class TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED')),
	dedupe_key TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS outbox_unpublished ON outbox (created_at) WHERE status = 'NEW';
`

// EnsureSchema creates the tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}
