package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yatrago/hold-engine/internal/domain"
	"github.com/yatrago/hold-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends every hold transition for back-office reporting.
// Writes are best-effort; a failed append is logged, never propagated into
// the hold operation that triggered it.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("hold_audit"),
		logger: logger,
	}
}

type auditDoc struct {
	ID         uuid.UUID `bson:"_id"`
	Action     string    `bson:"action"`
	HoldID     string    `bson:"hold_id"`
	ScheduleID string    `bson:"schedule_id"`
	Class      string    `bson:"class"`
	Units      []string  `bson:"units,omitempty"`
	Quantity   int       `bson:"quantity"`
	HeldBy     string    `bson:"held_by"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data,omitempty"`
}

func (a *AuditLogger) RecordTransition(ctx context.Context, action string, h domain.HoldRecord) {
	doc := auditDoc{
		ID:         uuid.New(),
		Action:     action,
		HoldID:     h.ID.String(),
		ScheduleID: h.Key.ScheduleID,
		Class:      h.Key.Class,
		Units:      h.Units,
		Quantity:   h.Quantity,
		HeldBy:     h.HeldBy,
		Timestamp:  time.Now(),
	}
	switch {
	case h.Reason != "":
		doc.Data = bson.M{"reason": h.Reason}
	case h.BookingRef != "":
		doc.Data = bson.M{"booking_ref": h.BookingRef}
	}
	if _, err := a.coll.InsertOne(ctx, doc); err != nil {
		a.logger.WithError(err).Error("failed to insert hold audit entry")
	}
}
