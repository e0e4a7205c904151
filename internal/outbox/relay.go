package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/yatrago/hold-engine/internal/adapters/crdb"
	"github.com/yatrago/hold-engine/internal/adapters/rabbit"
	"github.com/yatrago/hold-engine/internal/observability"
)

// Relay drains the outbox and publishes hold events to RabbitMQ. Events are
// written transactionally with the inventory mutation, so the relay is the
// at-least-once leg; consumers dedupe on the message id.
type Relay struct {
	store     *crdb.Store
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(store *crdb.Store, rabbitPub *rabbit.Publisher, logger observability.Logger) *Relay {
	return &Relay{
		store:     store,
		rabbitPub: rabbitPub,
		logger:    logger,
		interval:  5 * time.Second,
		batchSize: 50,
	}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started")
	r.DrainOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.DrainOnce(ctx)
		}
	}
}

// DrainOnce publishes one batch of pending events and updates the lag
// gauge. The fetch and the publish marks share one transaction so the
// SKIP LOCKED row locks pin the batch until it is marked; a concurrent
// relay skips past it instead of publishing it again.
func (r *Relay) DrainOnce(ctx context.Context) {
	err := r.store.WithTx(ctx, func(ctx context.Context) error {
		records, err := r.store.GetUnpublishedEvents(ctx, r.batchSize)
		if err != nil {
			return err
		}

		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Timestamp:   rec.CreatedAt,
				Body:        rec.Payload,
			}
			if err := r.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
				r.logger.WithError(err).WithField("event_id", rec.ID.String()).Error("failed to publish event")
				continue
			}
			if err := r.store.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.WithError(err).Error("failed to drain outbox")
		return
	}

	lag, err := r.store.OldestUnpublishedAge(ctx, time.Now())
	if err == nil {
		observability.OutboxLag.Set(lag.Seconds())
	}
}
