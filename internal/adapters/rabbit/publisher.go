package rabbit

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchange = "holds.events"

// Publisher fans hold lifecycle events out to collaborator services
// (booking pricing, payment confirmation, notifications) on a topic
// exchange keyed by event type.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, key, false, false, msg)
}
