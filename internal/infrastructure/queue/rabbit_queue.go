package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"storefront-checkout/internal/notify"
)

// channel is the part of *amqp.Channel this queue uses.
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// RabbitQueue is a durable notify.Queue and notify.Source. Messages survive
// a restart of this process.
type RabbitQueue struct {
	ch   channel
	name string
	log  *slog.Logger
}

func NewRabbitQueue(ch *amqp.Channel, name string, log *slog.Logger) (*RabbitQueue, error) {
	return newRabbitQueue(ch, name, log)
}

func newRabbitQueue(ch channel, name string, log *slog.Logger) (*RabbitQueue, error) {
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	// one unacked message at a time keeps sends strictly sequential
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &RabbitQueue{ch: ch, name: name, log: log}, nil
}

func (q *RabbitQueue) Enqueue(ctx context.Context, m notify.Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	err = q.ch.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    m.ID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (q *RabbitQueue) Deliveries(ctx context.Context) (<-chan notify.Envelope, error) {
	msgs, err := q.ch.ConsumeWithContext(ctx,
		q.name,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan notify.Envelope)
	go func() {
		defer close(out)
		for d := range msgs {
			var m notify.Message
			if err := json.Unmarshal(d.Body, &m); err != nil {
				q.log.Error("dropping undecodable notification", "err", err, "message_id", d.MessageId)
				_ = d.Nack(false, false)
				continue
			}
			env := notify.Envelope{
				Message: m,
				Ack:     func() { _ = d.Ack(false) },
				Nack:    func(requeue bool) { _ = d.Nack(false, requeue) },
			}
			select {
			case out <- env:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}
