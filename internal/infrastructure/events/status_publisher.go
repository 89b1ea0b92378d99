package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"storefront-checkout/internal/domain"
)

// StatusChanged is emitted once per actual commerce-order transition.
type StatusChanged struct {
	OrderID     string             `json:"orderId"`
	OrderNumber string             `json:"orderNumber"`
	From        domain.OrderStatus `json:"from"`
	To          domain.OrderStatus `json:"to"`
	Note        string             `json:"note,omitempty"`
	TotalMinor  int64              `json:"totalMinor"`
	At          time.Time          `json:"at"`
}

type StatusPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Retry.Max = 3
	cfg.Net.DialTimeout = 5 * time.Second
	return cfg
}

// NewStatusPublisher dials the brokers with a synchronous producer.
func NewStatusPublisher(brokers []string, topic string) (*StatusPublisher, error) {
	p, err := sarama.NewSyncProducer(brokers, NewProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return NewStatusPublisherWithProducer(p, topic), nil
}

func NewStatusPublisherWithProducer(p sarama.SyncProducer, topic string) *StatusPublisher {
	return &StatusPublisher{producer: p, topic: topic}
}

// PublishStatusChanged keys messages by order id so a consumer sees one
// order's transitions in order.
func (p *StatusPublisher) PublishStatusChanged(ctx context.Context, ev StatusChanged) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.OrderID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte("order.status_changed")},
		},
	})
	if err != nil {
		return fmt.Errorf("publish status change: %w", err)
	}
	return nil
}

func (p *StatusPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusChanged(context.Context, StatusChanged) error { return nil }
func (NopPublisher) Close() error                                              { return nil }
