package service

import (
	"context"
	"sync"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/events"
	"storefront-checkout/internal/notify"
)

type notification struct {
	OrderID string
	Status  domain.OrderStatus
	Aud     notify.Audience
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, o *domain.CommerceOrder, st domain.OrderStatus, aud notify.Audience) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{o.ID, st, aud})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, ev events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type countingCache struct {
	mu          sync.Mutex
	entries     map[string]domain.CommerceOrder
	invalidated []string
}

func (c *countingCache) Get(_ context.Context, id string) (*domain.CommerceOrder, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	return &o, true, nil
}

func (c *countingCache) Set(_ context.Context, o *domain.CommerceOrder) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]domain.CommerceOrder{}
	}
	c.entries[o.ID] = *o
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

type nopMirror struct{}

func (nopMirror) MirrorStatus(context.Context, *domain.CommerceOrder, string) error { return nil }
