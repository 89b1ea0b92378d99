package service

import (
	"context"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/events"
	"storefront-checkout/internal/notify"
)

type OrderCache interface {
	Get(ctx context.Context, id string) (*domain.CommerceOrder, bool, error)
	Set(ctx context.Context, o *domain.CommerceOrder) error
	Invalidate(ctx context.Context, id string) error
}

type StatusPublisher interface {
	PublishStatusChanged(ctx context.Context, ev events.StatusChanged) error
}

type StatusMirror interface {
	MirrorStatus(ctx context.Context, order *domain.CommerceOrder, note string) error
}

type Notifier interface {
	Notify(ctx context.Context, order *domain.CommerceOrder, status domain.OrderStatus, aud notify.Audience)
}
