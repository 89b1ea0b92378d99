package payment

import (
	"context"
	"errors"

	"storefront-checkout/internal/domain"
)

// ErrProvider wraps any failure reported by the payment provider's API.
var ErrProvider = errors.New("payment provider")

type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// PaymentGateway creates provider-side payment orders. Signatures are
// checked locally with the key secret, never through the provider.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*domain.PaymentOrder, error)
}
