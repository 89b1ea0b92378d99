package widget

import (
	"context"

	"storefront-checkout/internal/domain"
)

// Payer settles a provider payment order the way a buyer would.
type Payer interface {
	Pay(paymentOrderID string) (domain.PaymentAttemptResult, error)
}

// SandboxSurface stands in for the hosted modal in simulations. Decide picks
// whether a given opening is paid; nil always pays.
type SandboxSurface struct {
	Payer  Payer
	Decide func(Config) bool
}

func (s SandboxSurface) Present(_ context.Context, cfg Config, cb Callbacks) error {
	go func() {
		if s.Decide != nil && !s.Decide(cfg) {
			cb.OnDismiss()
			return
		}
		res, err := s.Payer.Pay(cfg.PaymentOrderID)
		if err != nil {
			cb.OnDismiss()
			return
		}
		cb.OnComplete(res)
	}()
	return nil
}
