// Package widget drives the provider's hosted checkout modal. The modal is
// opaque: it is presented through a Surface and reports back exactly once,
// either with a signed payment result or a dismissal.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"storefront-checkout/internal/domain"
)

// ErrDismissed is returned by Attempt.Wait when the buyer closed the modal
// without paying.
var ErrDismissed = errors.New("widget: payment dismissed")

type Prefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Config is what the hosted modal is opened with. AmountMinor is in paise.
type Config struct {
	KeyID          string            `json:"key"`
	AmountMinor    int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	PaymentOrderID string            `json:"order_id"`
	Prefill        Prefill           `json:"prefill"`
	Notes          map[string]string `json:"notes,omitempty"`
	ThemeColor     string            `json:"theme_color,omitempty"`
}

type Callbacks struct {
	OnComplete func(domain.PaymentAttemptResult)
	OnDismiss  func()
}

// Surface presents the modal. Implementations call exactly one of the
// callbacks, possibly from another goroutine. A returned error means the
// modal never opened. Present runs on its own goroutine and may block.
type Surface interface {
	Present(ctx context.Context, cfg Config, cb Callbacks) error
}

type Adapter struct {
	loader  *ScriptLoader
	surface Surface
	log     *slog.Logger
}

func NewAdapter(loader *ScriptLoader, surface Surface, log *slog.Logger) *Adapter {
	return &Adapter{loader: loader, surface: surface, log: log}
}

// Open loads the checkout script if needed and hands the modal to the
// surface without waiting for it. The outcome, including a surface that
// refuses to open, arrives on Attempt.Wait.
func (a *Adapter) Open(ctx context.Context, cfg Config) (*Attempt, error) {
	if err := a.loader.Load(ctx); err != nil {
		return nil, &domain.WidgetUnavailableError{Cause: err}
	}

	at := &Attempt{done: make(chan struct{})}
	cb := Callbacks{
		OnComplete: func(res domain.PaymentAttemptResult) { at.settle(res, nil) },
		OnDismiss:  func() { at.settle(domain.PaymentAttemptResult{}, ErrDismissed) },
	}
	go func() {
		if err := a.surface.Present(ctx, cfg, cb); err != nil {
			a.log.Warn("checkout widget refused to open", "payment_order_id", cfg.PaymentOrderID, "err", err)
			at.settle(domain.PaymentAttemptResult{}, &domain.WidgetUnavailableError{Cause: err})
		}
	}()
	a.log.Debug("checkout widget opened", "payment_order_id", cfg.PaymentOrderID, "amount_minor", cfg.AmountMinor)
	return at, nil
}

// Attempt is one opening of the modal.
type Attempt struct {
	once   sync.Once
	done   chan struct{}
	result domain.PaymentAttemptResult
	err    error
}

func (at *Attempt) settle(res domain.PaymentAttemptResult, err error) {
	at.once.Do(func() {
		at.result, at.err = res, err
		close(at.done)
	})
}

// Wait blocks until the buyer pays or dismisses the modal, or ctx ends.
func (at *Attempt) Wait(ctx context.Context) (domain.PaymentAttemptResult, error) {
	select {
	case <-at.done:
		return at.result, at.err
	case <-ctx.Done():
		return domain.PaymentAttemptResult{}, ctx.Err()
	}
}
