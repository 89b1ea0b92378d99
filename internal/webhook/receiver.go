// Package webhook authenticates and dispatches payment provider events.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/signature"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

var eventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_webhook_events_total",
		Help: "Payment provider webhook deliveries by event and outcome",
	},
	[]string{"event", "outcome"},
)

type Event struct {
	Entity    string   `json:"entity"`
	AccountID string   `json:"account_id"`
	Event     string   `json:"event"`
	Contains  []string `json:"contains"`
	Payload   Payload  `json:"payload"`
	CreatedAt int64    `json:"created_at"`
}

type Payload struct {
	Payment *struct {
		Entity PaymentEntity `json:"entity"`
	} `json:"payment,omitempty"`
	Refund *struct {
		Entity RefundEntity `json:"entity"`
	} `json:"refund,omitempty"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// Result is what the HTTP layer answers with.
type Result struct {
	Status int
}

// Reconciler applies verified events to orders. Each call is idempotent
// and reports whether it changed anything.
type Reconciler interface {
	PaymentCaptured(ctx context.Context, paymentOrderID, paymentID string, amountMinor int64) (bool, error)
	PaymentFailed(ctx context.Context, paymentOrderID, paymentID, reason string) (bool, error)
	RefundCreated(ctx context.Context, refundID, paymentID string) (bool, error)
}

type Receiver struct {
	secret     []byte
	reconciler Reconciler
	log        *slog.Logger
	now        func() time.Time
}

func NewReceiver(secret string, reconciler Reconciler, log *slog.Logger) *Receiver {
	if secret == "" {
		panic("webhook: empty secret")
	}
	return &Receiver{secret: []byte(secret), reconciler: reconciler, log: log, now: time.Now}
}

// Handle verifies sig over the raw body before looking at its contents.
// Verified events that cannot be applied (unknown payment order, order in a
// state that ignores the event) are acknowledged so the provider stops
// retrying; only store failures ask for redelivery.
func (r *Receiver) Handle(ctx context.Context, raw []byte, sig string) Result {
	if !signature.Verify(r.secret, raw, sig) {
		r.log.Warn("webhook signature rejected",
			"event", peekEventType(raw), "received_at", r.now().UTC().Format(time.RFC3339), "body_bytes", len(raw))
		eventsTotal.WithLabelValues("unverified", "rejected").Inc()
		return Result{Status: http.StatusBadRequest}
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		r.log.Warn("webhook body is not an event", "err", err)
		eventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return Result{Status: http.StatusBadRequest}
	}

	changed, err := r.dispatch(ctx, ev)
	log := r.log.With("event", ev.Event, "changed", changed)
	switch {
	case err == nil:
		log.Info("webhook processed")
		eventsTotal.WithLabelValues(ev.Event, outcome(changed)).Inc()
		return Result{Status: http.StatusOK}
	case errors.Is(err, errMissingEntity), errors.Is(err, repo.ErrNotFound),
		errors.Is(err, repo.ErrAlreadyPaid), errors.Is(err, service.ErrAmountMismatch):
		log.Warn("webhook acknowledged without effect", "err", err)
		eventsTotal.WithLabelValues(ev.Event, "ignored").Inc()
		return Result{Status: http.StatusOK}
	default:
		log.Error("webhook processing failed", "err", err)
		eventsTotal.WithLabelValues(ev.Event, "error").Inc()
		return Result{Status: http.StatusInternalServerError}
	}
}

var errMissingEntity = errors.New("event payload missing entity")

func (r *Receiver) dispatch(ctx context.Context, ev Event) (bool, error) {
	switch ev.Event {
	case EventPaymentCaptured:
		if ev.Payload.Payment == nil {
			return false, errMissingEntity
		}
		p := ev.Payload.Payment.Entity
		return r.reconciler.PaymentCaptured(ctx, p.OrderID, p.ID, p.Amount)
	case EventPaymentFailed:
		if ev.Payload.Payment == nil {
			return false, errMissingEntity
		}
		p := ev.Payload.Payment.Entity
		return r.reconciler.PaymentFailed(ctx, p.OrderID, p.ID, p.ErrorDescription)
	case EventRefundCreated:
		if ev.Payload.Refund == nil {
			return false, errMissingEntity
		}
		rf := ev.Payload.Refund.Entity
		return r.reconciler.RefundCreated(ctx, rf.ID, rf.PaymentID)
	}
	return false, nil
}

// peekEventType extracts the event name from an unauthenticated body for
// logging only.
func peekEventType(raw []byte) string {
	var probe struct {
		Event string `json:"event"`
	}
	if json.Unmarshal(raw, &probe) != nil || probe.Event == "" || len(probe.Event) > 64 {
		return "unknown"
	}
	return probe.Event
}

func outcome(changed bool) string {
	if changed {
		return "applied"
	}
	return "noop"
}

var _ Reconciler = (service.PaymentService)(nil)
