package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/signature"
)

// SandboxGateway is an in-memory provider for local runs and simulations.
// It issues provider-shaped ids and can play the buyer's side of a payment,
// producing the same signed artefacts the hosted widget and the provider's
// webhooks would.
type SandboxGateway struct {
	keySecret     []byte
	webhookSecret []byte

	mu     sync.RWMutex
	orders map[string]*domain.PaymentOrder
}

func NewSandboxGateway(keySecret, webhookSecret string) *SandboxGateway {
	return &SandboxGateway{
		keySecret:     []byte(keySecret),
		webhookSecret: []byte(webhookSecret),
		orders:        make(map[string]*domain.PaymentOrder),
	}
}

func sandboxID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14]
}

func (g *SandboxGateway) CreateOrder(ctx context.Context, req OrderRequest) (*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrProvider)
	}
	po := &domain.PaymentOrder{
		ID:          sandboxID("order"),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		ReceiptRef:  req.Receipt,
		Status:      domain.PaymentCreated,
		Notes:       req.Notes,
		CreatedAt:   time.Now().UTC(),
	}
	g.mu.Lock()
	g.orders[po.ID] = po
	g.mu.Unlock()
	cp := *po
	return &cp, nil
}

// Pay completes a payment for the order and returns the signed result the
// widget hands to the browser.
func (g *SandboxGateway) Pay(paymentOrderID string) (domain.PaymentAttemptResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	po, ok := g.orders[paymentOrderID]
	if !ok {
		return domain.PaymentAttemptResult{}, fmt.Errorf("%w: unknown order %s", ErrProvider, paymentOrderID)
	}
	if po.Status == domain.PaymentPaid {
		return domain.PaymentAttemptResult{}, fmt.Errorf("%w: order %s already paid", ErrProvider, paymentOrderID)
	}
	po.Status = domain.PaymentPaid
	po.PaymentID = sandboxID("pay")
	return domain.PaymentAttemptResult{
		PaymentID:      po.PaymentID,
		PaymentOrderID: po.ID,
		Signature:      signature.Compute(g.keySecret, signature.PaymentMessage(po.ID, po.PaymentID)),
	}, nil
}

// Decline records a failed attempt and returns the attempt's payment id.
func (g *SandboxGateway) Decline(paymentOrderID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	po, ok := g.orders[paymentOrderID]
	if !ok {
		return "", fmt.Errorf("%w: unknown order %s", ErrProvider, paymentOrderID)
	}
	po.Status = domain.PaymentAttemptFailed
	return sandboxID("pay"), nil
}

func (g *SandboxGateway) Order(paymentOrderID string) (domain.PaymentOrder, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	po, ok := g.orders[paymentOrderID]
	if !ok {
		return domain.PaymentOrder{}, false
	}
	return *po, true
}

type sandboxPayment struct {
	ID               string `json:"id"`
	Entity           string `json:"entity"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type sandboxRefund struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

// WebhookEvent builds a signed provider event for a payment order:
// payment.captured, payment.failed or refund.created.
func (g *SandboxGateway) WebhookEvent(event, paymentOrderID, paymentID string) ([]byte, string, error) {
	po, ok := g.Order(paymentOrderID)
	if !ok {
		return nil, "", fmt.Errorf("%w: unknown order %s", ErrProvider, paymentOrderID)
	}
	pay := sandboxPayment{
		ID: paymentID, Entity: "payment", OrderID: po.ID,
		Amount: po.AmountMinor, Currency: po.Currency, Status: "captured",
	}
	payload := map[string]any{}
	contains := []string{"payment"}
	switch event {
	case "payment.failed":
		pay.Status = "failed"
		pay.ErrorDescription = "Payment was declined by the bank"
	case "refund.created":
		pay.Status = "refunded"
		payload["refund"] = map[string]any{"entity": sandboxRefund{
			ID: sandboxID("rfnd"), Entity: "refund", PaymentID: paymentID, Amount: po.AmountMinor,
		}}
		contains = []string{"refund", "payment"}
	}
	payload["payment"] = map[string]any{"entity": pay}

	body, err := json.Marshal(map[string]any{
		"entity":     "event",
		"account_id": "acc_sandbox",
		"event":      event,
		"contains":   contains,
		"payload":    payload,
		"created_at": time.Now().Unix(),
	})
	if err != nil {
		return nil, "", err
	}
	return body, signature.Compute(g.webhookSecret, body), nil
}
