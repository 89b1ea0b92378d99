package domain

import (
	"time"
)

type PaymentStatus string

const (
	PaymentCreated       PaymentStatus = "created"
	PaymentAttemptFailed PaymentStatus = "attempt_failed"
	PaymentPaid          PaymentStatus = "paid"
)

// CurrencyINR is the only currency the storefront charges in.
const CurrencyINR = "INR"

// PaymentOrder is the provider-side record of one requested charge.
// ReceiptRef always holds the CommerceOrder ID the charge belongs to.
type PaymentOrder struct {
	ID          string            `json:"id"`
	AmountMinor int64             `json:"amountMinor"`
	Currency    string            `json:"currency"`
	ReceiptRef  string            `json:"receiptRef"`
	Status      PaymentStatus     `json:"status"`
	PaymentID   string            `json:"paymentId,omitempty"`
	Notes       map[string]string `json:"notes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// PaymentAttemptResult is what the hosted widget hands back on success.
type PaymentAttemptResult struct {
	PaymentID      string `json:"paymentId"`
	PaymentOrderID string `json:"paymentOrderId"`
	Signature      string `json:"signature"`
}

func (r PaymentAttemptResult) Complete() bool {
	return r.PaymentID != "" && r.PaymentOrderID != "" && r.Signature != ""
}
