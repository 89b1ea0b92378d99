package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
	OrderRefunded   OrderStatus = "refunded"
)

// orderTransitions lists the statuses reachable from each status. A status
// moving to itself is always accepted as a no-op and is not listed here.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderFailed, OrderCancelled},
	OrderFailed:     {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCompleted, OrderRefunded, OrderCancelled},
	OrderShipped:    {OrderCompleted, OrderRefunded},
	OrderCompleted:  {OrderRefunded},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case OrderPending, OrderProcessing, OrderShipped, OrderCompleted,
		OrderCancelled, OrderFailed, OrderRefunded:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an order in s may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaidEquivalent reports whether the status implies a captured payment.
func (s OrderStatus) PaidEquivalent() bool {
	return s == OrderProcessing
}

// Payable reports whether a new payment attempt may be opened for the order.
func (s OrderStatus) Payable() bool {
	return s == OrderPending || s == OrderFailed
}

// Label is the customer-facing wording used in emails.
func (s OrderStatus) Label() string {
	switch s {
	case OrderPending:
		return "Pending Payment"
	case OrderProcessing:
		return "Confirmed"
	case OrderShipped:
		return "Shipped"
	case OrderCompleted:
		return "Delivered"
	case OrderCancelled:
		return "Cancelled"
	case OrderFailed:
		return "Payment Failed"
	case OrderRefunded:
		return "Refunded"
	}
	return string(s)
}

func (s OrderStatus) String() string {
	return string(s)
}

type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Shipping int64 `json:"shipping"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// LineItem is the snapshot of a cart line stored on the order, priced by the
// catalogue at creation time.
type LineItem struct {
	ProductID      int64  `json:"productId"`
	VariationID    int64  `json:"variationId,omitempty"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
}

func (l LineItem) TotalMinor() int64 {
	return l.UnitPriceMinor * int64(l.Quantity)
}

type CommerceOrder struct {
	ID           string      `json:"id"`
	OrderNumber  string      `json:"orderNumber"`
	LineItems    []LineItem  `json:"lineItems"`
	Totals       Totals      `json:"totals"`
	Status       OrderStatus `json:"status"`
	Contact      Contact     `json:"contact"`
	Billing      Address     `json:"billing"`
	Shipping     Address     `json:"shipping"`
	CustomerNote string      `json:"customerNote,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

type StatusChange struct {
	Status OrderStatus `json:"status"`
	Note   string      `json:"note,omitempty"`
	At     time.Time   `json:"date"`
}

// Product is a catalogue entry; variations are products with a parent.
type Product struct {
	ID         int64
	ParentID   int64
	Name       string
	PriceMinor int64
}
