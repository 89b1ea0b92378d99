// Package api holds the JSON shapes exchanged between the storefront
// client and the checkout server.
package api

import (
	"storefront-checkout/internal/domain"
)

// Party is a billing or shipping block in the commerce backend's shape.
// Email and Phone are only meaningful on billing.
type Party struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address1  string `json:"address1"`
	Address2  string `json:"address2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

func (p Party) Address() domain.Address {
	return domain.Address{
		Line1:       p.Address1,
		Line2:       p.Address2,
		City:        p.City,
		State:       p.State,
		PostalCode:  p.Postcode,
		CountryCode: p.Country,
	}
}

func partyFrom(c domain.Contact, a domain.Address) Party {
	return Party{
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Address1:  a.Line1,
		Address2:  a.Line2,
		City:      a.City,
		State:     a.State,
		Postcode:  a.PostalCode,
		Country:   a.CountryCode,
	}
}

type LineItemRequest struct {
	ProductID   int64 `json:"productId" binding:"required,gt=0"`
	VariationID int64 `json:"variationId,omitempty" binding:"omitempty,gt=0"`
	Quantity    int   `json:"quantity" binding:"required,gte=1"`
}

type CreateOrderRequest struct {
	Billing       Party             `json:"billing"`
	Shipping      *Party            `json:"shipping,omitempty"`
	LineItems     []LineItemRequest `json:"lineItems" binding:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	CustomerNote  string            `json:"customerNote,omitempty"`
}

// NewCreateOrderRequest builds the wire request from a validated form.
func NewCreateOrderRequest(form domain.CheckoutForm, items []LineItemRequest, paymentMethod string) CreateOrderRequest {
	billing := partyFrom(form.Contact, form.BillingAddress())
	billing.Email = form.Contact.Email
	billing.Phone = form.Contact.Phone
	shipping := partyFrom(form.Contact, form.Shipping)
	return CreateOrderRequest{
		Billing:       billing,
		Shipping:      &shipping,
		LineItems:     items,
		PaymentMethod: paymentMethod,
		CustomerNote:  form.CustomerNote,
	}
}

// Form reassembles the checkout form the request was built from. A missing
// shipping block means "ship to the billing address".
func (r CreateOrderRequest) Form() domain.CheckoutForm {
	billing := r.Billing.Address()
	form := domain.CheckoutForm{
		Contact: domain.Contact{
			FirstName: r.Billing.FirstName,
			LastName:  r.Billing.LastName,
			Email:     r.Billing.Email,
			Phone:     r.Billing.Phone,
		},
		Shipping:     billing,
		CustomerNote: r.CustomerNote,
	}
	if r.Shipping != nil {
		form.Shipping = r.Shipping.Address()
		form.Billing = &billing
	}
	return form
}

// CreateOrderResponse follows the commerce backend: total is a major-unit
// decimal string.
type CreateOrderResponse struct {
	Success     bool   `json:"success"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

type CreatePaymentOrderRequest struct {
	AmountMinor int64             `json:"amountMinor" binding:"required,gt=0"`
	ReceiptRef  string            `json:"receiptRef" binding:"required"`
	Notes       map[string]string `json:"notes,omitempty"`
}

type PaymentOrderResponse struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amountMinor"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	ReceiptRef  string `json:"receiptRef,omitempty"`
}

type VerifyPaymentRequest struct {
	PaymentOrderID string `json:"paymentOrderId" binding:"required"`
	PaymentID      string `json:"paymentId" binding:"required"`
	Signature      string `json:"signature" binding:"required"`
}

func (r VerifyPaymentRequest) Result() domain.PaymentAttemptResult {
	return domain.PaymentAttemptResult{
		PaymentID:      r.PaymentID,
		PaymentOrderID: r.PaymentOrderID,
		Signature:      r.Signature,
	}
}

type VerifyPaymentResponse struct {
	Verified bool `json:"verified"`
}

type UpdateStatusRequest struct {
	Status           string                       `json:"status" binding:"required"`
	Note             string                       `json:"note,omitempty"`
	SendNotification *bool                        `json:"sendNotification,omitempty"`
	Payment          *domain.PaymentAttemptResult `json:"payment,omitempty"`
}

// Notify defaults to true when the caller did not say otherwise.
func (r UpdateStatusRequest) Notify() bool {
	return r.SendNotification == nil || *r.SendNotification
}

type OrderResponse struct {
	Success bool                  `json:"success"`
	Order   *domain.CommerceOrder `json:"order"`
	Message string                `json:"message,omitempty"`
}

type HistoryResponse struct {
	Success       bool                  `json:"success"`
	OrderNumber   string                `json:"orderNumber"`
	StatusHistory []domain.StatusChange `json:"statusHistory"`
}

type ResendNotificationRequest struct {
	NotificationType string `json:"notificationType" binding:"required,oneof=customer admin both"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}
