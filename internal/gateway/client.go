// Package gateway is the storefront's client for the checkout server: order
// creation, payment orders, verification and status updates. It holds no
// state between calls.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
)

// OrderRef is the part of a freshly created order the checkout needs.
type OrderRef struct {
	ID          string
	OrderNumber string
	TotalMinor  int64
	Status      domain.OrderStatus
}

// StatusUpdate asks the server to move an order. Payment must be set when
// Status is processing.
type StatusUpdate struct {
	Status           domain.OrderStatus
	Note             string
	SendNotification bool
	Payment          *domain.PaymentAttemptResult
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
	log     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends an operator bearer token on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, log *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) CreateCommerceOrder(ctx context.Context, form domain.CheckoutForm, lines []api.LineItemRequest) (*OrderRef, error) {
	if err := validateOrder(form, lines); err != nil {
		return nil, err
	}
	var out api.CreateOrderResponse
	req := api.NewCreateOrderRequest(form, lines, "razorpay")
	if err := c.do(ctx, http.MethodPost, "/api/orders/create", req, &out); err != nil {
		return nil, err
	}
	total, err := domain.ToMinor(out.Total)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", out.OrderID, err)
	}
	return &OrderRef{
		ID:          out.OrderID,
		OrderNumber: out.OrderNumber,
		TotalMinor:  total,
		Status:      domain.OrderStatus(out.Status),
	}, nil
}

func validateOrder(form domain.CheckoutForm, lines []api.LineItemRequest) error {
	fields := map[string]string{}
	if err := domain.ValidateCheckoutForm(form); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if len(lines) == 0 {
		fields["lineItems"] = "Your cart is empty"
	}
	for i, l := range lines {
		if l.ProductID <= 0 {
			fields[fmt.Sprintf("lineItems.%d.productId", i)] = "Invalid product"
		}
		if l.VariationID < 0 {
			fields[fmt.Sprintf("lineItems.%d.variationId", i)] = "Invalid product variation"
		}
		if l.Quantity < 1 {
			fields[fmt.Sprintf("lineItems.%d.quantity", i)] = "Quantity must be at least 1"
		}
	}
	if len(fields) > 0 {
		return domain.NewValidationError(fields)
	}
	return nil
}

func (c *Client) CreatePaymentOrder(ctx context.Context, amountMinor int64, receiptRef string, notes map[string]string) (*domain.PaymentOrder, error) {
	if amountMinor <= 0 {
		return nil, domain.NewValidationError(map[string]string{"amountMinor": "Amount must be positive"})
	}
	var out api.PaymentOrderResponse
	in := api.CreatePaymentOrderRequest{AmountMinor: amountMinor, ReceiptRef: receiptRef, Notes: notes}
	if err := c.do(ctx, http.MethodPost, "/api/payment/create-order", in, &out); err != nil {
		return nil, err
	}
	ref := out.ReceiptRef
	if ref == "" {
		ref = receiptRef
	}
	return &domain.PaymentOrder{
		ID:          out.ID,
		AmountMinor: out.AmountMinor,
		Currency:    out.Currency,
		Status:      domain.PaymentStatus(out.Status),
		ReceiptRef:  ref,
		Notes:       notes,
	}, nil
}

func (c *Client) VerifyPayment(ctx context.Context, res domain.PaymentAttemptResult) (bool, error) {
	var out api.VerifyPaymentResponse
	in := api.VerifyPaymentRequest{
		PaymentOrderID: res.PaymentOrderID,
		PaymentID:      res.PaymentID,
		Signature:      res.Signature,
	}
	if err := c.do(ctx, http.MethodPost, "/api/payment/verify", in, &out); err != nil {
		return false, err
	}
	return out.Verified, nil
}

// UpdateCommerceOrderStatus is safe to repeat: the server treats a move to
// the current status as a no-op.
func (c *Client) UpdateCommerceOrderStatus(ctx context.Context, id string, u StatusUpdate) (*domain.CommerceOrder, error) {
	send := u.SendNotification
	in := api.UpdateStatusRequest{
		Status:           string(u.Status),
		Note:             u.Note,
		SendNotification: &send,
		Payment:          u.Payment,
	}
	var out api.OrderResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/status", in, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*domain.CommerceOrder, error) {
	var out api.OrderResponse
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out.Order, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.GatewayError{Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &domain.GatewayError{Status: resp.StatusCode, Message: err.Error()}
	}
	c.log.Debug("gateway call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode/100 != 2 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

var inputField = regexp.MustCompile(`input\.([A-Za-z0-9_.]+)`)

// decodeError keeps the backend's message and recovers field errors, either
// from the structured fields or from "input.billing.country" style text.
func decodeError(status int, raw []byte) error {
	var body api.ErrorResponse
	gerr := &domain.GatewayError{Status: status}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		gerr.Message = body.Error
		gerr.Fields = body.Fields
	} else {
		gerr.Message = strings.TrimSpace(string(raw))
		if gerr.Message == "" {
			gerr.Message = http.StatusText(status)
		}
	}
	if len(gerr.Fields) == 0 {
		for _, m := range inputField.FindAllStringSubmatch(gerr.Message, -1) {
			if gerr.Fields == nil {
				gerr.Fields = map[string]string{}
			}
			key := strings.TrimRight(m[1], ".")
			if _, ok := gerr.Fields[key]; !ok {
				gerr.Fields[key] = "Please check this field"
			}
		}
	}
	return gerr
}
