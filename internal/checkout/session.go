// Package checkout runs one buyer's checkout: form, order creation, the
// hosted payment modal and verification, in that order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/gateway"
	"storefront-checkout/internal/widget"
)

type State string

const (
	StateIdle             State = "idle"
	StateFormValid        State = "form_valid"
	StateOrderCreating    State = "order_creating"
	StateOrderCreated     State = "order_created"
	StatePaymentPending   State = "payment_pending"
	StatePaymentVerifying State = "payment_verifying"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

var (
	// ErrSubmissionInFlight is returned when a step is requested while
	// another one is still talking to the server.
	ErrSubmissionInFlight = errors.New("checkout: submission already in flight")
	ErrWrongState         = errors.New("checkout: action not allowed in current state")
	// ErrVerificationPending is returned when a reported payment is still
	// unconfirmed. Only RetryVerification may move the session on.
	ErrVerificationPending = errors.New("checkout: payment awaiting verification")
)

const (
	bannerOrderFailed   = "We couldn't place your order. Please try again."
	bannerPaymentFailed = "We couldn't start the payment. Please try again."
	bannerWidgetDown    = "The payment window could not be loaded. Please try again."
	bannerDismissed     = "Payment was cancelled. Your order is saved, you can pay again."
	bannerVerifyRetry   = "We couldn't confirm your payment yet. Please retry."
	bannerUnverified    = "Your payment could not be verified. Please contact support with your payment ID."
)

// Gateway is the server API the session drives; *gateway.Client implements it.
type Gateway interface {
	CreateCommerceOrder(ctx context.Context, form domain.CheckoutForm, lines []api.LineItemRequest) (*gateway.OrderRef, error)
	CreatePaymentOrder(ctx context.Context, amountMinor int64, receiptRef string, notes map[string]string) (*domain.PaymentOrder, error)
	VerifyPayment(ctx context.Context, res domain.PaymentAttemptResult) (bool, error)
	UpdateCommerceOrderStatus(ctx context.Context, id string, u gateway.StatusUpdate) (*domain.CommerceOrder, error)
}

// Opener presents the hosted payment modal; *widget.Adapter implements it.
type Opener interface {
	Open(ctx context.Context, cfg widget.Config) (*widget.Attempt, error)
}

// Merchant is how the modal introduces the shop.
type Merchant struct {
	KeyID      string
	Name       string
	ThemeColor string
}

// Confirmation is where the buyer lands after a verified payment.
type Confirmation struct {
	Path        string
	OrderID     string
	OrderNumber string
	PaymentID   string
	TotalMinor  int64
}

type Session struct {
	gw       Gateway
	widget   Opener
	cache    *QueryCache
	cart     *Cart
	merchant Merchant
	log      *slog.Logger

	mu            sync.Mutex
	state         State
	form          domain.CheckoutForm
	order         *gateway.OrderRef
	paymentOrders []string
	pending       *domain.PaymentAttemptResult
	banner        string
	fieldErrors   map[string]string
	confirmation  *Confirmation
}

func NewSession(gw Gateway, w Opener, cache *QueryCache, cart *Cart, merchant Merchant, log *slog.Logger) *Session {
	return &Session{
		gw:       gw,
		widget:   w,
		cache:    cache,
		cart:     cart,
		merchant: merchant,
		log:      log,
		state:    StateIdle,
	}
}

func (s *Session) busy() bool {
	switch s.state {
	case StateOrderCreating, StatePaymentPending, StatePaymentVerifying:
		return true
	}
	return false
}

// SubmitForm validates the buyer's details locally. Nothing is sent.
func (s *Session) SubmitForm(form domain.CheckoutForm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy() {
		return ErrSubmissionInFlight
	}
	if s.state == StateComplete || s.state == StateFailed {
		return ErrWrongState
	}
	s.banner = ""
	if err := domain.ValidateCheckoutForm(form); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			s.fieldErrors = maps.Clone(verr.Fields)
		}
		if s.order == nil {
			s.state = StateIdle
		}
		return err
	}
	s.form = form
	s.fieldErrors = nil
	s.state = StateFormValid
	return nil
}

// PlaceOrder creates the commerce order once. A session that already has an
// order (a payment retry) keeps it.
func (s *Session) PlaceOrder(ctx context.Context) (*gateway.OrderRef, error) {
	s.mu.Lock()
	if s.busy() {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrVerificationPending
	}
	if s.state == StateOrderCreated && s.order != nil {
		ref := *s.order
		s.mu.Unlock()
		return &ref, nil
	}
	if s.state != StateFormValid {
		s.mu.Unlock()
		return nil, ErrWrongState
	}
	if s.order != nil {
		s.state = StateOrderCreated
		ref := *s.order
		s.mu.Unlock()
		return &ref, nil
	}
	lines, err := s.cart.LineItems()
	if err != nil {
		s.failToForm(err, bannerOrderFailed)
		s.mu.Unlock()
		return nil, err
	}
	form := s.form
	s.state = StateOrderCreating
	s.mu.Unlock()

	ref, err := s.gw.CreateCommerceOrder(ctx, form, lines)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Warn("order creation failed", "err", err)
		s.failToForm(err, bannerOrderFailed)
		return nil, err
	}
	s.order = ref
	s.state = StateOrderCreated
	s.log.Info("order created", "order_id", ref.ID, "order_number", ref.OrderNumber, "total_minor", ref.TotalMinor)
	out := *ref
	return &out, nil
}

// failToForm returns the session to form_valid and explains why. Field
// errors from validation or the backend are kept for display; anything
// else gets a generic banner. Callers hold s.mu.
func (s *Session) failToForm(err error, banner string) {
	s.state = StateFormValid
	var verr *domain.ValidationError
	var gerr *domain.GatewayError
	switch {
	case errors.As(err, &verr):
		s.fieldErrors = maps.Clone(verr.Fields)
		s.banner = ""
	case errors.As(err, &gerr) && len(gerr.Fields) > 0:
		s.fieldErrors = maps.Clone(gerr.Fields)
		s.banner = ""
	default:
		s.banner = banner
	}
}

// Pay opens a payment order for the full order total and waits for the
// buyer in the hosted modal. Every attempt for the order uses the order id
// as its receipt reference.
func (s *Session) Pay(ctx context.Context) (*Confirmation, error) {
	s.mu.Lock()
	if s.busy() {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.pending != nil {
		s.mu.Unlock()
		return nil, ErrVerificationPending
	}
	if s.state != StateOrderCreated || s.order == nil {
		s.mu.Unlock()
		return nil, ErrWrongState
	}
	order := *s.order
	form := s.form
	s.state = StatePaymentPending
	s.banner = ""
	s.mu.Unlock()

	notes := map[string]string{"order_number": order.OrderNumber}
	po, err := s.gw.CreatePaymentOrder(ctx, order.TotalMinor, order.ID, notes)
	if err != nil {
		s.log.Warn("payment order failed", "order_id", order.ID, "err", err)
		s.mu.Lock()
		s.failToForm(err, bannerPaymentFailed)
		s.mu.Unlock()
		return nil, err
	}
	s.mu.Lock()
	s.paymentOrders = append(s.paymentOrders, po.ID)
	s.mu.Unlock()

	attempt, err := s.widget.Open(ctx, widget.Config{
		KeyID:          s.merchant.KeyID,
		AmountMinor:    po.AmountMinor,
		Currency:       po.Currency,
		Name:           s.merchant.Name,
		Description:    "Order #" + order.OrderNumber,
		PaymentOrderID: po.ID,
		Prefill: widget.Prefill{
			Name:    form.Contact.FullName(),
			Email:   form.Contact.Email,
			Contact: form.Contact.Phone,
		},
		Notes:      notes,
		ThemeColor: s.merchant.ThemeColor,
	})
	if err == nil {
		var res domain.PaymentAttemptResult
		res, err = attempt.Wait(ctx)
		if err == nil {
			return s.verify(ctx, res)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFormValid
	var unavailable *domain.WidgetUnavailableError
	switch {
	case errors.Is(err, widget.ErrDismissed):
		s.banner = bannerDismissed
		s.log.Info("payment dismissed", "order_id", order.ID, "payment_order_id", po.ID)
	case errors.As(err, &unavailable):
		s.banner = bannerWidgetDown
		s.log.Warn("payment widget unavailable", "err", err)
	default:
		s.banner = bannerPaymentFailed
	}
	return nil, err
}

// RetryVerification re-runs verification for a payment the modal already
// reported but the session could not confirm.
func (s *Session) RetryVerification(ctx context.Context) (*Confirmation, error) {
	s.mu.Lock()
	if s.busy() {
		s.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}
	if s.pending == nil || s.state != StateFormValid {
		s.mu.Unlock()
		return nil, ErrWrongState
	}
	res := *s.pending
	s.mu.Unlock()
	return s.verify(ctx, res)
}

func (s *Session) verify(ctx context.Context, res domain.PaymentAttemptResult) (*Confirmation, error) {
	s.mu.Lock()
	s.state = StatePaymentVerifying
	s.pending = &res
	order := *s.order
	s.mu.Unlock()

	ok, err := s.gw.VerifyPayment(ctx, res)
	if err != nil {
		return nil, s.verifyInterrupted(order, res, err)
	}
	if !ok {
		return nil, s.verifyRejected(order, res)
	}

	_, err = s.gw.UpdateCommerceOrderStatus(ctx, order.ID, gateway.StatusUpdate{
		Status:           domain.OrderProcessing,
		Note:             fmt.Sprintf("Payment received (Payment ID: %s)", res.PaymentID),
		SendNotification: true,
		Payment:          &res,
	})
	if err != nil {
		return nil, s.verifyInterrupted(order, res, err)
	}

	s.cache.Invalidate(orderKey(order.ID))
	s.cache.Invalidate(customerPrefix)
	s.cart.Clear()

	conf := &Confirmation{
		Path:        "/order-confirmation",
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		PaymentID:   res.PaymentID,
		TotalMinor:  order.TotalMinor,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateComplete
	s.pending = nil
	s.banner = ""
	s.confirmation = conf
	s.log.Info("checkout complete", "order_id", order.ID, "payment_id", res.PaymentID)
	out := *conf
	return &out, nil
}

// verifyInterrupted keeps the reported result for RetryVerification when
// the server could not be reached. A 400 from the server is its verdict on
// the proof and ends the session.
func (s *Session) verifyInterrupted(order gateway.OrderRef, res domain.PaymentAttemptResult, err error) error {
	var gerr *domain.GatewayError
	if errors.As(err, &gerr) && gerr.Status == http.StatusBadRequest {
		s.log.Warn("payment proof refused by server", "order_id", order.ID, "err", err)
		return s.verifyRejected(order, res)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFormValid
	s.banner = bannerVerifyRetry
	s.log.Warn("payment confirmation interrupted", "order_id", order.ID, "err", err)
	return err
}

func (s *Session) verifyRejected(order gateway.OrderRef, res domain.PaymentAttemptResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateFailed
	s.pending = nil
	s.banner = bannerUnverified
	s.log.Error("payment verification failed", "order_id", order.ID, "payment_id", res.PaymentID)
	return &domain.VerificationFailure{PaymentOrderID: res.PaymentOrderID, PaymentID: res.PaymentID}
}

// Checkout runs SubmitForm, PlaceOrder and Pay in sequence.
func (s *Session) Checkout(ctx context.Context, form domain.CheckoutForm) (*Confirmation, error) {
	if err := s.SubmitForm(form); err != nil {
		return nil, err
	}
	if _, err := s.PlaceOrder(ctx); err != nil {
		return nil, err
	}
	return s.Pay(ctx)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Order() *gateway.OrderRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.order == nil {
		return nil
	}
	ref := *s.order
	return &ref
}

func (s *Session) Banner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banner
}

func (s *Session) FieldErrors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.fieldErrors)
}

func (s *Session) Confirmation() *Confirmation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmation == nil {
		return nil
	}
	c := *s.confirmation
	return &c
}

// PaymentOrders lists the provider payment orders opened by this session,
// oldest first.
func (s *Session) PaymentOrders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paymentOrders...)
}
