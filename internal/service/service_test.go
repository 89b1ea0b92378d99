package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/repo/memrepo"
	"storefront-checkout/internal/signature"
)

const keySecret = "test_key_secret"

type harness struct {
	orders    *memrepo.Orders
	payments  *memrepo.Payments
	notifier  *recordingNotifier
	publisher *recordingPublisher
	cache     *countingCache
	sandbox   *payment.SandboxGateway
	orderSvc  OrderService
	paySvc    PaymentService
}

func newHarness() *harness {
	h := &harness{
		orders:    memrepo.NewOrders(),
		payments:  memrepo.NewPayments(),
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		cache:     &countingCache{},
		sandbox:   payment.NewSandboxGateway(keySecret, "hook"),
	}
	catalog := memrepo.Catalog{
		1:  {ID: 1, Name: "Teak Stool", PriceMinor: 49950},
		2:  {ID: 2, Name: "Dining Table", PriceMinor: 1143118},
		20: {ID: 20, ParentID: 2, Name: "Dining Table - 6 seater", PriceMinor: 1143118},
	}
	h.orderSvc = NewOrderService(h.orders, catalog, domain.DefaultPricingPolicy(),
		h.cache, h.publisher, nopMirror{}, h.notifier, logging.Discard())
	h.paySvc = NewPaymentService(h.orders, h.payments, h.orderSvc, h.sandbox, keySecret, "Teak & Co", logging.Discard())
	return h
}

func validParty() api.Party {
	return api.Party{
		FirstName: "Asha", LastName: "Rao", Address1: "1 MG Road", City: "Kochi", State: "KL",
		Postcode: "682001", Country: "IN", Email: "asha@example.com", Phone: "+91 98765 43210",
	}
}

func (h *harness) placeOrder(t *testing.T, items ...api.LineItemRequest) *domain.CommerceOrder {
	t.Helper()
	if len(items) == 0 {
		items = []api.LineItemRequest{{ProductID: 1, Quantity: 1}}
	}
	o, err := h.orderSvc.CreateOrder(context.Background(), api.CreateOrderRequest{Billing: validParty(), LineItems: items})
	require.NoError(t, err)
	return o
}

func (h *harness) paidResult(t *testing.T, o *domain.CommerceOrder) domain.PaymentAttemptResult {
	t.Helper()
	po, err := h.paySvc.CreatePaymentOrder(context.Background(), o.Totals.Total, o.ID, nil)
	require.NoError(t, err)
	res, err := h.sandbox.Pay(po.ID)
	require.NoError(t, err)
	return res
}

func TestCreateOrderPricesFromCatalogue(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t, api.LineItemRequest{ProductID: 2, VariationID: 20, Quantity: 1})

	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, "Dining Table - 6 seater", o.LineItems[0].Name)
	assert.Equal(t, int64(1143118), o.Totals.Subtotal)
	assert.Equal(t, int64(0), o.Totals.Shipping)
	assert.Equal(t, int64(91449), o.Totals.Tax)
	assert.Equal(t, o.Totals.Subtotal+o.Totals.Tax, o.Totals.Total)
	assert.Equal(t, 0, h.notifier.count(), "placing an order sends nothing")
	require.Len(t, h.publisher.events, 1)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	h := newHarness()
	billing := validParty()
	billing.Country = "ZZ"

	_, err := h.orderSvc.CreateOrder(context.Background(), api.CreateOrderRequest{
		Billing:   billing,
		LineItems: []api.LineItemRequest{{ProductID: 0, Quantity: 0}},
	})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "country")
	assert.Contains(t, verr.Fields, "lineItems.0.productId")
	assert.Contains(t, verr.Fields, "lineItems.0.quantity")
	assert.Contains(t, err.Error(), "input.country")

	_, err = h.orderSvc.CreateOrder(context.Background(), api.CreateOrderRequest{
		Billing:   validParty(),
		LineItems: []api.LineItemRequest{{ProductID: 1, VariationID: 20, Quantity: 1}},
	})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lineItems.0.variationId")
}

func TestTransitionIsIdempotentAndNotifiesOnce(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	ctx := context.Background()

	_, changed, err := h.orderSvc.Transition(ctx, o.ID, domain.OrderProcessing, "", true)
	require.NoError(t, err)
	assert.True(t, changed)

	again, changed, err := h.orderSvc.Transition(ctx, o.ID, domain.OrderProcessing, "", true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderProcessing, again.Status)

	assert.Equal(t, 1, h.notifier.count())
	assert.Equal(t, []string{o.ID}, h.cache.invalidated)
}

func TestUpdateStatusOperatorRules(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	ctx := context.Background()

	_, err := h.orderSvc.UpdateStatus(ctx, o.ID, domain.OrderProcessing, "", true)
	assert.ErrorIs(t, err, ErrProofRequired)

	_, err = h.orderSvc.UpdateStatus(ctx, o.ID, domain.OrderShipped, "", true)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := h.orderSvc.UpdateStatus(ctx, o.ID, domain.OrderCancelled, "customer asked", false)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, 0, h.notifier.count())

	hist, err := h.orderSvc.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}

func TestUpdateStatusRepeatOfPaidStatusIsNoop(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	ctx := context.Background()

	_, changed, err := h.orderSvc.Transition(ctx, o.ID, domain.OrderProcessing, "paid", true)
	require.NoError(t, err)
	require.True(t, changed)
	sent := h.notifier.count()

	got, err := h.orderSvc.UpdateStatus(ctx, o.ID, domain.OrderProcessing, "again", true)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	assert.Equal(t, sent, h.notifier.count())

	hist, err := h.orderSvc.History(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	_, err = h.orderSvc.UpdateStatus(ctx, "missing", domain.OrderProcessing, "", true)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGetOrderReadsThroughCache(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)

	_, err := h.orderSvc.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	_, cached, _ := h.cache.Get(context.Background(), o.ID)
	assert.True(t, cached)

	_, err = h.orderSvc.GetOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestCreatePaymentOrderChecksTotalsAndReusesReceipt(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	ctx := context.Background()

	_, err := h.paySvc.CreatePaymentOrder(ctx, 0, o.ID, nil)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = h.paySvc.CreatePaymentOrder(ctx, o.Totals.Total-1, o.ID, nil)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	first, err := h.paySvc.CreatePaymentOrder(ctx, o.Totals.Total, o.ID, map[string]string{"source": "web"})
	require.NoError(t, err)
	assert.Equal(t, "Teak & Co", first.Notes["merchant"])
	assert.Equal(t, "web", first.Notes["source"])

	// buyer dismissed the widget; the retry reuses the same receipt
	second, err := h.paySvc.CreatePaymentOrder(ctx, o.Totals.Total, o.ID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ReceiptRef, second.ReceiptRef)
	assert.Equal(t, domain.OrderPending, h.orders.Status(o.ID))
}

func TestConfirmPaymentOnlyWithValidProof(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	res := h.paidResult(t, o)
	ctx := context.Background()

	forged := res
	forged.Signature = signature.Compute([]byte("wrong secret"), signature.PaymentMessage(res.PaymentOrderID, res.PaymentID))
	_, err := h.paySvc.ConfirmPayment(ctx, o.ID, forged, "", true)
	var vf *domain.VerificationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, domain.OrderPending, h.orders.Status(o.ID))

	other := h.placeOrder(t)
	_, err = h.paySvc.ConfirmPayment(ctx, other.ID, res, "", true)
	require.ErrorAs(t, err, &vf)

	got, err := h.paySvc.ConfirmPayment(ctx, o.ID, res, "", true)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, got.Status)

	got, err = h.paySvc.ConfirmPayment(ctx, o.ID, res, "", true)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, got.Status)
	assert.Equal(t, 1, h.notifier.count(), "repeat confirmation must not notify again")
}

func TestWebhookCaptureTwiceTransitionsOnce(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	po, err := h.paySvc.CreatePaymentOrder(context.Background(), o.Totals.Total, o.ID, nil)
	require.NoError(t, err)

	changed, err := h.paySvc.PaymentCaptured(context.Background(), po.ID, "pay_1", po.AmountMinor)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = h.paySvc.PaymentCaptured(context.Background(), po.ID, "pay_1", po.AmountMinor)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, h.notifier.count())

	_, err = h.paySvc.PaymentCaptured(context.Background(), po.ID, "pay_1", po.AmountMinor+1)
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestWebhookFailureThenRetrySucceeds(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	ctx := context.Background()

	first, err := h.paySvc.CreatePaymentOrder(ctx, o.Totals.Total, o.ID, nil)
	require.NoError(t, err)
	changed, err := h.paySvc.PaymentFailed(ctx, first.ID, "pay_f", "card declined")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderFailed, h.orders.Status(o.ID))
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, domain.OrderFailed, h.notifier.sent[0].Status)

	res := h.paidResult(t, o)
	_, err = h.paySvc.ConfirmPayment(ctx, o.ID, res, "", true)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, h.orders.Status(o.ID))

	// a late failure for the old attempt changes nothing
	changed, err = h.paySvc.PaymentFailed(ctx, first.ID, "pay_f", "card declined")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, domain.OrderProcessing, h.orders.Status(o.ID))
}

func TestRefundCreated(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	res := h.paidResult(t, o)
	ctx := context.Background()
	_, err := h.paySvc.ConfirmPayment(ctx, o.ID, res, "", true)
	require.NoError(t, err)

	changed, err := h.paySvc.RefundCreated(ctx, "rfnd_1", res.PaymentID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.OrderRefunded, h.orders.Status(o.ID))

	_, err = h.paySvc.RefundCreated(ctx, "rfnd_2", "pay_unknown")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestResendNotification(t *testing.T) {
	h := newHarness()
	o := h.placeOrder(t)
	require.NoError(t, h.orderSvc.ResendNotification(context.Background(), o.ID, notify.AudienceAdmin))
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, notify.AudienceAdmin, h.notifier.sent[0].Aud)
}
