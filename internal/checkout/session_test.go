package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/gateway"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/signature"
	"storefront-checkout/internal/widget"
)

const keySecret = "test_key_secret"

type statusCall struct {
	ID     string
	Update gateway.StatusUpdate
}

type fakeGateway struct {
	mu            sync.Mutex
	total         int64
	createErr     error
	verifyErr     error
	statusErr     error
	verifyResult  *bool
	createGate    chan struct{}
	orderCalls    int
	paymentOrders []domain.PaymentOrder
	verifyCalls   int
	statusCalls   []statusCall
	nextPO        int
}

func (f *fakeGateway) CreateCommerceOrder(_ context.Context, _ domain.CheckoutForm, lines []api.LineItemRequest) (*gateway.OrderRef, error) {
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orderCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &gateway.OrderRef{ID: "7f1c", OrderNumber: "1001", TotalMinor: f.total, Status: domain.OrderPending}, nil
}

func (f *fakeGateway) CreatePaymentOrder(_ context.Context, amount int64, receipt string, notes map[string]string) (*domain.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPO++
	po := domain.PaymentOrder{
		ID: "order_" + string(rune('A'+f.nextPO-1)), AmountMinor: amount, Currency: domain.CurrencyINR,
		ReceiptRef: receipt, Status: domain.PaymentCreated, Notes: notes,
	}
	f.paymentOrders = append(f.paymentOrders, po)
	return &po, nil
}

func (f *fakeGateway) VerifyPayment(_ context.Context, res domain.PaymentAttemptResult) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		err := f.verifyErr
		f.verifyErr = nil
		return false, err
	}
	if f.verifyResult != nil {
		return *f.verifyResult, nil
	}
	return signature.Verify([]byte(keySecret), signature.PaymentMessage(res.PaymentOrderID, res.PaymentID), res.Signature), nil
}

func (f *fakeGateway) UpdateCommerceOrderStatus(_ context.Context, id string, u gateway.StatusUpdate) (*domain.CommerceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{ID: id, Update: u})
	if f.statusErr != nil {
		err := f.statusErr
		f.statusErr = nil
		return nil, err
	}
	return &domain.CommerceOrder{ID: id, Status: u.Status}, nil
}

// buyer plays the hosted modal: each opening is answered by the next
// scripted action.
type buyer struct {
	mu      sync.Mutex
	opened  []widget.Config
	actions []string
}

func (b *buyer) Present(_ context.Context, cfg widget.Config, cb widget.Callbacks) error {
	b.mu.Lock()
	b.opened = append(b.opened, cfg)
	action := "pay"
	if len(b.actions) > 0 {
		action, b.actions = b.actions[0], b.actions[1:]
	}
	b.mu.Unlock()
	go func() {
		if action == "dismiss" {
			cb.OnDismiss()
			return
		}
		payID := "pay_" + cfg.PaymentOrderID
		cb.OnComplete(domain.PaymentAttemptResult{
			PaymentID:      payID,
			PaymentOrderID: cfg.PaymentOrderID,
			Signature:      signature.Compute([]byte(keySecret), signature.PaymentMessage(cfg.PaymentOrderID, payID)),
		})
	}()
	return nil
}

type fixture struct {
	gw      *fakeGateway
	buyer   *buyer
	cache   *QueryCache
	cart    *Cart
	session *Session
	script  *httptest.Server
}

func newFixture(t *testing.T, total int64) *fixture {
	t.Helper()
	script := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("/* checkout */"))
	}))
	t.Cleanup(script.Close)

	f := &fixture{
		gw:     &fakeGateway{total: total},
		buyer:  &buyer{},
		cache:  NewQueryCache(),
		cart:   NewCart(CartLine{ProductID: "2", VariationID: "20", Name: "Dining Table", Quantity: 1, UnitPriceMinor: 1143118}),
		script: script,
	}
	adapter := widget.NewAdapter(widget.NewScriptLoader(script.URL, script.Client()), f.buyer, logging.Discard())
	f.session = NewSession(f.gw, adapter, f.cache, f.cart,
		Merchant{KeyID: "rzp_test_key", Name: "Teak & Co", ThemeColor: "#8B5A2B"}, logging.Discard())
	return f
}

func validForm() domain.CheckoutForm {
	return domain.CheckoutForm{
		Contact: domain.Contact{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com", Phone: "+91 98765 43210"},
		Shipping: domain.Address{
			Line1: "1 MG Road", City: "Kochi", State: "KL", PostalCode: "682001", CountryCode: "IN",
		},
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t, 1234567)
	f.cache.Set(orderKey("7f1c"), "stale")
	f.cache.Set(customerPrefix+"me", "stale")
	f.cache.Set("products:all", "keep")

	conf, err := f.session.Checkout(context.Background(), validForm())
	require.NoError(t, err)

	assert.Equal(t, StateComplete, f.session.State())
	require.Len(t, f.gw.paymentOrders, 1)
	assert.Equal(t, int64(1234567), f.gw.paymentOrders[0].AmountMinor)
	assert.Equal(t, "7f1c", f.gw.paymentOrders[0].ReceiptRef)

	require.Len(t, f.buyer.opened, 1)
	cfg := f.buyer.opened[0]
	assert.Equal(t, int64(1234567), cfg.AmountMinor)
	assert.Equal(t, "rzp_test_key", cfg.KeyID)
	assert.Equal(t, "Asha Rao", cfg.Prefill.Name)
	assert.Equal(t, "Order #1001", cfg.Description)

	require.Len(t, f.gw.statusCalls, 1)
	call := f.gw.statusCalls[0]
	assert.Equal(t, "7f1c", call.ID)
	assert.Equal(t, domain.OrderProcessing, call.Update.Status)
	assert.True(t, call.Update.SendNotification)
	require.NotNil(t, call.Update.Payment)
	assert.Equal(t, "pay_order_A", call.Update.Payment.PaymentID)

	_, ok := f.cache.Get(orderKey("7f1c"))
	assert.False(t, ok)
	_, ok = f.cache.Get(customerPrefix + "me")
	assert.False(t, ok)
	_, ok = f.cache.Get("products:all")
	assert.True(t, ok)
	assert.Zero(t, f.cart.Len())

	assert.Equal(t, &Confirmation{
		Path: "/order-confirmation", OrderID: "7f1c", OrderNumber: "1001", PaymentID: "pay_order_A", TotalMinor: 1234567,
	}, conf)
	assert.Equal(t, conf, f.session.Confirmation())
}

func TestInvalidCountryStopsBeforeNetwork(t *testing.T) {
	f := newFixture(t, 1234567)
	form := validForm()
	form.Shipping.CountryCode = "ZZ"

	_, err := f.session.Checkout(context.Background(), form)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, f.session.FieldErrors(), "country")
	assert.Equal(t, StateIdle, f.session.State())
	assert.Zero(t, f.gw.orderCalls)
	assert.Empty(t, f.gw.paymentOrders)
}

func TestDismissKeepsOrderAndRetryReusesReceipt(t *testing.T) {
	f := newFixture(t, 49950)
	f.buyer.actions = []string{"dismiss", "pay"}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.ErrorIs(t, err, widget.ErrDismissed)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.NotEmpty(t, f.session.Banner())
	require.NotNil(t, f.session.Order())
	assert.Empty(t, f.gw.statusCalls)
	assert.Equal(t, 1, f.cart.Len())

	conf, err := f.session.Checkout(context.Background(), validForm())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, f.session.State())
	assert.Equal(t, "pay_order_B", conf.PaymentID)

	assert.Equal(t, 1, f.gw.orderCalls)
	require.Len(t, f.gw.paymentOrders, 2)
	assert.Equal(t, f.gw.paymentOrders[0].ReceiptRef, f.gw.paymentOrders[1].ReceiptRef)
	assert.Equal(t, []string{"order_A", "order_B"}, f.session.PaymentOrders())
	assert.Len(t, f.gw.statusCalls, 1)
}

func TestDoubleSubmitIsRefused(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.createGate = make(chan struct{})
	require.NoError(t, f.session.SubmitForm(validForm()))

	done := make(chan error, 1)
	go func() {
		_, err := f.session.PlaceOrder(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return f.session.State() == StateOrderCreating }, time.Second, time.Millisecond)

	_, err := f.session.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.ErrorIs(t, f.session.SubmitForm(validForm()), ErrSubmissionInFlight)

	close(f.gw.createGate)
	require.NoError(t, <-done)
	assert.Equal(t, StateOrderCreated, f.session.State())
	assert.Equal(t, 1, f.gw.orderCalls)
}

func TestBackendFieldErrorReturnsToForm(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.createErr = &domain.GatewayError{
		Status: http.StatusBadRequest, Message: "input.billing.country is invalid",
		Fields: map[string]string{"billing.country": "Please check this field"},
	}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.Contains(t, f.session.FieldErrors(), "billing.country")
	assert.Empty(t, f.session.Banner())
	assert.Nil(t, f.session.Order())
}

func TestBackendFailureShowsGenericBanner(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.createErr = &domain.GatewayError{Status: http.StatusInternalServerError, Message: "pq: connection refused"}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.Equal(t, bannerOrderFailed, f.session.Banner())
	assert.NotContains(t, f.session.Banner(), "pq")
}

func TestUnverifiedPaymentFails(t *testing.T) {
	f := newFixture(t, 49950)
	no := false
	f.gw.verifyResult = &no

	_, err := f.session.Checkout(context.Background(), validForm())
	var vf *domain.VerificationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, StateFailed, f.session.State())
	assert.Equal(t, bannerUnverified, f.session.Banner())
	assert.Empty(t, f.gw.statusCalls)
	assert.Equal(t, 1, f.cart.Len())

	assert.ErrorIs(t, f.session.SubmitForm(validForm()), ErrWrongState)
}

func TestVerificationCanBeRetried(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.verifyErr = &domain.GatewayError{Message: "connection reset"}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.Equal(t, bannerVerifyRetry, f.session.Banner())

	conf, err := f.session.RetryVerification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, f.session.State())
	assert.Equal(t, "pay_order_A", conf.PaymentID)
	assert.Len(t, f.buyer.opened, 1)
	assert.Len(t, f.gw.statusCalls, 1)
}

func TestUnconfirmedPaymentBlocksSecondPayment(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.verifyErr = &domain.GatewayError{Message: "network down"}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, StateFormValid, f.session.State())

	_, err = f.session.PlaceOrder(context.Background())
	assert.ErrorIs(t, err, ErrVerificationPending)
	_, err = f.session.Pay(context.Background())
	assert.ErrorIs(t, err, ErrVerificationPending)
	_, err = f.session.Checkout(context.Background(), validForm())
	assert.ErrorIs(t, err, ErrVerificationPending)

	assert.Len(t, f.gw.paymentOrders, 1)
	assert.Len(t, f.buyer.opened, 1)

	conf, err := f.session.RetryVerification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pay_order_A", conf.PaymentID)
	assert.Len(t, f.gw.paymentOrders, 1)
}

func TestServerRefusingProofFailsSession(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.statusErr = &domain.GatewayError{Status: http.StatusBadRequest, Message: "payment could not be verified"}

	_, err := f.session.Checkout(context.Background(), validForm())
	var vf *domain.VerificationFailure
	require.ErrorAs(t, err, &vf)
	assert.Equal(t, "pay_order_A", vf.PaymentID)
	assert.Equal(t, StateFailed, f.session.State())
	assert.Equal(t, bannerUnverified, f.session.Banner())

	_, err = f.session.RetryVerification(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestStatusUpdateOutageCanBeRetried(t *testing.T) {
	f := newFixture(t, 49950)
	f.gw.statusErr = &domain.GatewayError{Status: http.StatusBadGateway, Message: "upstream"}

	_, err := f.session.Checkout(context.Background(), validForm())
	require.Error(t, err)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.Equal(t, bannerVerifyRetry, f.session.Banner())

	_, err = f.session.RetryVerification(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateComplete, f.session.State())
	assert.Len(t, f.gw.statusCalls, 2)
}

func TestWidgetUnavailableKeepsOrder(t *testing.T) {
	f := newFixture(t, 49950)
	f.script.Close()

	_, err := f.session.Checkout(context.Background(), validForm())
	var unavailable *domain.WidgetUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, StateFormValid, f.session.State())
	assert.Equal(t, bannerWidgetDown, f.session.Banner())
	assert.NotNil(t, f.session.Order())
}

func TestPayRequiresOrder(t *testing.T) {
	f := newFixture(t, 49950)
	_, err := f.session.Pay(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = f.session.RetryVerification(context.Background())
	assert.ErrorIs(t, err, ErrWrongState)
	assert.False(t, errors.Is(err, ErrSubmissionInFlight))
}
