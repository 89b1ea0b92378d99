package webhook

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/signature"
)

const hookSecret = "whsec_test"

type call struct {
	Kind, PaymentOrderID, PaymentID string
}

// onceReconciler applies each event at most once, the way the payment
// service's compare-and-set updates do.
type onceReconciler struct {
	mu      sync.Mutex
	calls   []call
	applied map[string]bool
	err     error
}

func (f *onceReconciler) record(kind, a, b string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind, a, b})
	if f.err != nil {
		return false, f.err
	}
	if f.applied == nil {
		f.applied = map[string]bool{}
	}
	key := kind + a + b
	if f.applied[key] {
		return false, nil
	}
	f.applied[key] = true
	return true, nil
}

func (f *onceReconciler) PaymentCaptured(_ context.Context, po, pay string, _ int64) (bool, error) {
	return f.record("captured", po, pay)
}
func (f *onceReconciler) PaymentFailed(_ context.Context, po, pay, _ string) (bool, error) {
	return f.record("failed", po, pay)
}
func (f *onceReconciler) RefundCreated(_ context.Context, refund, pay string) (bool, error) {
	return f.record("refund", refund, pay)
}

func signedEvent(t *testing.T, event string) ([]byte, string, string) {
	t.Helper()
	sb := payment.NewSandboxGateway("key", hookSecret)
	po, err := sb.CreateOrder(context.Background(), payment.OrderRequest{AmountMinor: 1234567, Currency: "INR"})
	require.NoError(t, err)
	body, sig, err := sb.WebhookEvent(event, po.ID, "pay_123")
	require.NoError(t, err)
	return body, sig, po.ID
}

func TestInvalidSignatureNeverDispatches(t *testing.T) {
	rec := &onceReconciler{}
	r := NewReceiver(hookSecret, rec, logging.Discard())
	body, sig, _ := signedEvent(t, EventPaymentCaptured)

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] ^= 1

	for _, tc := range []struct {
		name string
		body []byte
		sig  string
	}{
		{"empty signature", body, ""},
		{"garbage signature", body, "zz"},
		{"signature for other secret", body, signature.Compute([]byte("other"), body)},
		{"tampered body", tampered, sig},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Handle(context.Background(), tc.body, tc.sig)
			assert.Equal(t, http.StatusBadRequest, res.Status)
		})
	}
	assert.Empty(t, rec.calls)
}

func TestDuplicateCaptureAppliesOnce(t *testing.T) {
	rec := &onceReconciler{}
	r := NewReceiver(hookSecret, rec, logging.Discard())
	body, sig, poID := signedEvent(t, EventPaymentCaptured)

	assert.Equal(t, http.StatusOK, r.Handle(context.Background(), body, sig).Status)
	assert.Equal(t, http.StatusOK, r.Handle(context.Background(), body, sig).Status)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, call{"captured", poID, "pay_123"}, rec.calls[0])
	assert.Len(t, rec.applied, 1)
}

func TestDispatchByEventType(t *testing.T) {
	rec := &onceReconciler{}
	r := NewReceiver(hookSecret, rec, logging.Discard())

	body, sig, poID := signedEvent(t, EventPaymentFailed)
	assert.Equal(t, http.StatusOK, r.Handle(context.Background(), body, sig).Status)
	body, sig, _ = signedEvent(t, EventRefundCreated)
	assert.Equal(t, http.StatusOK, r.Handle(context.Background(), body, sig).Status)

	require.Len(t, rec.calls, 2)
	assert.Equal(t, call{"failed", poID, "pay_123"}, rec.calls[0])
	assert.Equal(t, "refund", rec.calls[1].Kind)
	assert.Equal(t, "pay_123", rec.calls[1].PaymentID)
}

func TestUnknownEventIsAcknowledged(t *testing.T) {
	rec := &onceReconciler{}
	r := NewReceiver(hookSecret, rec, logging.Discard())
	body := []byte(`{"entity":"event","event":"payment.authorized","payload":{}}`)

	res := r.Handle(context.Background(), body, signature.Compute([]byte(hookSecret), body))
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Empty(t, rec.calls)
}

func TestStoreFailureAsksForRedelivery(t *testing.T) {
	body, sig, _ := signedEvent(t, EventPaymentCaptured)

	r := NewReceiver(hookSecret, &onceReconciler{err: errors.New("connection reset")}, logging.Discard())
	assert.Equal(t, http.StatusInternalServerError, r.Handle(context.Background(), body, sig).Status)

	r = NewReceiver(hookSecret, &onceReconciler{err: repo.ErrNotFound}, logging.Discard())
	assert.Equal(t, http.StatusOK, r.Handle(context.Background(), body, sig).Status)
}

func TestPeekEventType(t *testing.T) {
	assert.Equal(t, "payment.captured", peekEventType([]byte(`{"event":"payment.captured"}`)))
	assert.Equal(t, "unknown", peekEventType([]byte(`not json`)))
}
