package signature

import (
	"testing"

	"github.com/razorpay/razorpay-go/utils"
	"github.com/stretchr/testify/assert"
)

func TestVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("rzp_test_secret")
	messages := [][]byte{
		PaymentMessage("order_Nx1", "pay_Qy2"),
		[]byte(`{"event":"payment.captured"}`),
		{},
	}
	for _, msg := range messages {
		sig := Compute(secret, msg)
		assert.True(t, Verify(secret, msg, sig), "message %q", msg)
	}
}

func TestVerifyRejectsSingleBitMutations(t *testing.T) {
	t.Parallel()

	secret := []byte("rzp_test_secret")
	msg := PaymentMessage("order_Nx1", "pay_Qy2")
	sig := Compute(secret, msg)

	raw := []byte(sig)
	for i := range raw {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0x01
		assert.False(t, Verify(secret, msg, string(mutated)), "signature byte %d", i)
	}
	for i := range msg {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), msg...)
			mutated[i] ^= 1 << bit
			assert.False(t, Verify(secret, mutated, sig), "message byte %d bit %d", i, bit)
		}
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	t.Parallel()

	secret := []byte("s")
	msg := []byte("m")
	for _, sig := range []string{"", "zz", "not-hex-at-all", Compute(secret, msg)[:10], Compute(secret, msg) + "00"} {
		assert.False(t, Verify(secret, msg, sig), "sig %q", sig)
	}
}

func TestEmptySecretPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { Compute(nil, []byte("m")) })
	assert.Panics(t, func() { Verify([]byte{}, []byte("m"), "00") })
}

func TestMatchesProviderSDK(t *testing.T) {
	t.Parallel()

	body := `{"event":"payment.captured","payload":{}}`
	secret := "whsec_test"
	sig := Compute([]byte(secret), []byte(body))
	assert.True(t, utils.VerifyWebhookSignature(body, sig, secret))
}
