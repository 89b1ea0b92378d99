package payment

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"

	"storefront-checkout/internal/domain"
)

// orderCreator is the slice of the razorpay SDK used here.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayGateway struct {
	orders orderCreator
}

func NewRazorpayGateway(keyID, keySecret string) PaymentGateway {
	client := razorpay.NewClient(keyID, keySecret)
	return &razorpayGateway{orders: client.Order}
}

func (g *razorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*domain.PaymentOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	notes := make(map[string]interface{}, len(req.Notes))
	for k, v := range req.Notes {
		notes[k] = v
	}
	data := map[string]interface{}{
		"amount":          req.AmountMinor,
		"currency":        req.Currency,
		"receipt":         req.Receipt,
		"notes":           notes,
		"payment_capture": 1,
	}

	body, err := g.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create order: %v", ErrProvider, err)
	}
	return parseOrder(body, req)
}

// parseOrder maps the provider's order entity onto a PaymentOrder. Amounts
// come back as JSON numbers.
func parseOrder(body map[string]interface{}, req OrderRequest) (*domain.PaymentOrder, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: order response without id", ErrProvider)
	}
	amount, ok := body["amount"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: order %s: missing amount", ErrProvider, id)
	}
	if int64(amount) != req.AmountMinor {
		return nil, fmt.Errorf("%w: order %s: amount %v does not match requested %d", ErrProvider, id, amount, req.AmountMinor)
	}
	currency, _ := body["currency"].(string)
	if currency == "" {
		currency = req.Currency
	}
	return &domain.PaymentOrder{
		ID:          id,
		AmountMinor: req.AmountMinor,
		Currency:    currency,
		ReceiptRef:  req.Receipt,
		Status:      domain.PaymentCreated,
		Notes:       req.Notes,
	}, nil
}
