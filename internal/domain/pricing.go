package domain

import (
	"github.com/shopspring/decimal"
)

// PricingPolicy fixes shipping and tax for an order at creation time.
type PricingPolicy struct {
	FreeShippingThreshold int64
	FlatShipping          int64
	TaxRate               decimal.Decimal
}

func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		FreeShippingThreshold: 50000,
		FlatShipping:          10000,
		TaxRate:               decimal.RequireFromString("0.08"),
	}
}

// Quote computes totals for the given line items. Tax is rounded half away
// from zero to the nearest paisa.
func (p PricingPolicy) Quote(items []LineItem) Totals {
	var subtotal int64
	for _, it := range items {
		subtotal += it.TotalMinor()
	}
	shipping := p.FlatShipping
	if subtotal == 0 || (p.FreeShippingThreshold > 0 && subtotal >= p.FreeShippingThreshold) {
		shipping = 0
	}
	tax := decimal.NewFromInt(subtotal).Mul(p.TaxRate).Round(0).IntPart()
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax,
	}
}
