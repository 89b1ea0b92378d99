package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
)

func TestCartLineItems(t *testing.T) {
	c := NewCart(CartLine{ProductID: "2", VariationID: "20", Quantity: 1, UnitPriceMinor: 1143118})
	c.Add(CartLine{ProductID: "1", Quantity: 2, UnitPriceMinor: 49950})
	c.Add(CartLine{ProductID: "1", Quantity: 1, UnitPriceMinor: 49950})

	items, err := c.LineItems()
	require.NoError(t, err)
	assert.Equal(t, []api.LineItemRequest{
		{ProductID: 2, VariationID: 20, Quantity: 1},
		{ProductID: 1, Quantity: 3},
	}, items)
	assert.Equal(t, int64(1143118+3*49950), c.SubtotalMinor())
}

func TestCartRejectsBadIDs(t *testing.T) {
	c := NewCart(
		CartLine{ProductID: "abc", Quantity: 1},
		CartLine{ProductID: "-4", VariationID: "x", Quantity: 0},
	)
	_, err := c.LineItems()
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"lineItems.0.productId", "lineItems.1.productId", "lineItems.1.variationId", "lineItems.1.quantity",
	}, verr.FieldKeys())

	_, err = NewCart().LineItems()
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "lineItems")
}

func TestQueryCacheInvalidate(t *testing.T) {
	c := NewQueryCache()
	c.Set("order:1", 1)
	c.Set("order:12", 2)
	c.Set("customer:me", 3)

	assert.Equal(t, 2, c.Invalidate("order:1"))
	_, ok := c.Get("customer:me")
	assert.True(t, ok)
}
