package checkout

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
)

// CartLine is one cart row as the storefront holds it. Product and
// variation ids are catalogue ids in string form.
type CartLine struct {
	ProductID      string
	VariationID    string
	Name           string
	Quantity       int
	UnitPriceMinor int64
}

type Cart struct {
	mu    sync.Mutex
	lines []CartLine
}

func NewCart(lines ...CartLine) *Cart {
	return &Cart{lines: append([]CartLine(nil), lines...)}
}

func (c *Cart) Add(l CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if c.lines[i].ProductID == l.ProductID && c.lines[i].VariationID == l.VariationID {
			c.lines[i].Quantity += l.Quantity
			return
		}
	}
	c.lines = append(c.lines, l)
}

func (c *Cart) Lines() []CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CartLine(nil), c.lines...)
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// SubtotalMinor is the display subtotal. The server prices the order itself.
func (c *Cart) SubtotalMinor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum int64
	for _, l := range c.lines {
		sum += l.UnitPriceMinor * int64(l.Quantity)
	}
	return sum
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// LineItems converts the cart into order lines. Ids must be positive
// integers.
func (c *Cart) LineItems() ([]api.LineItemRequest, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, domain.NewValidationError(map[string]string{"lineItems": "Your cart is empty"})
	}
	fields := map[string]string{}
	out := make([]api.LineItemRequest, 0, len(lines))
	for i, l := range lines {
		item := api.LineItemRequest{Quantity: l.Quantity}
		id, ok := parseID(l.ProductID)
		if !ok {
			fields[fmt.Sprintf("lineItems.%d.productId", i)] = "Invalid product"
		}
		item.ProductID = id
		if strings.TrimSpace(l.VariationID) != "" {
			vid, ok := parseID(l.VariationID)
			if !ok {
				fields[fmt.Sprintf("lineItems.%d.variationId", i)] = "Invalid product variation"
			}
			item.VariationID = vid
		}
		if l.Quantity < 1 {
			fields[fmt.Sprintf("lineItems.%d.quantity", i)] = "Quantity must be at least 1"
		}
		out = append(out, item)
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}
	return out, nil
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
