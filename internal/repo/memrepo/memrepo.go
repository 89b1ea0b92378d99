// Package memrepo keeps orders, payment orders and the catalogue in process
// memory. It backs simulations and tests; it has the same compare-and-set
// semantics as the PostgreSQL repositories.
package memrepo

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
)

type Orders struct {
	mu      sync.Mutex
	next    int64
	orders  map[string]domain.CommerceOrder
	history map[string][]domain.StatusChange
}

func NewOrders() *Orders {
	return &Orders{next: 1000, orders: map[string]domain.CommerceOrder{}, history: map[string][]domain.StatusChange{}}
}

func (m *Orders) Create(_ context.Context, o *domain.CommerceOrder, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	now := time.Now().UTC()
	o.ID = uuid.NewString()
	o.OrderNumber = strconv.FormatInt(m.next, 10)
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	cp.LineItems = slices.Clone(o.LineItems)
	m.orders[o.ID] = cp
	m.history[o.ID] = []domain.StatusChange{{Status: o.Status, Note: "Order created", At: now}}
	return nil
}

func (m *Orders) FindByID(_ context.Context, id string) (*domain.CommerceOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	o.LineItems = slices.Clone(o.LineItems)
	return &o, nil
}

func (m *Orders) UpdateStatusIf(_ context.Context, id string, from, to domain.OrderStatus, note string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	now := time.Now().UTC()
	o.Status, o.UpdatedAt = to, now
	m.orders[id] = o
	m.history[id] = append(m.history[id], domain.StatusChange{Status: to, Note: note, At: now})
	return true, nil
}

func (m *Orders) History(_ context.Context, id string) ([]domain.StatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return slices.Clone(h), nil
}

// Status is the stored status of id, or "" when unknown.
func (m *Orders) Status(id string) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type Payments struct {
	mu   sync.Mutex
	byID map[string]domain.PaymentOrder
}

func NewPayments() *Payments { return &Payments{byID: map[string]domain.PaymentOrder{}} }

func (m *Payments) Create(_ context.Context, p *domain.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.byID[p.ID] = *p
	return nil
}

func (m *Payments) FindByID(_ context.Context, id string) (*domain.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &p, nil
}

func (m *Payments) FindByPaymentID(_ context.Context, paymentID string) (*domain.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.PaymentID == paymentID {
			return &p, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (m *Payments) ListByReceipt(_ context.Context, receiptRef string) ([]domain.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PaymentOrder
	for _, p := range m.byID {
		if p.ReceiptRef == receiptRef {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.PaymentOrder) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Payments) MarkPaid(_ context.Context, id, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if p.Status == domain.PaymentPaid {
		return false, nil
	}
	for _, other := range m.byID {
		if other.ReceiptRef == p.ReceiptRef && other.Status == domain.PaymentPaid {
			return false, repo.ErrAlreadyPaid
		}
	}
	p.Status, p.PaymentID, p.UpdatedAt = domain.PaymentPaid, paymentID, time.Now().UTC()
	m.byID[id] = p
	return true, nil
}

func (m *Payments) MarkAttemptFailed(_ context.Context, id, paymentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, repo.ErrNotFound
	}
	if p.Status != domain.PaymentCreated {
		return false, nil
	}
	p.Status, p.PaymentID, p.UpdatedAt = domain.PaymentAttemptFailed, paymentID, time.Now().UTC()
	m.byID[id] = p
	return true, nil
}

// Catalog is a fixed catalogue keyed by product id.
type Catalog map[int64]domain.Product

func NewCatalog(products ...domain.Product) Catalog {
	c := make(Catalog, len(products))
	for _, p := range products {
		c[p.ID] = p
	}
	return c
}

func (c Catalog) Products(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := map[int64]domain.Product{}
	for _, id := range ids {
		if p, ok := c[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

var (
	_ repo.OrderRepo   = (*Orders)(nil)
	_ repo.PaymentRepo = (*Payments)(nil)
	_ repo.CatalogRepo = Catalog(nil)
)
