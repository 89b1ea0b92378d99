package repo_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-checkout/internal/database/dbtest"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/repo"
)

func newOrder() *domain.CommerceOrder {
	addr := domain.Address{Line1: "1 MG Road", City: "Bengaluru", State: "KA", PostalCode: "560001", CountryCode: "IN"}
	items := []domain.LineItem{{ProductID: 11, Name: "Mug", Quantity: 2, UnitPriceMinor: 49950}}
	return &domain.CommerceOrder{
		LineItems: items,
		Totals:    domain.DefaultPricingPolicy().Quote(items),
		Status:    domain.OrderPending,
		Contact:   domain.Contact{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com", Phone: "+91 98765 43210"},
		Billing:   addr,
		Shipping:  addr,
	}
}

func TestOrderRepoLifecycle(t *testing.T) {
	db := dbtest.Postgres(t)
	ctx := context.Background()
	orders := repo.NewOrderRepo(db)

	o := newOrder()
	require.NoError(t, orders.Create(ctx, o, "razorpay"))
	require.NotEmpty(t, o.ID)
	require.NotEmpty(t, o.OrderNumber)

	got, err := orders.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, o.Totals, got.Totals)
	assert.Equal(t, o.Contact, got.Contact)
	assert.Equal(t, o.LineItems, got.LineItems)

	changed, err := orders.UpdateStatusIf(ctx, o.ID, domain.OrderPending, domain.OrderProcessing, "paid")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = orders.UpdateStatusIf(ctx, o.ID, domain.OrderPending, domain.OrderProcessing, "paid")
	require.NoError(t, err)
	assert.False(t, changed, "second compare-and-set must be a no-op")

	hist, err := orders.History(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.OrderPending, hist[0].Status)
	assert.Equal(t, domain.OrderProcessing, hist[1].Status)

	_, err = orders.FindByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestOrderRepoConcurrentTransitionHappensOnce(t *testing.T) {
	db := dbtest.Postgres(t)
	ctx := context.Background()
	orders := repo.NewOrderRepo(db)

	o := newOrder()
	require.NoError(t, orders.Create(ctx, o, ""))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := orders.UpdateStatusIf(ctx, o.ID, domain.OrderPending, domain.OrderProcessing, "")
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestPaymentRepoOnePaidPerOrder(t *testing.T) {
	db := dbtest.Postgres(t)
	ctx := context.Background()
	orders := repo.NewOrderRepo(db)
	payments := repo.NewPaymentRepo(db)

	o := newOrder()
	require.NoError(t, orders.Create(ctx, o, ""))

	first := &domain.PaymentOrder{ID: "order_A", ReceiptRef: o.ID, AmountMinor: o.Totals.Total, Currency: domain.CurrencyINR,
		Status: domain.PaymentCreated, Notes: map[string]string{"merchant": "Storefront"}}
	second := &domain.PaymentOrder{ID: "order_B", ReceiptRef: o.ID, AmountMinor: o.Totals.Total, Currency: domain.CurrencyINR,
		Status: domain.PaymentCreated}
	require.NoError(t, payments.Create(ctx, first))
	require.NoError(t, payments.Create(ctx, second))

	changed, err := payments.MarkAttemptFailed(ctx, "order_A", "pay_1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = payments.MarkPaid(ctx, "order_B", "pay_2")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = payments.MarkPaid(ctx, "order_B", "pay_2")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = payments.MarkPaid(ctx, "order_A", "pay_3")
	assert.ErrorIs(t, err, repo.ErrAlreadyPaid)

	changed, err = payments.MarkAttemptFailed(ctx, "order_B", "pay_2")
	require.NoError(t, err)
	assert.False(t, changed, "paid orders are immutable")

	byPayment, err := payments.FindByPaymentID(ctx, "pay_2")
	require.NoError(t, err)
	assert.Equal(t, "order_B", byPayment.ID)
	assert.Equal(t, domain.PaymentPaid, byPayment.Status)

	list, err := payments.ListByReceipt(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "Storefront", list[0].Notes["merchant"])
}

func TestCatalogRepoProducts(t *testing.T) {
	db := dbtest.Postgres(t)
	dbtest.SeedProducts(t, db,
		domain.Product{ID: 10, Name: "Tee", PriceMinor: 79900},
		domain.Product{ID: 12, ParentID: 10, Name: "Tee - L", PriceMinor: 84900},
	)

	got, err := repo.NewCatalogRepo(db).Products(context.Background(), []int64{10, 12, 99})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(10), got[12].ParentID)
}
