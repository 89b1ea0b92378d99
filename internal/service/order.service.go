package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/events"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/repo"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*domain.CommerceOrder, error)
	GetOrder(ctx context.Context, id string) (*domain.CommerceOrder, error)
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
	// UpdateStatus is the operator path. It refuses the paid-equivalent
	// status, which needs a verified payment.
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus, note string, sendNotification bool) (*domain.CommerceOrder, error)
	ResendNotification(ctx context.Context, id string, aud notify.Audience) error
	Transitioner
}

// Transitioner applies a single compare-and-set status change. Repeating a
// transition to the status the order already has is a no-op that reports
// changed=false; side effects run only when changed is true.
type Transitioner interface {
	Transition(ctx context.Context, id string, to domain.OrderStatus, note string, sendNotification bool) (order *domain.CommerceOrder, changed bool, err error)
}

type orderService struct {
	orders    repo.OrderRepo
	catalog   repo.CatalogRepo
	pricing   domain.PricingPolicy
	cache     OrderCache
	publisher StatusPublisher
	mirror    StatusMirror
	notifier  Notifier
	log       *slog.Logger
	now       func() time.Time
}

func NewOrderService(
	orders repo.OrderRepo,
	catalog repo.CatalogRepo,
	pricing domain.PricingPolicy,
	cache OrderCache,
	publisher StatusPublisher,
	mirror StatusMirror,
	notifier Notifier,
	log *slog.Logger,
) OrderService {
	return &orderService{
		orders:    orders,
		catalog:   catalog,
		pricing:   pricing,
		cache:     cache,
		publisher: publisher,
		mirror:    mirror,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

func (s *orderService) CreateOrder(ctx context.Context, req api.CreateOrderRequest) (*domain.CommerceOrder, error) {
	form := req.Form()
	fields := map[string]string{}
	if err := domain.ValidateCheckoutForm(form); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		for k, v := range verr.Fields {
			fields[k] = v
		}
	}
	if len(req.LineItems) == 0 {
		fields["lineItems"] = "Your cart is empty"
	}
	for i, it := range req.LineItems {
		if it.ProductID <= 0 {
			fields["lineItems."+strconv.Itoa(i)+".productId"] = "Invalid product"
		}
		if it.Quantity < 1 {
			fields["lineItems."+strconv.Itoa(i)+".quantity"] = "Quantity must be at least 1"
		}
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}

	items, err := s.priceLineItems(ctx, req.LineItems)
	if err != nil {
		return nil, err
	}

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "razorpay"
	}
	order := &domain.CommerceOrder{
		LineItems:    items,
		Totals:       s.pricing.Quote(items),
		Status:       domain.OrderPending,
		Contact:      form.Contact,
		Billing:      form.BillingAddress(),
		Shipping:     form.Shipping,
		CustomerNote: form.CustomerNote,
	}
	if err := s.orders.Create(ctx, order, paymentMethod); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.log.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "total_minor", order.Totals.Total)
	s.publish(ctx, order, "", "Order created")
	return order, nil
}

// priceLineItems snapshots names and prices from the catalogue. A variation
// must belong to the product it is ordered under.
func (s *orderService) priceLineItems(ctx context.Context, lines []api.LineItemRequest) ([]domain.LineItem, error) {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
		if l.VariationID > 0 {
			ids = append(ids, l.VariationID)
		}
	}
	products, err := s.catalog.Products(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}

	fields := map[string]string{}
	items := make([]domain.LineItem, 0, len(lines))
	for i, l := range lines {
		product, ok := products[l.ProductID]
		if !ok {
			fields["lineItems."+strconv.Itoa(i)+".productId"] = "Product is no longer available"
			continue
		}
		priced := product
		if l.VariationID > 0 {
			v, ok := products[l.VariationID]
			if !ok || v.ParentID != l.ProductID {
				fields["lineItems."+strconv.Itoa(i)+".variationId"] = "Selected option is no longer available"
				continue
			}
			priced = v
		}
		items = append(items, domain.LineItem{
			ProductID:      l.ProductID,
			VariationID:    l.VariationID,
			Name:           priced.Name,
			Quantity:       l.Quantity,
			UnitPriceMinor: priced.PriceMinor,
		})
	}
	if len(fields) > 0 {
		return nil, domain.NewValidationError(fields)
	}
	return items, nil
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*domain.CommerceOrder, error) {
	if o, ok, err := s.cache.Get(ctx, id); err != nil {
		s.log.Warn("order cache read failed", "order_id", id, "err", err)
	} else if ok {
		return o, nil
	}

	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, o); err != nil {
		s.log.Warn("order cache write failed", "order_id", id, "err", err)
	}
	return o, nil
}

func (s *orderService) History(ctx context.Context, id string) ([]domain.StatusChange, error) {
	return s.orders.History(ctx, id)
}

func (s *orderService) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus, note string, sendNotification bool) (*domain.CommerceOrder, error) {
	if to.PaidEquivalent() {
		// repeating the status the order already has is a no-op
		o, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if o.Status == to {
			return o, nil
		}
		return nil, ErrProofRequired
	}
	o, _, err := s.Transition(ctx, id, to, note, sendNotification)
	return o, err
}

// maxTransitionAttempts bounds re-reads after losing a compare-and-set race.
const maxTransitionAttempts = 3

func (s *orderService) Transition(ctx context.Context, id string, to domain.OrderStatus, note string, sendNotification bool) (*domain.CommerceOrder, bool, error) {
	for range maxTransitionAttempts {
		order, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if order.Status == to {
			return order, false, nil
		}
		if !order.Status.CanTransition(to) {
			return order, false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, to)
		}

		changed, err := s.orders.UpdateStatusIf(ctx, id, order.Status, to, note)
		if err != nil {
			return nil, false, fmt.Errorf("update status: %w", err)
		}
		if !changed {
			continue
		}

		from := order.Status
		order.Status = to
		order.UpdatedAt = s.now().UTC()
		s.log.Info("order status changed", "order_id", id, "from", from, "to", to)
		s.afterTransition(ctx, order, from, note, sendNotification)
		return order, true, nil
	}
	return nil, false, fmt.Errorf("%w: order %s kept changing", ErrInvalidTransition, id)
}

// afterTransition runs the side effects of a status change. None of them
// can undo the change, so failures are only logged.
func (s *orderService) afterTransition(ctx context.Context, order *domain.CommerceOrder, from domain.OrderStatus, note string, sendNotification bool) {
	if err := s.cache.Invalidate(ctx, order.ID); err != nil {
		s.log.Warn("order cache invalidate failed", "order_id", order.ID, "err", err)
	}
	s.publish(ctx, order, from, note)
	if err := s.mirror.MirrorStatus(ctx, order, note); err != nil {
		s.log.Warn("commerce status mirror failed", "order_id", order.ID, "status", order.Status, "err", err)
	}
	if sendNotification {
		s.notifier.Notify(ctx, order, order.Status, notify.AudienceBoth)
	}
}

func (s *orderService) publish(ctx context.Context, order *domain.CommerceOrder, from domain.OrderStatus, note string) {
	err := s.publisher.PublishStatusChanged(ctx, events.StatusChanged{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        from,
		To:          order.Status,
		Note:        note,
		TotalMinor:  order.Totals.Total,
		At:          s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("status event publish failed", "order_id", order.ID, "err", err)
	}
}

func (s *orderService) ResendNotification(ctx context.Context, id string, aud notify.Audience) error {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	s.notifier.Notify(ctx, order, order.Status, aud)
	return nil
}
