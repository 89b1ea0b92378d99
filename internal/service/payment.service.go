package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/signature"
)

type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, amountMinor int64, receiptRef string, notes map[string]string) (*domain.PaymentOrder, error)
	// VerifyPayment checks a checkout result's signature. It changes nothing.
	VerifyPayment(ctx context.Context, result domain.PaymentAttemptResult) bool
	// ConfirmPayment verifies proof and moves the order to the paid-equivalent
	// status. Confirming an already confirmed order is a no-op.
	ConfirmPayment(ctx context.Context, orderID string, proof domain.PaymentAttemptResult, note string, sendNotification bool) (*domain.CommerceOrder, error)

	PaymentCaptured(ctx context.Context, paymentOrderID, paymentID string, amountMinor int64) (bool, error)
	PaymentFailed(ctx context.Context, paymentOrderID, paymentID, reason string) (bool, error)
	RefundCreated(ctx context.Context, refundID, paymentID string) (bool, error)
}

type paymentService struct {
	orders       repo.OrderRepo
	payments     repo.PaymentRepo
	transitions  Transitioner
	gateway      payment.PaymentGateway
	keySecret    []byte
	merchantName string
	log          *slog.Logger
}

func NewPaymentService(
	orders repo.OrderRepo,
	payments repo.PaymentRepo,
	transitions Transitioner,
	gateway payment.PaymentGateway,
	keySecret string,
	merchantName string,
	log *slog.Logger,
) PaymentService {
	if keySecret == "" {
		panic("service: empty payment key secret")
	}
	return &paymentService{
		orders:       orders,
		payments:     payments,
		transitions:  transitions,
		gateway:      gateway,
		keySecret:    []byte(keySecret),
		merchantName: merchantName,
		log:          log,
	}
}

func (s *paymentService) CreatePaymentOrder(ctx context.Context, amountMinor int64, receiptRef string, notes map[string]string) (*domain.PaymentOrder, error) {
	if amountMinor <= 0 {
		return nil, domain.NewValidationError(map[string]string{"amountMinor": "Amount must be a positive number of paise"})
	}
	if receiptRef == "" {
		return nil, domain.NewValidationError(map[string]string{"receiptRef": "Receipt is required"})
	}

	order, err := s.orders.FindByID(ctx, receiptRef)
	if err != nil {
		return nil, err
	}
	if !order.Status.Payable() {
		return nil, fmt.Errorf("%w: order %s is %s", ErrNotPayable, order.ID, order.Status)
	}
	// the charge must match the total fixed when the order was placed
	if amountMinor != order.Totals.Total {
		return nil, fmt.Errorf("%w: requested %d, order total %d", ErrAmountMismatch, amountMinor, order.Totals.Total)
	}

	merged := make(map[string]string, len(notes)+3)
	maps.Copy(merged, notes)
	merged["merchant"] = s.merchantName
	merged["order_id"] = order.ID
	merged["order_number"] = order.OrderNumber

	po, err := s.gateway.CreateOrder(ctx, payment.OrderRequest{
		AmountMinor: amountMinor,
		Currency:    domain.CurrencyINR,
		Receipt:     order.ID,
		Notes:       merged,
	})
	if err != nil {
		return nil, err
	}
	po.ReceiptRef = order.ID
	po.Status = domain.PaymentCreated
	if err := s.payments.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("store payment order: %w", err)
	}

	s.log.Info("payment order created", "order_id", order.ID, "payment_order_id", po.ID, "amount_minor", po.AmountMinor)
	return po, nil
}

func (s *paymentService) VerifyPayment(_ context.Context, result domain.PaymentAttemptResult) bool {
	if !result.Complete() {
		return false
	}
	return signature.Verify(s.keySecret, signature.PaymentMessage(result.PaymentOrderID, result.PaymentID), result.Signature)
}

func (s *paymentService) ConfirmPayment(ctx context.Context, orderID string, proof domain.PaymentAttemptResult, note string, sendNotification bool) (*domain.CommerceOrder, error) {
	failure := &domain.VerificationFailure{PaymentOrderID: proof.PaymentOrderID, PaymentID: proof.PaymentID}
	if !s.VerifyPayment(ctx, proof) {
		s.log.Warn("payment proof rejected", "order_id", orderID, "payment_order_id", proof.PaymentOrderID)
		return nil, failure
	}

	po, err := s.payments.FindByID(ctx, proof.PaymentOrderID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, failure
	}
	if err != nil {
		return nil, err
	}
	if po.ReceiptRef != orderID {
		s.log.Warn("payment proof belongs to another order", "order_id", orderID, "receipt_ref", po.ReceiptRef)
		return nil, failure
	}
	if po.Status == domain.PaymentPaid && po.PaymentID != proof.PaymentID {
		return nil, failure
	}

	if _, err := s.payments.MarkPaid(ctx, po.ID, proof.PaymentID); err != nil {
		return nil, err
	}
	if note == "" {
		note = "Payment verified: " + proof.PaymentID
	}
	return s.markOrderPaid(ctx, orderID, note, sendNotification)
}

// markOrderPaid moves the order to processing. An order that has already
// moved past processing is left alone.
func (s *paymentService) markOrderPaid(ctx context.Context, orderID, note string, sendNotification bool) (*domain.CommerceOrder, error) {
	order, _, err := s.transitions.Transition(ctx, orderID, domain.OrderProcessing, note, sendNotification)
	if errors.Is(err, ErrInvalidTransition) && order != nil {
		switch order.Status {
		case domain.OrderShipped, domain.OrderCompleted:
			return order, nil
		}
		s.log.Error("payment captured for an order that cannot accept it; refund manually",
			"order_id", orderID, "status", order.Status)
	}
	return order, err
}

func (s *paymentService) PaymentCaptured(ctx context.Context, paymentOrderID, paymentID string, amountMinor int64) (bool, error) {
	po, err := s.payments.FindByID(ctx, paymentOrderID)
	if err != nil {
		return false, err
	}
	if amountMinor > 0 && amountMinor != po.AmountMinor {
		return false, fmt.Errorf("%w: captured %d, payment order %d", ErrAmountMismatch, amountMinor, po.AmountMinor)
	}
	if _, err := s.payments.MarkPaid(ctx, po.ID, paymentID); err != nil {
		if errors.Is(err, repo.ErrAlreadyPaid) {
			s.log.Error("second captured payment for one order; refund manually",
				"order_id", po.ReceiptRef, "payment_order_id", po.ID, "payment_id", paymentID)
		}
		return false, err
	}

	_, changed, err := s.transitions.Transition(ctx, po.ReceiptRef, domain.OrderProcessing, "Payment captured: "+paymentID, true)
	if errors.Is(err, ErrInvalidTransition) {
		s.log.Info("payment.captured ignored for order state", "order_id", po.ReceiptRef, "err", err)
		return false, nil
	}
	return changed, err
}

func (s *paymentService) PaymentFailed(ctx context.Context, paymentOrderID, paymentID, reason string) (bool, error) {
	po, err := s.payments.FindByID(ctx, paymentOrderID)
	if err != nil {
		return false, err
	}
	if _, err := s.payments.MarkAttemptFailed(ctx, po.ID, paymentID); err != nil {
		return false, err
	}

	note := "Payment failed"
	if reason != "" {
		note += ": " + reason
	}
	_, changed, err := s.transitions.Transition(ctx, po.ReceiptRef, domain.OrderFailed, note, true)
	if errors.Is(err, ErrInvalidTransition) {
		s.log.Info("payment.failed ignored for order state", "order_id", po.ReceiptRef, "err", err)
		return false, nil
	}
	return changed, err
}

func (s *paymentService) RefundCreated(ctx context.Context, refundID, paymentID string) (bool, error) {
	po, err := s.payments.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return false, err
	}
	_, changed, err := s.transitions.Transition(ctx, po.ReceiptRef, domain.OrderRefunded, "Refund created: "+refundID, true)
	if errors.Is(err, ErrInvalidTransition) {
		s.log.Info("refund.created ignored for order state", "order_id", po.ReceiptRef, "err", err)
		return false, nil
	}
	return changed, err
}
