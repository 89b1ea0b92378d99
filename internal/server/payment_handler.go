package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/signature"
	"storefront-checkout/internal/webhook"
)

type PaymentHandler struct {
	payments service.PaymentService
	receiver *webhook.Receiver
}

func NewPaymentHandler(payments service.PaymentService, receiver *webhook.Receiver) *PaymentHandler {
	return &PaymentHandler{payments: payments, receiver: receiver}
}

// CreateOrder handles POST /api/payment/create-order.
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req api.CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	po, err := h.payments.CreatePaymentOrder(ctx, req.AmountMinor, req.ReceiptRef, req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.PaymentOrderResponse{
		ID:          po.ID,
		AmountMinor: po.AmountMinor,
		Currency:    po.Currency,
		Status:      string(po.Status),
		ReceiptRef:  po.ReceiptRef,
	})
}

// Verify handles POST /api/payment/verify. A bad signature is an answer,
// not an error.
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req api.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	ok := h.payments.VerifyPayment(c.Request.Context(), req.Result())
	c.JSON(http.StatusOK, api.VerifyPaymentResponse{Verified: ok})
}

// Webhook handles POST /api/payment/webhook. The body is passed on
// untouched; the signature covers the exact bytes.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, api.ErrorResponse{Error: "unreadable body"})
		return
	}
	res := h.receiver.Handle(c.Request.Context(), raw, c.GetHeader(signature.HeaderName))
	if res.Status >= http.StatusBadRequest {
		c.JSON(res.Status, api.ErrorResponse{Error: http.StatusText(res.Status)})
		return
	}
	c.JSON(res.Status, gin.H{"status": "ok"})
}
