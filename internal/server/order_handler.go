package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storefront-checkout/internal/api"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/server/middleware"
	"storefront-checkout/internal/service"
)

const requestTimeout = 10 * time.Second

type OrderHandler struct {
	orders   service.OrderService
	payments service.PaymentService
	authz    *middleware.Authz
}

func NewOrderHandler(orders service.OrderService, payments service.PaymentService, authz *middleware.Authz) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments, authz: authz}
}

// CreateOrder handles POST /api/orders/create.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req api.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	order, err := h.orders.CreateOrder(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.CreateOrderResponse{
		Success:     true,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Total:       domain.FormatMajor(order.Totals.Total),
		Currency:    domain.CurrencyINR,
		Status:      string(order.Status),
	})
}

// GetOrder handles GET /api/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.OrderResponse{Success: true, Order: order})
}

// History handles GET /api/orders/:id/history.
func (h *OrderHandler) History(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	id := c.Param("id")
	order, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	history, err := h.orders.History(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.HistoryResponse{Success: true, OrderNumber: order.OrderNumber, StatusHistory: history})
}

// UpdateStatus handles POST /api/orders/:id/status. Moving an order to the
// paid status is open to anyone holding a valid payment proof; every other
// change needs an operator token.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req api.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	to, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		writeError(c, domain.NewValidationError(map[string]string{"status": "Unknown order status"}))
		return
	}

	withProof := to.PaidEquivalent() && req.Payment != nil
	if !withProof && !h.authz.Authorize(c, middleware.PermOrdersWrite) {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var (
		order *domain.CommerceOrder
		err   error
	)
	if withProof {
		order, err = h.payments.ConfirmPayment(ctx, c.Param("id"), *req.Payment, req.Note, req.Notify())
	} else {
		order, err = h.orders.UpdateStatus(ctx, c.Param("id"), to, req.Note, req.Notify())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.OrderResponse{
		Success: true,
		Order:   order,
		Message: "Order status updated to " + string(order.Status),
	})
}

// ResendNotification handles POST /api/orders/:id/resend-notification.
func (h *OrderHandler) ResendNotification(c *gin.Context) {
	var req api.ResendNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, bindError(err))
		return
	}
	aud, ok := notify.ParseAudience(req.NotificationType)
	if !ok {
		writeError(c, domain.NewValidationError(map[string]string{"notificationType": "Must be customer, admin or both"}))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	if err := h.orders.ResendNotification(ctx, c.Param("id"), aud); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Notification queued"})
}
