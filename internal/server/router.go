// Package server exposes the checkout API over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/server/middleware"
)

// HealthChecker reports dependency health; database.Service implements it.
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

type Handlers struct {
	Orders   *OrderHandler
	Payments *PaymentHandler
	Tokens   *TokenHandler
	Authz    *middleware.Authz
	Health   HealthChecker
	// Log is the request logger; nil uses the process logger.
	Log *slog.Logger
}

var bindingNames sync.Once

// useJSONFieldNames makes gin's validator report fields by their JSON name.
func useJSONFieldNames() {
	bindingNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

func NewRouter(h Handlers, allowedOrigins []string) *gin.Engine {
	useJSONFieldNames()

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics())
	log := h.Log
	if log == nil {
		log = logging.New("http")
	}
	r.Use(middleware.Logging(log))
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		stats := h.Health.Health(c.Request.Context())
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, stats)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/token", h.Tokens.IssueToken)

		pay := apiGroup.Group("/payment")
		pay.POST("/create-order", h.Payments.CreateOrder)
		pay.POST("/verify", h.Payments.Verify)
		pay.POST("/webhook", h.Payments.Webhook)

		orders := apiGroup.Group("/orders")
		orders.POST("/create", h.Orders.CreateOrder)
		orders.GET("/:id", h.Orders.GetOrder)
		orders.GET("/:id/history", h.Orders.History)
		orders.POST("/:id/status", h.Orders.UpdateStatus)
		orders.POST("/:id/resend-notification", h.Authz.Require(middleware.PermOrdersWrite), h.Orders.ResendNotification)
	}

	return r
}
