// Package bootstrap assembles the checkout server from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"storefront-checkout/configs"
	"storefront-checkout/internal/database"
	"storefront-checkout/internal/infrastructure/cache"
	"storefront-checkout/internal/infrastructure/commerce"
	"storefront-checkout/internal/infrastructure/events"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/infrastructure/queue"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/notify"
	"storefront-checkout/internal/repo"
	"storefront-checkout/internal/server"
	"storefront-checkout/internal/server/middleware"
	"storefront-checkout/internal/service"
	"storefront-checkout/internal/webhook"
	"storefront-checkout/internal/worker"
)

// Stores are the persistence the services run on.
type Stores struct {
	Orders   repo.OrderRepo
	Payments repo.PaymentRepo
	Catalog  repo.CatalogRepo
	Health   server.HealthChecker
}

// Backends are the optional outside systems. Nil fields fall back to
// in-process or no-op implementations.
type Backends struct {
	Gateway   payment.PaymentGateway
	Cache     service.OrderCache
	Publisher service.StatusPublisher
	Mirror    service.StatusMirror
	Queue     notify.Queue
	Source    notify.Source
	Sender    notify.Sender
}

// App is a wired server: the HTTP API plus the notification worker.
type App struct {
	cfg      configs.Config
	router   *gin.Engine
	orders   service.OrderService
	payments service.PaymentService
	worker   *worker.NotificationWorker
	closers  []func() error
	log      *slog.Logger
}

// Assemble wires services and handlers over the given stores and backends.
func Assemble(cfg configs.Config, st Stores, be Backends, log *slog.Logger) (*App, error) {
	pricing, err := cfg.PricingPolicy()
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: log}

	if st.Health == nil {
		st.Health = memoryHealth{}
	}
	if be.Gateway == nil {
		be.Gateway = NewPaymentGateway(cfg)
	}
	if be.Cache == nil {
		be.Cache = cache.NopOrderCache{}
	}
	if be.Publisher == nil {
		be.Publisher = events.NopPublisher{}
	}
	if be.Mirror == nil {
		be.Mirror = commerce.NopMirror{}
	}
	if be.Queue == nil {
		mq := notify.NewMemoryQueue(0)
		be.Queue, be.Source = mq, mq
		a.closers = append(a.closers, func() error { mq.Close(); return nil })
	}
	if be.Sender == nil {
		be.Sender = notify.LogSender{Log: logging.New("email")}
	}

	notifier := notify.NewNotifier(notify.Config{
		SiteName:        cfg.Site.Name,
		SiteURL:         cfg.Site.BaseURL,
		SenderAddress:   cfg.Email.SenderAddress,
		AdminRecipients: cfg.Email.AdminRecipients,
		AdminURL:        cfg.Site.BaseURL + "/admin/orders",
	}, be.Queue, logging.New("notify"))

	a.orders = service.NewOrderService(st.Orders, st.Catalog, pricing,
		be.Cache, be.Publisher, be.Mirror, notifier, logging.New("orders"))
	a.payments = service.NewPaymentService(st.Orders, st.Payments, a.orders, be.Gateway,
		cfg.Payment.KeySecret, cfg.Payment.MerchantName, logging.New("payments"))

	authz := middleware.NewAuthz(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.Audience)
	receiver := webhook.NewReceiver(cfg.Payment.WebhookSecret, a.payments, logging.New("webhook"))
	a.router = server.NewRouter(server.Handlers{
		Orders:   server.NewOrderHandler(a.orders, a.payments, authz),
		Payments: server.NewPaymentHandler(a.payments, receiver),
		Tokens:   server.NewTokenHandler(authz, cfg.Security.ClientID, cfg.Security.ClientSecret, cfg.Security.TTL),
		Authz:    authz,
		Health:   st.Health,
	}, cfg.HTTP.AllowedOrigins)

	if be.Source != nil {
		a.worker = worker.NewNotificationWorker(be.Source, be.Sender,
			cfg.Email.SendInterval, cfg.Email.MaxRetries, cfg.Email.RetryBackoff, logging.New("email-worker"))
	}
	return a, nil
}

type memoryHealth struct{}

func (memoryHealth) Health(context.Context) map[string]string {
	return map[string]string{"status": "up", "message": "in-memory store"}
}

// NewPaymentGateway picks the provider client named by payment.provider.
func NewPaymentGateway(cfg configs.Config) payment.PaymentGateway {
	if cfg.Payment.Provider == "razorpay" {
		return payment.NewRazorpayGateway(cfg.Payment.KeyID, cfg.Payment.KeySecret)
	}
	return payment.NewSandboxGateway(cfg.Payment.KeySecret, cfg.Payment.WebhookSecret)
}

// Open connects to PostgreSQL and every configured backend and assembles
// the App. Backends left unconfigured run in-process.
func Open(ctx context.Context, cfg configs.Config) (*App, error) {
	log := logging.New("bootstrap")
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	db, err := database.NewPostgres(ctx, cfg.Postgres.DSN, database.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return fail(err)
	}
	dbSvc := database.New(db, logging.New("database"))
	closers = append(closers, dbSvc.Close)
	if err := database.Migrate(ctx, db); err != nil {
		return fail(err)
	}

	st := Stores{
		Orders:   repo.NewOrderRepo(db),
		Payments: repo.NewPaymentRepo(db),
		Catalog:  repo.NewCatalogRepo(db),
		Health:   dbSvc,
	}
	var be Backends

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return fail(fmt.Errorf("redis: %w", err))
		}
		closers = append(closers, rdb.Close)
		be.Cache = cache.NewRedisOrderCache(rdb, cfg.Redis.OrderTTL)
		log.Info("order cache enabled", "addr", cfg.Redis.Addr)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := events.NewStatusPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		if err != nil {
			return fail(fmt.Errorf("kafka: %w", err))
		}
		closers = append(closers, pub.Close)
		be.Publisher = pub
		log.Info("status events enabled", "topic", cfg.Kafka.TopicEvents)
	}

	if cfg.Commerce.GraphQLEndpoint != "" {
		be.Mirror = commerce.NewGraphQLMirror(cfg.Commerce.GraphQLEndpoint, cfg.Commerce.AuthToken, cfg.Commerce.Timeout)
	}

	if cfg.Rabbit.URL != "" {
		conn, err := amqp.Dial(cfg.Rabbit.URL)
		if err != nil {
			return fail(fmt.Errorf("rabbitmq: %w", err))
		}
		closers = append(closers, conn.Close)
		ch, err := conn.Channel()
		if err != nil {
			return fail(fmt.Errorf("rabbitmq channel: %w", err))
		}
		closers = append(closers, ch.Close)
		rq, err := queue.NewRabbitQueue(ch, cfg.Rabbit.Queue, logging.New("rabbitmq"))
		if err != nil {
			return fail(err)
		}
		be.Queue, be.Source = rq, rq
		log.Info("durable notification queue enabled", "queue", cfg.Rabbit.Queue)
	}

	if cfg.Email.SenderAddress != "" && cfg.Email.SenderCredential != "" {
		be.Sender = notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SenderAddress,
			Password: cfg.Email.SenderCredential,
		})
	}

	app, err := Assemble(cfg, st, be, logging.New("app"))
	if err != nil {
		return fail(err)
	}
	app.closers = append(closers, app.closers...)
	return app, nil
}

func (a *App) Router() *gin.Engine { return a.router }

func (a *App) Orders() service.OrderService { return a.orders }

func (a *App) Payments() service.PaymentService { return a.payments }

// Run serves HTTP and drains notifications until ctx is cancelled or one
// of them fails.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting", "addr", a.cfg.App.HTTPAddr, "provider", a.cfg.Payment.Provider, "live", a.cfg.LiveMode())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, a.router, server.Options{
			Addr:         a.cfg.App.HTTPAddr,
			ReadTimeout:  a.cfg.HTTP.ReadTimeout,
			WriteTimeout: a.cfg.HTTP.WriteTimeout,
			IdleTimeout:  a.cfg.HTTP.IdleTimeout,
		}, logging.New("http"))
	})
	if a.worker != nil {
		g.Go(func() error {
			err := a.worker.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// RunWorker drains notifications until ctx is cancelled. It is for callers
// that serve the router themselves.
func (a *App) RunWorker(ctx context.Context) error {
	if a.worker == nil {
		return nil
	}
	return a.worker.Run(ctx)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
