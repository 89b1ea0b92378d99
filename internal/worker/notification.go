package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/notify"
)

var emailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_emails_total",
		Help: "Email delivery outcomes by template",
	},
	[]string{"template", "outcome"},
)

// NotificationWorker drains a notification source one message at a time,
// spacing sends with a fixed interval and retrying each failed send a fixed
// number of times.
type NotificationWorker struct {
	source     notify.Source
	sender     notify.Sender
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger
}

func NewNotificationWorker(
	source notify.Source,
	sender notify.Sender,
	interval time.Duration,
	maxRetries int,
	backoff time.Duration,
	log *slog.Logger,
) *NotificationWorker {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &NotificationWorker{
		source:     source,
		sender:     sender,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        log,
	}
}

// Run blocks until ctx is cancelled or the source is exhausted.
func (w *NotificationWorker) Run(ctx context.Context) error {
	deliveries, err := w.source.Deliveries(ctx)
	if err != nil {
		return err
	}

	w.log.Info("notification worker started")
	defer w.log.Info("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := w.limiter.Wait(ctx); err != nil {
				env.Nack(true)
				return nil
			}
			w.deliver(ctx, env)
		}
	}
}

// deliver never returns the send error: a message that exhausts its retries
// is logged and acknowledged so it does not block the queue.
func (w *NotificationWorker) deliver(ctx context.Context, env notify.Envelope) {
	m := env.Message
	attempts := 0
	var lastErr error
	for attempts <= w.maxRetries {
		if attempts > 0 {
			w.log.Warn("retrying email send", "recipient", m.To, "template", m.Template,
				"attempts_left", w.maxRetries-attempts+1)
			select {
			case <-ctx.Done():
				env.Nack(true)
				return
			case <-time.After(w.backoff):
			}
		}
		attempts++

		messageID, err := w.sender.Send(ctx, m)
		if err == nil {
			emailsTotal.WithLabelValues(m.Template, "sent").Inc()
			w.log.Info("email sent",
				"recipient", m.To, "order_id", m.OrderID, "template", m.Template,
				"message_id", messageID, "attempts", attempts, "success", true)
			env.Ack()
			return
		}
		lastErr = err
	}

	failure := &domain.NotificationFailure{Recipient: m.To, Template: m.Template, Attempts: attempts, Cause: lastErr}
	emailsTotal.WithLabelValues(m.Template, "failed").Inc()
	w.log.Error("email failed",
		"recipient", m.To, "order_id", m.OrderID, "template", m.Template,
		"attempts", attempts, "success", false, "err", failure)
	env.Ack()
}
