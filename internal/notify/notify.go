// Package notify renders order status emails and hands them to a delivery
// queue. Delivery itself happens elsewhere; Notify never reports send errors.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"storefront-checkout/internal/domain"
)

type Audience int

const (
	AudienceCustomer Audience = 1 << iota
	AudienceAdmin

	AudienceBoth = AudienceCustomer | AudienceAdmin
)

func ParseAudience(s string) (Audience, bool) {
	switch s {
	case "customer":
		return AudienceCustomer, true
	case "admin":
		return AudienceAdmin, true
	case "both":
		return AudienceBoth, true
	}
	return 0, false
}

// Message is one rendered email.
type Message struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html"`
	Template string    `json:"template"`
	OrderID  string    `json:"orderId"`
	QueuedAt time.Time `json:"queuedAt"`
}

// Queue accepts rendered messages for later delivery.
type Queue interface {
	Enqueue(ctx context.Context, m Message) error
}

type Config struct {
	SiteName        string
	SiteURL         string
	SenderAddress   string
	AdminRecipients []string
	AdminURL        string
}

type Notifier struct {
	cfg   Config
	queue Queue
	log   *slog.Logger
	now   func() time.Time
}

func NewNotifier(cfg Config, queue Queue, log *slog.Logger) *Notifier {
	return &Notifier{cfg: cfg, queue: queue, log: log, now: time.Now}
}

// Notify renders and enqueues the customer email and one admin email per
// operator address. Rendering or enqueue failures are logged and dropped.
func (n *Notifier) Notify(ctx context.Context, order *domain.CommerceOrder, status domain.OrderStatus, aud Audience) {
	data := n.viewData(order, status)
	var msgs []Message

	if aud&AudienceCustomer != 0 {
		if order.Contact.Email == "" {
			n.log.Warn("order has no customer email", "order_id", order.ID)
		} else {
			name, html, err := renderCustomer(status, data)
			if err != nil {
				n.log.Error("render customer email", "order_id", order.ID, "status", status, "err", err)
			} else {
				msgs = append(msgs, n.message(order, order.Contact.Email,
					fmt.Sprintf("Your Order #%s is %s", order.OrderNumber, status.Label()), name, html))
			}
		}
	}

	if aud&AudienceAdmin != 0 && len(n.cfg.AdminRecipients) > 0 {
		html, err := renderAdmin(data)
		if err != nil {
			n.log.Error("render admin email", "order_id", order.ID, "status", status, "err", err)
		} else {
			subject := fmt.Sprintf("Order Status Update: #%s - %s", order.OrderNumber, status.Label())
			if status == domain.OrderPending {
				subject = fmt.Sprintf("New Order: #%s - %s", order.OrderNumber, status.Label())
			}
			for _, to := range n.cfg.AdminRecipients {
				msgs = append(msgs, n.message(order, to, subject, adminTemplate, html))
			}
		}
	}

	for _, m := range msgs {
		if err := n.queue.Enqueue(ctx, m); err != nil {
			failure := &domain.NotificationFailure{Recipient: m.To, Template: m.Template, Cause: err}
			n.log.Error("email dropped", "order_id", order.ID, "recipient", m.To, "template", m.Template, "err", failure)
		}
	}
}

func (n *Notifier) message(order *domain.CommerceOrder, to, subject, tmpl, html string) Message {
	return Message{
		ID:       uuid.NewString(),
		From:     fmt.Sprintf("%q <%s>", n.cfg.SiteName, n.cfg.SenderAddress),
		To:       to,
		Subject:  subject,
		HTML:     html,
		Template: tmpl,
		OrderID:  order.ID,
		QueuedAt: n.now().UTC(),
	}
}
