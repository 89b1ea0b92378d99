package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"storefront-checkout/internal/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	fallbackTemplate = "order_update"
	adminTemplate    = "admin_notification"
)

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type itemView struct {
	Name     string
	Quantity int
	Price    string
	Total    string
}

type viewData struct {
	SiteName        string
	SiteURL         string
	OrderNumber     string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	OrderDate       string
	Status          string
	Items           []itemView
	Subtotal        string
	Shipping        string
	Tax             string
	Total           string
	BillingAddress  string
	ShippingAddress string
	TrackingURL     string
	AdminURL        string
	Year            int
}

func (n *Notifier) viewData(o *domain.CommerceOrder, status domain.OrderStatus) viewData {
	items := make([]itemView, 0, len(o.LineItems))
	for _, it := range o.LineItems {
		items = append(items, itemView{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    domain.FormatINR(it.UnitPriceMinor),
			Total:    domain.FormatINR(it.TotalMinor()),
		})
	}
	phone := o.Contact.Phone
	if phone == "" {
		phone = "Not provided"
	}
	adminURL := ""
	if n.cfg.AdminURL != "" {
		adminURL = strings.TrimRight(n.cfg.AdminURL, "/") + "/orders/" + o.ID
	}
	return viewData{
		SiteName:        n.cfg.SiteName,
		SiteURL:         n.cfg.SiteURL,
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.Contact.FullName(),
		CustomerEmail:   o.Contact.Email,
		CustomerPhone:   phone,
		OrderDate:       o.CreatedAt.Format("2 January 2006"),
		Status:          status.Label(),
		Items:           items,
		Subtotal:        domain.FormatINR(o.Totals.Subtotal),
		Shipping:        domain.FormatINR(o.Totals.Shipping),
		Tax:             domain.FormatINR(o.Totals.Tax),
		Total:           domain.FormatINR(o.Totals.Total),
		BillingAddress:  o.Billing.OneLine(),
		ShippingAddress: o.Shipping.OneLine(),
		TrackingURL:     strings.TrimRight(n.cfg.SiteURL, "/") + "/track-order/" + o.ID,
		AdminURL:        adminURL,
		Year:            n.now().Year(),
	}
}

// customerTemplate picks the template for a status, falling back to the
// generic update when none exists.
func customerTemplate(status domain.OrderStatus) string {
	name := "order_" + string(status)
	if templates.Lookup(name+".html") == nil {
		return fallbackTemplate
	}
	return name
}

func renderCustomer(status domain.OrderStatus, data viewData) (string, string, error) {
	name := customerTemplate(status)
	html, err := render(name, data)
	return name, html, err
}

func renderAdmin(data viewData) (string, error) {
	return render(adminTemplate, data)
}

func render(name string, data viewData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("template %s: %w", name, err)
	}
	return buf.String(), nil
}
