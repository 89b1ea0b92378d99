package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/internal/bootstrap"
	"storefront-checkout/internal/checkout"
	"storefront-checkout/internal/domain"
	"storefront-checkout/internal/gateway"
	"storefront-checkout/internal/infrastructure/payment"
	"storefront-checkout/internal/logging"
	"storefront-checkout/internal/repo/memrepo"
	"storefront-checkout/internal/signature"
	"storefront-checkout/internal/webhook"
	"storefront-checkout/internal/widget"
)

var (
	simOrders int
	simDrain  time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run buyers through checkout against an in-memory store and sandbox provider",
	Long: `Run a batch of checkouts end to end without any outside services.

Every 4th buyer closes the payment modal. Every 5th pays but loses the
browser before verification, so the order is only settled by the
provider's payment.captured webhook.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simOrders, "orders", "n", 20, "number of buyers")
	simulateCmd.Flags().DurationVar(&simDrain, "drain", 3*time.Second, "time to let the email worker run afterwards")
}

var simCatalog = []domain.Product{
	{ID: 1, Name: "Teak Stool", PriceMinor: 49950},
	{ID: 2, Name: "Dining Table", PriceMinor: 1143118},
	{ID: 3, Name: "Cane Lamp", PriceMinor: 12900},
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Payment.Provider = "sandbox"
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sandbox := payment.NewSandboxGateway(cfg.Payment.KeySecret, cfg.Payment.WebhookSecret)
	orders := memrepo.NewOrders()
	app, err := bootstrap.Assemble(cfg, bootstrap.Stores{
		Orders:   orders,
		Payments: memrepo.NewPayments(),
		Catalog:  memrepo.NewCatalog(simCatalog...),
	}, bootstrap.Backends{Gateway: sandbox}, logging.New("simulate"))
	if err != nil {
		return err
	}
	defer app.Close()

	api := httptest.NewServer(app.Router())
	defer api.Close()
	script := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("/* checkout */"))
	}))
	defer script.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = app.RunWorker(ctx)
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "--- STARTING SIMULATION (%d ORDERS) ---\n", simOrders)
	loader := widget.NewScriptLoader(script.URL, script.Client())
	client := gateway.New(api.URL, logging.New("gateway-client"), gateway.WithHTTPClient(api.Client()))

	for i := 1; i <= simOrders; i++ {
		b := &buyer{sandbox: sandbox, dismiss: i%4 == 0, loseBrowser: i%5 == 0}
		adapter := widget.NewAdapter(loader, widget.SandboxSurface{Payer: sandbox, Decide: b.decide}, logging.New("widget"))
		p := simCatalog[i%len(simCatalog)]
		cart := checkout.NewCart(checkout.CartLine{
			ProductID: strconv.FormatInt(p.ID, 10), Name: p.Name, Quantity: 1 + i%2, UnitPriceMinor: p.PriceMinor,
		})
		session := checkout.NewSession(client, adapter, checkout.NewQueryCache(), cart, checkout.Merchant{
			KeyID: cfg.Payment.PublicKeyID, Name: cfg.Payment.MerchantName, ThemeColor: cfg.Payment.ThemeColor,
		}, logging.New("checkout"))

		fmt.Fprintf(out, "[%d] %s x%d ... ", i, p.Name, 1+i%2)
		conf, err := session.Checkout(ctx, simForm(i))
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", session.State(), err)
		} else {
			fmt.Fprintf(out, "PAID %s\n", conf.PaymentID)
		}

		if b.lost != nil {
			if err := deliverCapture(ctx, api, sandbox, *b.lost); err != nil {
				fmt.Fprintf(out, "    -> webhook failed: %v\n", err)
			}
		}
		if ref := session.Order(); ref != nil {
			fmt.Fprintf(out, "    -> order #%s status: %s\n", ref.OrderNumber, orders.Status(ref.ID))
		}
	}

	fmt.Fprintln(out, "--- DRAINING NOTIFICATIONS ---")
	select {
	case <-time.After(simDrain):
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
	return nil
}

// buyer decides what happens when the payment modal opens.
type buyer struct {
	sandbox     *payment.SandboxGateway
	dismiss     bool
	loseBrowser bool
	lost        *domain.PaymentAttemptResult
}

func (b *buyer) decide(cfg widget.Config) bool {
	if b.dismiss {
		return false
	}
	if b.loseBrowser {
		res, err := b.sandbox.Pay(cfg.PaymentOrderID)
		if err == nil {
			b.lost = &res
		}
		return false
	}
	return true
}

func deliverCapture(ctx context.Context, api *httptest.Server, sandbox *payment.SandboxGateway, res domain.PaymentAttemptResult) error {
	raw, sig, err := sandbox.WebhookEvent(webhook.EventPaymentCaptured, res.PaymentOrderID, res.PaymentID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.URL+"/api/payment/webhook", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, sig)
	resp, err := api.Client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}

func simForm(i int) domain.CheckoutForm {
	return domain.CheckoutForm{
		Contact: domain.Contact{
			FirstName: "Buyer", LastName: strconv.Itoa(i),
			Email: fmt.Sprintf("buyer%d@example.com", i), Phone: "+91 98765 43210",
		},
		Shipping: domain.Address{
			Line1: fmt.Sprintf("%d MG Road", i), City: "Kochi", State: "KL", PostalCode: "682001", CountryCode: "IN",
		},
	}
}
