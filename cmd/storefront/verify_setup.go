package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var verifySetupCmd = &cobra.Command{
	Use:   "verify-setup",
	Short: "Check the payment keys before going live",
	RunE:  runVerifySetup,
}

func runVerifySetup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Payment setup")
	fmt.Fprintln(out, strings.Repeat("=", 40))
	fmt.Fprintf(out, "  Provider:   %s\n", cfg.Payment.Provider)
	fmt.Fprintf(out, "  Key id:     %s\n", maskKey(cfg.Payment.KeyID))
	fmt.Fprintf(out, "  Key secret: %s\n", present(cfg.Payment.KeySecret))
	fmt.Fprintf(out, "  Webhook:    %s\n", present(cfg.Payment.WebhookSecret))

	if err := cfg.ValidatePayment(); err != nil {
		fmt.Fprintf(out, "\nFAIL: %v\n", err)
		return err
	}
	if cfg.LiveMode() {
		fmt.Fprintln(out, "\nMode: LIVE - real cards will be charged")
	} else {
		fmt.Fprintln(out, "\nMode: test")
	}
	fmt.Fprintln(out, "OK: public key id matches the server key")
	return nil
}

func maskKey(k string) string {
	if len(k) <= 12 {
		return k
	}
	return k[:12] + strings.Repeat("*", len(k)-12)
}

func present(s string) string {
	if s == "" {
		return "missing"
	}
	return "set"
}
