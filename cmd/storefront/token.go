package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/internal/server/middleware"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an operator bearer token for the order status API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := cfg.Security.TTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		authz := middleware.NewAuthz(cfg.Security.JWTSecret, cfg.Security.Issuer, cfg.Security.Audience)
		tok, err := authz.IssueToken(cfg.Security.ClientID, middleware.OperatorPerms, ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to security.ttl)")
}
