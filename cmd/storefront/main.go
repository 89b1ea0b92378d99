package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"storefront-checkout/configs"
	"storefront-checkout/internal/logging"
)

var Version = "dev"

var (
	configDir string
	envName   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront checkout server and tooling",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory holding base.yaml and <env>.yaml")
	rootCmd.PersistentFlags().StringVar(&envName, "env", os.Getenv("APP_ENV"), "environment overlay to load (dev, prod)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(verifySetupCmd)
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (configs.Config, error) {
	cfg, err := configs.Load(configDir, envName)
	if err != nil {
		return configs.Config{}, fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)
	return cfg, nil
}
