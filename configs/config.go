package configs

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/domain"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		AllowedOrigins []string      `koanf:"allowed_origins"`
	} `koanf:"http"`

	Postgres struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"postgres"`

	Redis struct {
		Addr     string        `koanf:"addr"`
		Password string        `koanf:"password"`
		DB       int           `koanf:"db"`
		OrderTTL time.Duration `koanf:"order_ttl"`
	} `koanf:"redis"`

	Rabbit struct {
		URL   string `koanf:"url"`
		Queue string `koanf:"queue"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers     []string `koanf:"brokers"`
		TopicEvents string   `koanf:"topic_events"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret    string        `koanf:"jwt_secret"`
		Issuer       string        `koanf:"issuer"`
		Audience     string        `koanf:"audience"`
		TTL          time.Duration `koanf:"ttl"`
		ClientID     string        `koanf:"client_id"`
		ClientSecret string        `koanf:"client_secret"`
	} `koanf:"security"`

	Payment struct {
		Provider          string `koanf:"provider"`
		KeyID             string `koanf:"key_id"`
		KeySecret         string `koanf:"key_secret"`
		WebhookSecret     string `koanf:"webhook_secret"`
		PublicKeyID       string `koanf:"public_key_id"`
		MerchantName      string `koanf:"merchant_name"`
		CheckoutScriptURL string `koanf:"checkout_script_url"`
		ThemeColor        string `koanf:"theme_color"`
	} `koanf:"payment"`

	Site struct {
		BaseURL string `koanf:"base_url"`
		Name    string `koanf:"name"`
	} `koanf:"site"`

	Commerce struct {
		GraphQLEndpoint string        `koanf:"graphql_endpoint"`
		AuthToken       string        `koanf:"auth_token"`
		Timeout         time.Duration `koanf:"timeout"`
	} `koanf:"commerce"`

	Email struct {
		SenderAddress    string        `koanf:"sender_address"`
		SenderCredential string        `koanf:"sender_credential"`
		SMTPHost         string        `koanf:"smtp_host"`
		SMTPPort         int           `koanf:"smtp_port"`
		AdminRecipients  []string      `koanf:"admin_recipients"`
		SendInterval     time.Duration `koanf:"send_interval"`
		MaxRetries       int           `koanf:"max_retries"`
		RetryBackoff     time.Duration `koanf:"retry_backoff"`
	} `koanf:"email"`

	Pricing struct {
		FreeShippingThresholdMinor int64  `koanf:"free_shipping_threshold_minor"`
		FlatShippingMinor          int64  `koanf:"flat_shipping_minor"`
		TaxRate                    string `koanf:"tax_rate"`
	} `koanf:"pricing"`
}

// envAliases maps the deployment's well-known variable names onto config keys.
var envAliases = map[string]string{
	"PAYMENT_KEY_ID":            "payment.key_id",
	"PAYMENT_KEY_SECRET":        "payment.key_secret",
	"PAYMENT_WEBHOOK_SECRET":    "payment.webhook_secret",
	"PUBLIC_PAYMENT_KEY_ID":     "payment.public_key_id",
	"SITE_BASE_URL":             "site.base_url",
	"COMMERCE_GRAPHQL_ENDPOINT": "commerce.graphql_endpoint",
	"EMAIL_SENDER_ADDRESS":      "email.sender_address",
	"EMAIL_SENDER_CREDENTIAL":   "email.sender_credential",
	"DATABASE_URL":              "postgres.dsn",
	"JWT_SECRET":                "security.jwt_secret",
	"OPERATOR_CLIENT_SECRET":    "security.client_secret",
}

const envPrefix = "STOREFRONT_"

// envKey maps an environment variable to a config key, or "" to skip it.
// STOREFRONT_SECTION__KEY overrides section.key.
func envKey(s string) string {
	if k, ok := envAliases[s]; ok {
		return k
	}
	if !strings.HasPrefix(s, envPrefix) {
		return ""
	}
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ReplaceAll(s, "__", ".")
	return strings.ToLower(s)
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// per-environment file is optional
	if envName != "" {
		_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if envName != "" {
		cfg.App.Env = envName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn required")
	}
	if err := c.ValidatePayment(); err != nil {
		return err
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.strictSecrets() {
		return c.validateSecrets()
	}
	return nil
}

// placeholderSecret is the value base.yaml ships for local development.
const placeholderSecret = "dev-only-change-me"

const minJWTSecretLen = 32

// strictSecrets is true for live payment keys and for any environment other
// than local development.
func (c Config) strictSecrets() bool {
	switch c.App.Env {
	case "", "dev", "test":
		return c.LiveMode()
	}
	return true
}

func (c Config) validateSecrets() error {
	switch {
	case c.Security.JWTSecret == placeholderSecret:
		return fmt.Errorf("JWT_SECRET still has the development placeholder")
	case len(c.Security.JWTSecret) < minJWTSecretLen:
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	case c.Security.ClientSecret == placeholderSecret:
		return fmt.Errorf("OPERATOR_CLIENT_SECRET still has the development placeholder")
	}
	return nil
}

// ValidatePayment checks only the payment keys. The browser-visible key id
// must be the same key the server signs with or every verification fails.
func (c Config) ValidatePayment() error {
	switch {
	case c.Payment.KeyID == "":
		return fmt.Errorf("PAYMENT_KEY_ID required")
	case c.Payment.KeySecret == "":
		return fmt.Errorf("PAYMENT_KEY_SECRET required")
	case c.Payment.WebhookSecret == "":
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET required")
	case c.Payment.PublicKeyID != c.Payment.KeyID:
		return fmt.Errorf("PUBLIC_PAYMENT_KEY_ID must equal PAYMENT_KEY_ID")
	}
	switch c.Payment.Provider {
	case "razorpay", "sandbox":
	default:
		return fmt.Errorf("payment.provider %q unknown", c.Payment.Provider)
	}
	return nil
}

// LiveMode reports whether the configured key is a live (not test) key.
func (c Config) LiveMode() bool {
	return strings.HasPrefix(c.Payment.KeyID, "rzp_live_")
}

// PricingPolicy builds the order pricing rules, falling back to the defaults
// for anything left unset.
func (c Config) PricingPolicy() (domain.PricingPolicy, error) {
	p := domain.DefaultPricingPolicy()
	if c.Pricing.FreeShippingThresholdMinor > 0 {
		p.FreeShippingThreshold = c.Pricing.FreeShippingThresholdMinor
	}
	if c.Pricing.FlatShippingMinor > 0 {
		p.FlatShipping = c.Pricing.FlatShippingMinor
	}
	if c.Pricing.TaxRate != "" {
		rate, err := decimal.NewFromString(c.Pricing.TaxRate)
		if err != nil || rate.IsNegative() {
			return domain.PricingPolicy{}, fmt.Errorf("pricing.tax_rate %q invalid", c.Pricing.TaxRate)
		}
		p.TaxRate = rate
	}
	return p, nil
}
