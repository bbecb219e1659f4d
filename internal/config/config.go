package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// -----------------------------------------------------------------------------
// Environment variable guidelines:
// - required: values that differ between environments or are security material
// - default: values with a sensible constant across environments
// -----------------------------------------------------------------------------

type Config struct {
	Server  ServerConfig
	Webhook WebhookConfig
	EVM     EVMConfig
	Payment PaymentConfig
	Fiat    FiatConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port           string `envconfig:"PORT" default:"8080"`
	InternalAPIKey string `envconfig:"INTERNAL_API_KEY" required:"true"`
}

type WebhookConfig struct {
	URL     string        `envconfig:"WEBHOOK_URL" default:""`
	Timeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"10s"`
}

type EVMConfig struct {
	RPCURL     string `envconfig:"EVM_RPC_URL" default:"https://sepolia.base.org"`
	Network    string `envconfig:"EVM_NETWORK" default:"base-sepolia"`
	PrivateKey string `envconfig:"EVM_PRIVATE_KEY" required:"true"`
	PayTo      string `envconfig:"EVM_PAY_TO" required:"true"`
}

type PaymentConfig struct {
	Timeout time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"5m"`
}

type FiatConfig struct {
	AutomationURL string        `envconfig:"FIAT_AUTOMATION_URL" default:""`
	GuardTTL      time.Duration `envconfig:"FIAT_GUARD_TTL" default:"24h"`
	QRMarker      string        `envconfig:"FIAT_QR_MARKER" default:"BM-QR"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"console"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process env config: %w", err)
	}
	return cfg, nil
}

// NewTestConfig returns a populated config for tests, no environment needed.
func NewTestConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8889",
			InternalAPIKey: "test-internal-key",
		},
		Webhook: WebhookConfig{
			Timeout: 2 * time.Second,
		},
		EVM: EVMConfig{
			RPCURL:     "http://localhost:8545",
			Network:    "base-sepolia",
			PrivateKey: "0x4646464646464646464646464646464646464646464646464646464646464646",
			PayTo:      "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		},
		Payment: PaymentConfig{
			Timeout: 5 * time.Minute,
		},
		Fiat: FiatConfig{
			GuardTTL: 24 * time.Hour,
			QRMarker: "BM-QR",
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}
