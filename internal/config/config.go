// Package config loads service configuration from environment
// variables.
package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
type Config struct {
	// NATS
	NATSURL string `env:"VAULT_NATS_URL" envDefault:"nats://localhost:4222"`

	// Channels
	CommandChanSize int `env:"VAULT_COMMAND_CHAN_SIZE" envDefault:"4096"`
	PublishChanSize int `env:"VAULT_PUBLISH_CHAN_SIZE" envDefault:"4096"`

	// HTTP
	HealthAddr  string `env:"VAULT_HEALTH_ADDR"  envDefault:":8080"`
	MetricsAddr string `env:"VAULT_METRICS_ADDR" envDefault:":9091"`

	// Idempotency
	IdempotencyLRUCapacity int `env:"VAULT_IDEMPOTENCY_LRU_CAPACITY" envDefault:"1000000"`

	// Registry instance address (domain binding for signed approvals)
	RegistryInstance string `env:"VAULT_REGISTRY_INSTANCE" envDefault:"0x0000000000000000000000000000000000000100"`

	// Vault and ledger client addresses
	VaultAddress  string `env:"VAULT_ADDRESS"        envDefault:"0x0000000000000000000000000000000000000101"`
	ClientAddress string `env:"VAULT_CLIENT_ADDRESS" envDefault:"0x0000000000000000000000000000000000000102"`

	// Tokens registered at startup, as "address:symbol" pairs.
	Tokens []string `env:"VAULT_TOKENS" envSeparator:"," envDefault:"0x0000000000000000000000000000000000000001:USDT"`

	// Shutdown
	ShutdownTimeout time.Duration `env:"VAULT_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Logging
	LogLevel string `env:"VAULT_LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
