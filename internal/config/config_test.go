package config_test

import (
	"testing"
	"time"

	"ShareVault/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, 4096, cfg.CommandChanSize)
	assert.Equal(t, 4096, cfg.PublishChanSize)
	assert.Equal(t, ":8080", cfg.HealthAddr)
	assert.Equal(t, ":9091", cfg.MetricsAddr)
	assert.Equal(t, 1_000_000, cfg.IdempotencyLRUCapacity)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Tokens, 1)
	assert.Equal(t, "0x0000000000000000000000000000000000000001:USDT", cfg.Tokens[0])
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VAULT_NATS_URL", "nats://nats.internal:4222")
	t.Setenv("VAULT_IDEMPOTENCY_LRU_CAPACITY", "5000")
	t.Setenv("VAULT_TOKENS", "0x0000000000000000000000000000000000000001:USDT,0x0000000000000000000000000000000000000002:DAI")
	t.Setenv("VAULT_SHUTDOWN_TIMEOUT", "10s")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.internal:4222", cfg.NATSURL)
	assert.Equal(t, 5000, cfg.IdempotencyLRUCapacity)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, "0x0000000000000000000000000000000000000002:DAI", cfg.Tokens[1])
}
