package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolwatch/internal/domain"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
node:
  rpc_url: http://node:8545
watch:
  target: "0x063F255689b00A877F6be55109b3ECA24e266809"
  mode: pool
chain:
  factories:
    - name: uniswap
      address: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
  references:
    - "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
poller:
  interval: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://node:8545", cfg.Node.RPCURL)
	assert.Equal(t, "pool", cfg.Watch.Mode)
	assert.Equal(t, 2*time.Second, cfg.Poller.Interval)
	// Untouched values keep their defaults.
	assert.Equal(t, time.Minute, cfg.Poller.BucketWidth)
	assert.Equal(t, 10, cfg.API.PageSize)

	factories, err := cfg.Factories()
	require.NoError(t, err)
	require.Len(t, factories, 1)
	assert.Equal(t, "uniswap", factories[0].Name)
	assert.Equal(t, domain.FactoryUniswapV2, factories[0].Kind)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("NODE_RPC_URL", "http://env-node:8545")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("NATS_URL", "nats://nats:4222")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://env-node:8545", cfg.Node.RPCURL)
	assert.Equal(t, "redis:6379", cfg.Stores.Redis.Addr)
	assert.Equal(t, "nats://nats:4222", cfg.PubSub.NATS.URL)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("POSTGRES_DSN=from-file\nCLICKHOUSE_DSN=clickhouse://file\n"), 0o600))

	t.Setenv("POSTGRES_DSN", "from-env")
	t.Setenv("CLICKHOUSE_DSN", "")
	os.Unsetenv("CLICKHOUSE_DSN")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("CLICKHOUSE_DSN") })

	assert.Equal(t, "from-env", os.Getenv("POSTGRES_DSN"))
	assert.Equal(t, "clickhouse://file", os.Getenv("CLICKHOUSE_DSN"))
}

func TestLoadDotEnv_MissingFileIgnored(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty rpc url", func(c *Config) { c.Node.RPCURL = "" }},
		{"zero interval", func(c *Config) { c.Poller.Interval = 0 }},
		{"negative bucket width", func(c *Config) { c.Poller.BucketWidth = -time.Second }},
		{"zero buffer", func(c *Config) { c.Poller.BufferCapacity = 0 }},
		{"bad target", func(c *Config) { c.Watch.Target = "0x1234" }},
		{"bad mode", func(c *Config) { c.Watch.Mode = "pair" }},
		{"bad reference", func(c *Config) { c.Chain.References = []string{"nope"} }},
		{"bad factory kind", func(c *Config) {
			c.Chain.Factories = []FactoryConfig{{Address: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f", Kind: "curve"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFactories_BadAddress(t *testing.T) {
	cfg := Default()
	cfg.Chain.Factories = []FactoryConfig{{Address: "0xzz"}}

	_, err := cfg.Factories()
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
