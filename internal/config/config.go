// Package config loads dashboard configuration from YAML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"poolwatch/internal/domain"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Logging  LoggingConfig  `yaml:"logging"`
	Node     NodeConfig     `yaml:"node"`
	Watch    WatchConfig    `yaml:"watch"`
	Chain    ChainConfig    `yaml:"chain"`
	Poller   PollerConfig   `yaml:"poller"`
	API      APIConfig      `yaml:"api"`
	Explorer ExplorerConfig `yaml:"explorer"`
	Stores   StoresConfig   `yaml:"stores"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
}

type AppConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

type NodeConfig struct {
	RPCURL     string        `yaml:"rpc_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// WatchConfig is the initial watch target. An empty target leaves the poller
// idle until one is set through the API.
type WatchConfig struct {
	Target   string `yaml:"target"`
	Mode     string `yaml:"mode"` // token|pool
	Decimals int32  `yaml:"decimals"`
}

type FactoryConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Kind    string `yaml:"kind"`
}

type ChainConfig struct {
	Factories       []FactoryConfig `yaml:"factories"`
	References      []string        `yaml:"references"`
	HistoryContract string          `yaml:"history_contract"`
	LookbackBlocks  uint64          `yaml:"lookback_blocks"`
	MaxBlockRange   uint64          `yaml:"max_block_range"`
}

type PollerConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ResolveEvery   int           `yaml:"resolve_every"`
	BufferCapacity int           `yaml:"buffer_capacity"`
	BucketWidth    time.Duration `yaml:"bucket_width"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type WSConfig struct {
	Interval     time.Duration `yaml:"interval"`
	SendQueue    int           `yaml:"send_queue"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type APIConfig struct {
	HTTP     HTTPConfig `yaml:"http"`
	WS       WSConfig   `yaml:"ws"`
	PageSize int        `yaml:"page_size"`
}

type ExplorerConfig struct {
	BaseURL     string        `yaml:"base_url"`
	TxURLPrefix string        `yaml:"tx_url_prefix"`
	Timeout     time.Duration `yaml:"timeout"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// StoresConfig lists optional sinks. An empty address or DSN disables the sink.
type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	return &Config{
		App: AppConfig{ShutdownTimeout: 10 * time.Second},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Node: NodeConfig{
			RPCURL:     "http://127.0.0.1:7777",
			Timeout:    15 * time.Second,
			MaxRetries: 2,
		},
		Watch: WatchConfig{
			Mode:     string(domain.ModeToken),
			Decimals: 18,
		},
		Chain: ChainConfig{
			LookbackBlocks: 5000,
			MaxBlockRange:  2000,
		},
		Poller: PollerConfig{
			Interval:       5 * time.Second,
			ResolveEvery:   12,
			BufferCapacity: 1000,
			BucketWidth:    time.Minute,
		},
		API: APIConfig{
			HTTP: HTTPConfig{
				Addr:         ":5000",
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				CORS: CORSConfig{
					Enabled: true,
					Origins: []string{"http://localhost:3000"},
					Methods: []string{"GET", "POST", "PUT", "OPTIONS"},
					Headers: []string{"Content-Type", "Authorization"},
				},
			},
			WS: WSConfig{
				Interval:     5 * time.Second,
				SendQueue:    256,
				WriteTimeout: 10 * time.Second,
			},
			PageSize: 10,
		},
		Explorer: ExplorerConfig{
			BaseURL:     "http://127.0.0.1",
			TxURLPrefix: "https://tara.to/tx/",
			Timeout:     10 * time.Second,
			CacheTTL:    15 * time.Second,
		},
		Stores: StoresConfig{
			Redis: RedisConfig{Prefix: "poolwatch"},
		},
		PubSub: PubSubConfig{
			NATS: NATSConfig{Subject: "poolwatch.snapshot"},
		},
	}
}

// LoadDotEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Load reads the YAML file at path over the defaults and applies env overrides.
// An empty path yields defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides endpoints and DSNs from the environment.
func (c *Config) ApplyEnv() {
	setFromEnv(&c.Node.RPCURL, "NODE_RPC_URL")
	setFromEnv(&c.Explorer.BaseURL, "EXPLORER_BASE_URL")
	setFromEnv(&c.Stores.Postgres.DSN, "POSTGRES_DSN")
	setFromEnv(&c.Stores.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setFromEnv(&c.Stores.Redis.Addr, "REDIS_ADDR")
	setFromEnv(&c.Stores.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&c.PubSub.NATS.URL, "NATS_URL")
}

func setFromEnv(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the configuration for values the dashboard cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Node.RPCURL == "" {
		errs = append(errs, errors.New("node.rpc_url is required"))
	}
	if c.Poller.Interval <= 0 {
		errs = append(errs, errors.New("poller.interval must be positive"))
	}
	if c.Poller.BucketWidth <= 0 {
		errs = append(errs, errors.New("poller.bucket_width must be positive"))
	}
	if c.Poller.BufferCapacity < 1 {
		errs = append(errs, errors.New("poller.buffer_capacity must be at least 1"))
	}
	if c.Chain.MaxBlockRange < 1 {
		errs = append(errs, errors.New("chain.max_block_range must be at least 1"))
	}
	if c.API.PageSize < 1 {
		errs = append(errs, errors.New("api.page_size must be at least 1"))
	}
	if c.API.WS.Interval <= 0 {
		errs = append(errs, errors.New("api.ws.interval must be positive"))
	}

	if _, err := domain.ParseWatchMode(c.Watch.Mode); err != nil {
		errs = append(errs, fmt.Errorf("watch.mode: %w", err))
	}
	if c.Watch.Target != "" {
		if _, err := domain.ParseAddress(c.Watch.Target); err != nil {
			errs = append(errs, fmt.Errorf("watch.target: %w", err))
		}
	}
	if _, err := c.Factories(); err != nil {
		errs = append(errs, err)
	}
	if _, err := domain.ParseAddresses(c.Chain.References); err != nil {
		errs = append(errs, fmt.Errorf("chain.references: %w", err))
	}
	if c.Chain.HistoryContract != "" {
		if _, err := domain.ParseAddress(c.Chain.HistoryContract); err != nil {
			errs = append(errs, fmt.Errorf("chain.history_contract: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Factories returns the parsed factory list.
func (c *Config) Factories() ([]domain.Factory, error) {
	out := make([]domain.Factory, 0, len(c.Chain.Factories))
	for i, f := range c.Chain.Factories {
		addr, err := domain.ParseAddress(f.Address)
		if err != nil {
			return nil, fmt.Errorf("chain.factories[%d]: %w", i, err)
		}
		kind := domain.FactoryKind(f.Kind)
		if kind == "" {
			kind = domain.FactoryUniswapV2
		}
		if !kind.IsValid() {
			return nil, fmt.Errorf("chain.factories[%d]: %w: unknown kind %q", i, domain.ErrInvalidInput, f.Kind)
		}
		name := f.Name
		if name == "" {
			name = addr.Hex()
		}
		out = append(out, domain.Factory{Name: name, Address: addr, Kind: kind})
	}
	return out, nil
}
