// Package config loads daemon configuration: a YAML file, then a .env file,
// then PREDICT_* environment overrides, then defaults, then validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "PREDICT_"

type Config struct {
	// AdminAddress is the only caller allowed to run round lifecycle and
	// treasury commands.
	AdminAddress string `yaml:"admin_address" env:"ADMIN_ADDRESS"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	Round   RoundConfig   `yaml:"round" envPrefix:"ROUND_"`
	Oracle  OracleConfig  `yaml:"oracle" envPrefix:"ORACLE_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	NATS    NATSConfig    `yaml:"nats" envPrefix:"NATS_"`
	Payout  PayoutConfig  `yaml:"payout" envPrefix:"PAYOUT_"`
	Server  ServerConfig  `yaml:"server" envPrefix:"SERVER_"`
	Auth    AuthConfig    `yaml:"auth" envPrefix:"AUTH_"`
	Lease   LeaseConfig   `yaml:"lease" envPrefix:"LEASE_"`
	Keeper  KeeperConfig  `yaml:"keeper" envPrefix:"KEEPER_"`
	Core    CoreConfig    `yaml:"core" envPrefix:"CORE_"`
	Display DisplayConfig `yaml:"display" envPrefix:"DISPLAY_"`
}

type RoundConfig struct {
	MinLockSeconds int64 `yaml:"min_lock_seconds" env:"MIN_LOCK_SECONDS"`
}

type OracleConfig struct {
	// Mock serves prices from an in-process feed instead of an aggregator.
	Mock              bool          `yaml:"mock" env:"MOCK"`
	RPCURL            string        `yaml:"rpc_url" env:"RPC_URL"`
	AggregatorAddress string        `yaml:"aggregator_address" env:"AGGREGATOR_ADDRESS"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// RatePerSecond caps aggregator calls; zero disables the limiter.
	RatePerSecond float64 `yaml:"rate_per_second" env:"RATE_PER_SECOND"`
	// MockInterval is how often the mock feed publishes a new round.
	MockInterval time.Duration `yaml:"mock_interval" env:"MOCK_INTERVAL"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // postgres | sqlite
	DSN    string `yaml:"dsn" env:"DSN"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	URL     string `yaml:"url" env:"URL"`
}

type PayoutConfig struct {
	// Mode is "nats" to publish transfer instructions or "memory" for a
	// dry run that only records them.
	Mode    string        `yaml:"mode" env:"MODE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR"`
	// FilterContracts rejects participants whose address has deployed code.
	FilterContracts bool `yaml:"filter_contracts" env:"FILTER_CONTRACTS"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type LeaseConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	RedisAddr string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisDB   int           `yaml:"redis_db" env:"REDIS_DB"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	Key       string        `yaml:"key" env:"KEY"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

type KeeperConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Schedule    string `yaml:"schedule" env:"SCHEDULE"`
	LiveSeconds int64  `yaml:"live_seconds" env:"LIVE_SECONDS"`
	LockSeconds int64  `yaml:"lock_seconds" env:"LOCK_SECONDS"`
}

type CoreConfig struct {
	QueueSize           int `yaml:"queue_size" env:"QUEUE_SIZE"`
	IdempotencyCapacity int `yaml:"idempotency_capacity" env:"IDEMPOTENCY_CAPACITY"`
	SinkBuffer          int `yaml:"sink_buffer" env:"SINK_BUFFER"`
}

// DisplayConfig sets the decimals used to render fixed-point values.
type DisplayConfig struct {
	PriceDecimals  uint8 `yaml:"price_decimals" env:"PRICE_DECIMALS"`
	AmountDecimals uint8 `yaml:"amount_decimals" env:"AMOUNT_DECIMALS"`
}

// Load reads path (optional when empty or missing), the .env file if present
// and the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML %q: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
	}

	// .env is optional; existing environment variables win.
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("config.Load: environment: %w", err)
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Round.MinLockSeconds <= 0 {
		c.Round.MinLockSeconds = 300
	}
	if c.Oracle.Timeout <= 0 {
		c.Oracle.Timeout = 5 * time.Second
	}
	if c.Oracle.MockInterval <= 0 {
		c.Oracle.MockInterval = 30 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.DSN == "" && c.Storage.Driver == "sqlite" {
		c.Storage.DSN = "predict.db"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if c.Payout.Mode == "" {
		c.Payout.Mode = "memory"
	}
	if c.Payout.Timeout <= 0 {
		c.Payout.Timeout = 5 * time.Second
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":9090"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Lease.Key == "" {
		c.Lease.Key = "predict:writer"
	}
	if c.Lease.TTL <= 0 {
		c.Lease.TTL = 15 * time.Second
	}
	if c.Keeper.Schedule == "" {
		c.Keeper.Schedule = "*/5 * * * * *"
	}
	if c.Keeper.LiveSeconds <= 0 {
		c.Keeper.LiveSeconds = 300
	}
	if c.Keeper.LockSeconds <= 0 {
		c.Keeper.LockSeconds = c.Round.MinLockSeconds
	}
	if c.Core.QueueSize <= 0 {
		c.Core.QueueSize = 1024
	}
	if c.Core.IdempotencyCapacity <= 0 {
		c.Core.IdempotencyCapacity = 100_000
	}
	if c.Core.SinkBuffer <= 0 {
		c.Core.SinkBuffer = 4096
	}
	if c.Display.PriceDecimals == 0 {
		c.Display.PriceDecimals = 8
	}
	if c.Display.AmountDecimals == 0 {
		c.Display.AmountDecimals = 18
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []error

	if !common.IsHexAddress(c.AdminAddress) {
		problems = append(problems, fmt.Errorf("admin_address %q is not a hex address", c.AdminAddress))
	}
	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Errorf("storage.driver %q must be postgres or sqlite", c.Storage.Driver))
	}
	if c.Storage.DSN == "" {
		problems = append(problems, errors.New("storage.dsn is required"))
	}
	if !c.Oracle.Mock {
		if c.Oracle.RPCURL == "" {
			problems = append(problems, errors.New("oracle.rpc_url is required unless oracle.mock is set"))
		}
		if !common.IsHexAddress(c.Oracle.AggregatorAddress) {
			problems = append(problems, fmt.Errorf("oracle.aggregator_address %q is not a hex address", c.Oracle.AggregatorAddress))
		}
	}
	if c.Server.FilterContracts && c.Oracle.RPCURL == "" {
		problems = append(problems, errors.New("server.filter_contracts needs oracle.rpc_url"))
	}
	switch c.Payout.Mode {
	case "memory":
	case "nats":
		if !c.NATS.Enabled {
			problems = append(problems, errors.New("payout.mode nats requires nats.enabled"))
		}
	default:
		problems = append(problems, fmt.Errorf("payout.mode %q must be nats or memory", c.Payout.Mode))
	}
	if len(c.Auth.JWTSecret) < 16 {
		problems = append(problems, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}
	if c.Lease.Enabled && c.Lease.RedisAddr == "" {
		problems = append(problems, errors.New("lease.redis_addr is required when the lease is enabled"))
	}
	if c.Keeper.LockSeconds < c.Round.MinLockSeconds {
		problems = append(problems, fmt.Errorf("keeper.lock_seconds %d below round.min_lock_seconds %d", c.Keeper.LockSeconds, c.Round.MinLockSeconds))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(problems...))
	}
	return nil
}

func (c *Config) Admin() common.Address {
	return common.HexToAddress(c.AdminAddress)
}
