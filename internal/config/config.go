// Package config defines the Pavilion configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by PAVILION_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Operator OperatorConfig `toml:"operator"`
	Token    TokenConfig    `toml:"token"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Kafka    KafkaConfig    `toml:"kafka"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
}

// OperatorConfig identifies the controller. The key signs pool transfers when
// the token backend is erc20; Address defaults to the key's address.
type OperatorConfig struct {
	Address     string `toml:"address"`
	PrivateKey  string `toml:"private_key"`
	KeyFile     string `toml:"key_file"`
	KeyPassword string `toml:"key_password"`
}

// TokenConfig selects the stablecoin backend.
type TokenConfig struct {
	Backend        string   `toml:"backend"` // memory | erc20
	Decimals       int      `toml:"decimals"`
	RPCURL         string   `toml:"rpc_url"`
	Address        string   `toml:"address"`
	ChainID        int64    `toml:"chain_id"`
	ConfirmTimeout duration `toml:"confirm_timeout"`
	// PoolAddress is the pool account of the memory backend.
	PoolAddress string `toml:"pool_address"`
	// DevBalances mints human-readable amounts to addresses at startup and
	// approves the pool for them. Memory backend only.
	DevBalances map[string]string `toml:"dev_balances"`
}

// StoreConfig selects the ledger store.
type StoreConfig struct {
	Backend string `toml:"backend"` // memory | postgres
}

type PostgresConfig struct {
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
}

type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	BatchTimeout duration `toml:"batch_timeout"`
}

// S3Config holds S3-compatible object storage parameters for ledger archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	SignatureMaxAge duration `toml:"signature_max_age"`
	// RateLimit is requests per RateWindow per caller on write routes. Zero
	// disables limiting. Requires redis.
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
}

type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a configuration that runs entirely in memory.
func Defaults() Config {
	return Config{
		Mode:     "server",
		LogLevel: "info",
		Token: TokenConfig{
			Backend:        "memory",
			Decimals:       18,
			ConfirmTimeout: duration{2 * time.Minute},
			PoolAddress:    "0x00000000000000000000000000000000000000f0",
		},
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "pavilion",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   2,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{3 * time.Minute},
		},
		Kafka: KafkaConfig{
			Topic:        "pavilion.events",
			BatchTimeout: duration{10 * time.Millisecond},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pavilion-ledgers",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureMaxAge: duration{5 * time.Minute},
			RateLimit:       60,
			RateWindow:      duration{time.Minute},
			ShutdownTimeout: duration{10 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"game_created", "game_status_set", "game_outcome_set", "withdrawn"},
		},
	}
}

var validModes = map[string]bool{
	"server":      true,
	"migrate":     true,
	"encrypt-key": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every invalid or missing value in one error.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		add("unknown mode %q (valid: server, migrate, encrypt-key)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	hasKey := c.Operator.PrivateKey != "" || c.Operator.KeyFile != ""
	if c.Operator.Address != "" && !common.IsHexAddress(c.Operator.Address) {
		add("operator: address %q is not a hex address", c.Operator.Address)
	}
	if c.Operator.KeyFile != "" && c.Operator.KeyPassword == "" {
		add("operator: key_password is required when key_file is set")
	}

	switch mode {
	case "encrypt-key":
		if c.Operator.PrivateKey == "" || c.Operator.KeyFile == "" {
			add("operator: encrypt-key needs private_key and key_file")
		}
	case "migrate":
		if c.Store.Backend != "postgres" {
			add("store: migrate mode needs backend \"postgres\"")
		}
	case "server":
		if c.Operator.Address == "" && !hasKey {
			add("operator: address, private_key or key_file must be set")
		}
	}

	switch c.Token.Backend {
	case "memory":
		if !common.IsHexAddress(c.Token.PoolAddress) {
			add("token: pool_address %q is not a hex address", c.Token.PoolAddress)
		}
		for addr := range c.Token.DevBalances {
			if !common.IsHexAddress(addr) {
				add("token: dev_balances key %q is not a hex address", addr)
			}
		}
	case "erc20":
		if c.Token.RPCURL == "" {
			add("token: rpc_url is required for backend erc20")
		}
		if !common.IsHexAddress(c.Token.Address) {
			add("token: address %q is not a hex address", c.Token.Address)
		}
		if !hasKey && mode == "server" {
			add("operator: private_key or key_file is required for backend erc20")
		}
		if len(c.Token.DevBalances) > 0 {
			add("token: dev_balances only apply to backend memory")
		}
	default:
		add("token: unknown backend %q (valid: memory, erc20)", c.Token.Backend)
	}
	if c.Token.Decimals < 2 || c.Token.Decimals > 77 {
		add("token: decimals must be 2-77, got %d", c.Token.Decimals)
	}

	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		add("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend)
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			add("redis: lock_ttl must be positive")
		}
		if c.Token.Backend == "erc20" && c.Redis.LockTTL.Duration <= c.Token.ConfirmTimeout.Duration {
			add("redis: lock_ttl %s must exceed token.confirm_timeout %s",
				c.Redis.LockTTL.Duration, c.Token.ConfirmTimeout.Duration)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			add("kafka: brokers must not be empty")
		}
		if c.Kafka.Topic == "" {
			add("kafka: topic must not be empty")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.SignatureMaxAge.Duration <= 0 {
			add("server: signature_max_age must be positive")
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be positive when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
