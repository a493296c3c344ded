package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env if present and
// applies PAVILION_* overrides. An empty path skips the file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "PAVILION_MODE")
	setStr(&cfg.LogLevel, "PAVILION_LOG_LEVEL")

	setStr(&cfg.Operator.Address, "PAVILION_OPERATOR_ADDRESS")
	setStr(&cfg.Operator.PrivateKey, "PAVILION_OPERATOR_PRIVATE_KEY")
	setStr(&cfg.Operator.KeyFile, "PAVILION_OPERATOR_KEY_FILE")
	setStr(&cfg.Operator.KeyPassword, "PAVILION_OPERATOR_KEY_PASSWORD")

	setStr(&cfg.Token.Backend, "PAVILION_TOKEN_BACKEND")
	setInt(&cfg.Token.Decimals, "PAVILION_TOKEN_DECIMALS")
	setStr(&cfg.Token.RPCURL, "PAVILION_TOKEN_RPC_URL")
	setStr(&cfg.Token.Address, "PAVILION_TOKEN_ADDRESS")
	setInt64(&cfg.Token.ChainID, "PAVILION_TOKEN_CHAIN_ID")
	setDuration(&cfg.Token.ConfirmTimeout, "PAVILION_TOKEN_CONFIRM_TIMEOUT")
	setStr(&cfg.Token.PoolAddress, "PAVILION_TOKEN_POOL_ADDRESS")

	setStr(&cfg.Store.Backend, "PAVILION_STORE_BACKEND")

	setStr(&cfg.Postgres.DSN, "PAVILION_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PAVILION_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PAVILION_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PAVILION_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PAVILION_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PAVILION_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PAVILION_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PAVILION_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PAVILION_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PAVILION_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "PAVILION_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAVILION_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAVILION_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAVILION_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAVILION_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "PAVILION_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "PAVILION_REDIS_LOCK_TTL")

	setBool(&cfg.Kafka.Enabled, "PAVILION_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "PAVILION_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "PAVILION_KAFKA_TOPIC")

	setBool(&cfg.S3.Enabled, "PAVILION_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAVILION_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAVILION_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAVILION_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAVILION_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAVILION_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAVILION_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAVILION_S3_FORCE_PATH_STYLE")

	setInt(&cfg.Server.Port, "PAVILION_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PAVILION_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.SignatureMaxAge, "PAVILION_SERVER_SIGNATURE_MAX_AGE")
	setInt(&cfg.Server.RateLimit, "PAVILION_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PAVILION_SERVER_RATE_WINDOW")

	setStr(&cfg.Notify.TelegramToken, "PAVILION_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAVILION_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAVILION_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAVILION_NOTIFY_EVENTS")
}

// Each helper leaves dst alone when the variable is unset, empty or
// unparsable.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
