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

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARENA_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARENA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Operator, "ARENA_ENGINE_OPERATOR")
	setStr(&cfg.Engine.Custody, "ARENA_ENGINE_CUSTODY")
	setStringSlice(&cfg.Engine.Resolvers, "ARENA_ENGINE_RESOLVERS")
	setStr(&cfg.Engine.CreationFee, "ARENA_ENGINE_CREATION_FEE")
	setInt(&cfg.Engine.PlatformFeeBps, "ARENA_ENGINE_PLATFORM_FEE_BPS")
	setBool(&cfg.Engine.UserCreationEnabled, "ARENA_ENGINE_USER_CREATION_ENABLED")
	setDuration(&cfg.Engine.DisputeWindow, "ARENA_ENGINE_DISPUTE_WINDOW")
	setInt(&cfg.Engine.Seasonal.VolatilityThresholdBps, "ARENA_ENGINE_SEASONAL_VOLATILITY_THRESHOLD_BPS")
	setDuration(&cfg.Engine.Seasonal.CheckInterval, "ARENA_ENGINE_SEASONAL_CHECK_INTERVAL")

	// ── Voucher ──
	setInt64(&cfg.Voucher.ChainID, "ARENA_VOUCHER_CHAIN_ID")
	setStr(&cfg.Voucher.VerifyingContract, "ARENA_VOUCHER_VERIFYING_CONTRACT")
	setStr(&cfg.Voucher.Authority, "ARENA_VOUCHER_AUTHORITY")
	setStr(&cfg.Voucher.PrivateKey, "ARENA_VOUCHER_PRIVATE_KEY")
	setStr(&cfg.Voucher.EncryptedKeyPath, "ARENA_VOUCHER_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Voucher.KeyPassword, "ARENA_VOUCHER_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "ARENA_CHAIN_RPC_URL")
	setStr(&cfg.Chain.FanToken, "ARENA_CHAIN_FAN_TOKEN")

	// ── Oracle ──
	setStr(&cfg.Oracle.Source, "ARENA_ORACLE_SOURCE")
	setInt(&cfg.Oracle.StaticVolatilityBps, "ARENA_ORACLE_STATIC_VOLATILITY_BPS")
	setStr(&cfg.Oracle.StaticRate, "ARENA_ORACLE_STATIC_RATE")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARENA_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARENA_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ARENA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARENA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARENA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARENA_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARENA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARENA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARENA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARENA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARENA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARENA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARENA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARENA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARENA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARENA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARENA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARENA_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARENA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARENA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARENA_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARENA_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARENA_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARENA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARENA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARENA_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "ARENA_SERVER_PORT")
	setStringSlice(&cfg.Server.APIKeys, "ARENA_SERVER_API_KEYS")
	setStr(&cfg.Server.PrincipalSecret, "ARENA_SERVER_PRINCIPAL_SECRET")
	setStringSlice(&cfg.Server.CORSOrigins, "ARENA_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "ARENA_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARENA_SERVER_RATE_WINDOW")

	// ── Archive ──
	setDuration(&cfg.Archive.Interval, "ARENA_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "ARENA_ARCHIVE_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARENA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARENA_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARENA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARENA_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARENA_MODE")
	setStr(&cfg.LogLevel, "ARENA_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
