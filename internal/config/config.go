// Package config defines the top-level configuration for the arena settlement
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARENA_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Voucher  VoucherConfig  `toml:"voucher"`
	Chain    ChainConfig    `toml:"chain"`
	Oracle   OracleConfig   `toml:"oracle"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the settlement roles and tunables. Amounts are decimal
// strings in whole currency units.
type EngineConfig struct {
	Operator            string            `toml:"operator"`
	Custody             string            `toml:"custody"`
	Resolvers           []string          `toml:"resolvers"`
	CreationFee         string            `toml:"creation_fee"`
	PlatformFeeBps      int               `toml:"platform_fee_bps"`
	ExemptionThreshold  string            `toml:"exemption_threshold"`
	BonusTiers          []BonusTierConfig `toml:"bonus_tiers"`
	UserCreationEnabled bool              `toml:"user_creation_enabled"`
	DisputeWindow       duration          `toml:"dispute_window"`
	UserMaxHorizon      duration          `toml:"user_max_horizon"`
	AdminMaxHorizon     duration          `toml:"admin_max_horizon"`
	CreationPoints      int               `toml:"creation_points"`
	ActivationCost      int               `toml:"activation_cost"`
	ImbalanceBps        int               `toml:"imbalance_bps"`
	Seasonal            SeasonalConfig    `toml:"seasonal"`
}

// BonusTierConfig grants BonusBps to holders of at least MinFanTokens.
type BonusTierConfig struct {
	MinFanTokens string `toml:"min_fan_tokens"`
	BonusBps     int    `toml:"bonus_bps"`
}

// SeasonalConfig holds seasonal market and volatility protection parameters.
type SeasonalConfig struct {
	MaxDuration            duration `toml:"max_duration"`
	MinEntryFee            string   `toml:"min_entry_fee"`
	MaxEntryFee            string   `toml:"max_entry_fee"`
	MinFanTokens           string   `toml:"min_fan_tokens"`
	FreeInsuranceThreshold string   `toml:"free_insurance_threshold"`
	InsuranceFee           string   `toml:"insurance_fee"`
	VolatilityThresholdBps int      `toml:"volatility_threshold_bps"`
	CheckInterval          duration `toml:"check_interval"`
	SecondaryBps           int      `toml:"secondary_bps"`
}

// LedgerConfig describes the in-process ledgers and their opening balances.
type LedgerConfig struct {
	BaseSymbol      string          `toml:"base_symbol"`
	SecondarySymbol string          `toml:"secondary_symbol"`
	FanSymbol       string          `toml:"fan_symbol"`
	Genesis         []GenesisConfig `toml:"genesis"`
}

// GenesisConfig credits an account when the service starts with an empty
// ledger. The account approves custody for its whole balance.
type GenesisConfig struct {
	Account   string `toml:"account"`
	Base      string `toml:"base"`
	Secondary string `toml:"secondary"`
	Fan       string `toml:"fan"`
}

// VoucherConfig holds the EIP-712 voucher domain and the authority key.
type VoucherConfig struct {
	Name              string `toml:"name"`
	Version           string `toml:"version"`
	ChainID           int64  `toml:"chain_id"`
	VerifyingContract string `toml:"verifying_contract"`
	Authority         string `toml:"authority"`
	PrivateKey        string `toml:"private_key"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
}

// ChainConfig points the fan-token reader at an EVM node. When RPCURL is
// empty fan-token balances come from the in-process ledger.
type ChainConfig struct {
	RPCURL   string `toml:"rpc_url"`
	FanToken string `toml:"fan_token"`
}

// OracleConfig selects where volatility and rate readings come from.
type OracleConfig struct {
	Source              string `toml:"source"`
	StaticVolatilityBps int    `toml:"static_volatility_bps"`
	StaticRate          string `toml:"static_rate"`
	VolatilityKey       string `toml:"volatility_key"`
	RateKey             string `toml:"rate_key"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	APIKeys         []string `toml:"api_keys"`
	PrincipalSecret string   `toml:"principal_secret"`
	PrincipalWindow duration `toml:"principal_window"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
}

// ArchiveConfig controls copying settled data to object storage.
type ArchiveConfig struct {
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "24h", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "24h" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the production constants.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			CreationFee:        "0.5",
			PlatformFeeBps:     300,
			ExemptionThreshold: "100",
			BonusTiers: []BonusTierConfig{
				{MinFanTokens: "100", BonusBps: 100},
				{MinFanTokens: "500", BonusBps: 300},
				{MinFanTokens: "1000", BonusBps: 500},
			},
			UserCreationEnabled: true,
			DisputeWindow:       duration{24 * time.Hour},
			UserMaxHorizon:      duration{30 * 24 * time.Hour},
			AdminMaxHorizon:     duration{365 * 24 * time.Hour},
			CreationPoints:      50,
			ActivationCost:      100,
			ImbalanceBps:        8000,
			Seasonal: SeasonalConfig{
				MaxDuration:            duration{90 * 24 * time.Hour},
				MinEntryFee:            "150",
				MaxEntryFee:            "500",
				MinFanTokens:           "2000",
				FreeInsuranceThreshold: "5000",
				InsuranceFee:           "20",
				VolatilityThresholdBps: 3000,
				CheckInterval:          duration{time.Hour},
				SecondaryBps:           4000,
			},
		},
		Ledger: LedgerConfig{
			BaseSymbol:      "CHZ",
			SecondarySymbol: "USDC",
			FanSymbol:       "FAN",
		},
		Voucher: VoucherConfig{
			Name:    "BetFi Exclusive",
			Version: "1",
			ChainID: 88882,
		},
		Oracle: OracleConfig{
			Source:        "static",
			StaticRate:    "0.08",
			VolatilityKey: "oracle:volatility_bps",
			RateKey:       "oracle:base_to_secondary",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arena",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arena-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:            8000,
			PrincipalWindow: duration{5 * time.Minute},
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateWindow:      duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Interval:      duration{24 * time.Hour},
			RetentionDays: 30,
		},
		Notify: NotifyConfig{
			Events: []string{"resolution_executed", "market_cancelled", "protection_triggered", "raffle_resolved", "emergency_withdrawal"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":       true,
	"archive":     true,
	"report":      true,
	"voucher":     true,
	"encrypt-key": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: serve, archive, report, voucher, encrypt-key)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Engine roles are needed wherever the engine runs.
	if mode == "serve" || mode == "report" || mode == "archive" {
		checkAddress(&errs, "engine: operator", c.Engine.Operator, true)
		checkAddress(&errs, "engine: custody", c.Engine.Custody, true)
	}
	for _, r := range c.Engine.Resolvers {
		checkAddress(&errs, "engine: resolvers", r, true)
	}
	checkAmount(&errs, "engine: creation_fee", c.Engine.CreationFee, amount.BaseDecimals)
	checkAmount(&errs, "engine: exemption_threshold", c.Engine.ExemptionThreshold, amount.BaseDecimals)
	checkBps(&errs, "engine: platform_fee_bps", c.Engine.PlatformFeeBps)
	checkBps(&errs, "engine: imbalance_bps", c.Engine.ImbalanceBps)
	for i, tier := range c.Engine.BonusTiers {
		checkAmount(&errs, fmt.Sprintf("engine: bonus_tiers[%d].min_fan_tokens", i), tier.MinFanTokens, amount.BaseDecimals)
		checkBps(&errs, fmt.Sprintf("engine: bonus_tiers[%d].bonus_bps", i), tier.BonusBps)
	}
	if c.Engine.DisputeWindow.Duration <= 0 {
		add("engine: dispute_window must be > 0")
	}
	if c.Engine.UserMaxHorizon.Duration <= 0 || c.Engine.AdminMaxHorizon.Duration < c.Engine.UserMaxHorizon.Duration {
		add("engine: need 0 < user_max_horizon <= admin_max_horizon")
	}
	if c.Engine.CreationPoints < 0 || c.Engine.ActivationCost < 0 {
		add("engine: creation_points and activation_cost must be >= 0")
	}

	s := c.Engine.Seasonal
	if s.MaxDuration.Duration <= 0 {
		add("engine.seasonal: max_duration must be > 0")
	}
	if s.CheckInterval.Duration < 0 {
		add("engine.seasonal: check_interval must be >= 0")
	}
	minFee := checkAmount(&errs, "engine.seasonal: min_entry_fee", s.MinEntryFee, amount.BaseDecimals)
	maxFee := checkAmount(&errs, "engine.seasonal: max_entry_fee", s.MaxEntryFee, amount.BaseDecimals)
	if minFee.Gt(maxFee) {
		add("engine.seasonal: min_entry_fee must not exceed max_entry_fee")
	}
	checkAmount(&errs, "engine.seasonal: min_fan_tokens", s.MinFanTokens, amount.BaseDecimals)
	checkAmount(&errs, "engine.seasonal: free_insurance_threshold", s.FreeInsuranceThreshold, amount.BaseDecimals)
	checkAmount(&errs, "engine.seasonal: insurance_fee", s.InsuranceFee, amount.BaseDecimals)
	checkBps(&errs, "engine.seasonal: volatility_threshold_bps", s.VolatilityThresholdBps)
	checkBps(&errs, "engine.seasonal: secondary_bps", s.SecondaryBps)

	for i, g := range c.Ledger.Genesis {
		label := fmt.Sprintf("ledger: genesis[%d]", i)
		checkAddress(&errs, label+".account", g.Account, true)
		checkAmount(&errs, label+".base", g.Base, amount.BaseDecimals)
		checkAmount(&errs, label+".secondary", g.Secondary, amount.SecondaryDecimals)
		checkAmount(&errs, label+".fan", g.Fan, amount.BaseDecimals)
	}

	// Voucher
	if c.Voucher.Name == "" || c.Voucher.Version == "" {
		add("voucher: name and version must not be empty")
	}
	if c.Voucher.ChainID <= 0 {
		add("voucher: chain_id must be positive")
	}
	checkAddress(&errs, "voucher: verifying_contract", c.Voucher.VerifyingContract, false)
	checkAddress(&errs, "voucher: authority", c.Voucher.Authority, mode == "serve")
	if mode == "voucher" && c.Voucher.PrivateKey == "" && c.Voucher.EncryptedKeyPath == "" {
		add("voucher: either private_key or encrypted_key_path must be set for mode voucher")
	}
	if mode == "encrypt-key" && (c.Voucher.PrivateKey == "" || c.Voucher.EncryptedKeyPath == "") {
		add("voucher: private_key and encrypted_key_path must be set for mode encrypt-key")
	}
	if c.Voucher.EncryptedKeyPath != "" && c.Voucher.KeyPassword == "" {
		add("voucher: key_password is required when encrypted_key_path is set")
	}

	// Chain
	if c.Chain.RPCURL != "" {
		checkAddress(&errs, "chain: fan_token", c.Chain.FanToken, true)
	}

	// Oracle
	switch c.Oracle.Source {
	case "static":
		checkBps(&errs, "oracle: static_volatility_bps", c.Oracle.StaticVolatilityBps)
		checkAmount(&errs, "oracle: static_rate", c.Oracle.StaticRate, amount.SecondaryDecimals)
	case "redis":
		if !c.Redis.Enabled {
			add("oracle: source redis requires redis.enabled")
		}
		if c.Oracle.VolatilityKey == "" || c.Oracle.RateKey == "" {
			add("oracle: volatility_key and rate_key must not be empty")
		}
	default:
		add("oracle: unknown source %q (valid: static, redis)", c.Oracle.Source)
	}

	// Postgres
	if c.Postgres.Enabled {
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
	}
	if mode == "archive" && (!c.Postgres.Enabled || !c.S3.Enabled) {
		add("archive mode requires postgres.enabled and s3.enabled")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
	}

	// Server
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.PrincipalSecret != "" && c.Server.PrincipalWindow.Duration <= 0 {
			add("server: principal_window must be > 0")
		}
	}

	if c.Archive.RetentionDays < 0 {
		add("archive: retention_days must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func checkAddress(errs *[]string, field, value string, required bool) {
	if value == "" {
		if required {
			*errs = append(*errs, field+" must be set")
		}
		return
	}
	if !common.IsHexAddress(value) {
		*errs = append(*errs, fmt.Sprintf("%s: %q is not a hex address", field, value))
	}
}

func checkAmount(errs *[]string, field, value string, decimals uint8) amount.Amount {
	if value == "" {
		return amount.Zero()
	}
	a, err := amount.Parse(value, decimals)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: %v", field, err))
		return amount.Zero()
	}
	return a
}

func checkBps(errs *[]string, field string, v int) {
	if v < 0 || v > 10000 {
		*errs = append(*errs, fmt.Sprintf("%s must be 0-10000, got %d", field, v))
	}
}
