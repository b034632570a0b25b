package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/config"
)

const (
	operatorHex  = "0x1000000000000000000000000000000000000001"
	custodyHex   = "0x2000000000000000000000000000000000000002"
	authorityHex = "0x3000000000000000000000000000000000000003"
)

func serveConfig() config.Config {
	cfg := config.Defaults()
	cfg.Engine.Operator = operatorHex
	cfg.Engine.Custody = custodyHex
	cfg.Voucher.Authority = authorityHex
	return cfg
}

func TestDefaults_ValidOnceRolesAreSet(t *testing.T) {
	cfg := config.Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine: operator must be set")
	assert.Contains(t, err.Error(), "engine: custody must be set")
	assert.Contains(t, err.Error(), "voucher: authority must be set")

	cfg = serveConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := serveConfig()
	cfg.Mode = "trade"
	cfg.Engine.PlatformFeeBps = 10001
	cfg.Engine.CreationFee = "half"
	cfg.Engine.Resolvers = []string{"nobody"}
	cfg.Engine.Seasonal.MinEntryFee = "600"
	cfg.Oracle.Source = "redis"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "engine: platform_fee_bps must be 0-10000, got 10001")
	assert.Contains(t, msg, "engine: creation_fee")
	assert.Contains(t, msg, `engine: resolvers: "nobody" is not a hex address`)
	assert.Contains(t, msg, "min_entry_fee must not exceed max_entry_fee")
	assert.Contains(t, msg, "oracle: source redis requires redis.enabled")
}

func TestValidate_ModeRequirements(t *testing.T) {
	cfg := serveConfig()
	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive mode requires postgres.enabled and s3.enabled")

	cfg.Postgres.Enabled = true
	cfg.S3.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg = config.Defaults()
	cfg.Mode = "voucher"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either private_key or encrypted_key_path")
	assert.NotContains(t, err.Error(), "engine: operator")

	cfg.Voucher.EncryptedKeyPath = "voucher.key"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")

	cfg = config.Defaults()
	cfg.Mode = "encrypt-key"
	cfg.Voucher.EncryptedKeyPath = "voucher.key"
	cfg.Voucher.KeyPassword = "pw"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private_key and encrypted_key_path must be set for mode encrypt-key")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arena.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "report"

[engine]
operator = "`+operatorHex+`"
custody = "`+custodyHex+`"
platform_fee_bps = 250
dispute_window = "2h"

[engine.seasonal]
check_interval = "30m"

[[ledger.genesis]]
account = "`+operatorHex+`"
base = "1000"

[server]
port = 9000
`), 0o600))

	t.Setenv("ARENA_SERVER_PORT", "9100")
	t.Setenv("ARENA_SERVER_API_KEYS", " one , ,two ")
	t.Setenv("ARENA_VOUCHER_CHAIN_ID", "1")
	t.Setenv("ARENA_POSTGRES_ENABLED", "true")
	t.Setenv("ARENA_ENGINE_DISPUTE_WINDOW", "not-a-duration")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "report", cfg.Mode)
	assert.Equal(t, operatorHex, cfg.Engine.Operator)
	assert.Equal(t, 250, cfg.Engine.PlatformFeeBps)
	assert.Equal(t, 2*time.Hour, cfg.Engine.DisputeWindow.Duration)
	assert.Equal(t, 30*time.Minute, cfg.Engine.Seasonal.CheckInterval.Duration)
	assert.Equal(t, 90*24*time.Hour, cfg.Engine.Seasonal.MaxDuration.Duration)
	require.Len(t, cfg.Ledger.Genesis, 1)
	assert.Equal(t, "1000", cfg.Ledger.Genesis[0].Base)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"one", "two"}, cfg.Server.APIKeys)
	assert.Equal(t, int64(1), cfg.Voucher.ChainID)
	assert.True(t, cfg.Postgres.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: decode")

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := serveConfig()
	cfg.Voucher.PrivateKey = "deadbeef"
	cfg.Postgres.DSN = "postgres://u:p@db/arena"
	cfg.S3.SecretKey = "s3cret"
	cfg.Server.APIKeys = []string{"k1", "k2"}
	cfg.Notify.TelegramChatID = "42"

	out := cfg.Redacted()
	assert.Equal(t, "***", out.Voucher.PrivateKey)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.S3.SecretKey)
	assert.Equal(t, []string{"***", "***"}, out.Server.APIKeys)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "42", out.Notify.TelegramChatID)
	assert.Equal(t, operatorHex, out.Engine.Operator)

	assert.Equal(t, "deadbeef", cfg.Voucher.PrivateKey)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
}
