package app_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/app"
	"github.com/DIGIX666/Arena/internal/config"
	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

const aliceHex = "0x00000000000000000000000000000000000a1ce0"

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func wire(t *testing.T, cfg *config.Config) *app.Dependencies {
	t.Helper()
	deps, cleanup, err := app.Wire(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return deps
}

func TestWire_GenesisBalances(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "report"
	cfg.Ledger.Genesis = []config.GenesisConfig{{Account: aliceHex, Base: "100", Secondary: "50", Fan: "2500"}}
	deps := wire(t, cfg)

	ctx := context.Background()
	alice := common.HexToAddress(aliceHex)
	custody := common.HexToAddress(custodyHex)

	bal, err := deps.Base.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amount.Units(100, amount.BaseDecimals), bal)
	assert.Equal(t, amount.Units(100, amount.BaseDecimals), deps.Base.Allowance(alice, custody))

	bal, err = deps.Secondary.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amount.Units(50, amount.SecondaryDecimals), bal)

	bal, err = deps.Fan.BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, amount.Units(2500, amount.BaseDecimals), bal)
	assert.True(t, deps.Fan.Allowance(alice, custody).IsZero())
}

func TestWire_ServeSeedsResolvers(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.Resolvers = []string{aliceHex}
	cfg.Server.PrincipalSecret = "s3cret"
	deps := wire(t, cfg)

	assert.True(t, deps.Engine.IsResolver(context.Background(), common.HexToAddress(aliceHex)))
	assert.NotNil(t, deps.Principals)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Archiver)
}

func TestWire_OneShotModesNeedNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "voucher"
	deps := wire(t, cfg)
	assert.Nil(t, deps.Engine)
	assert.Nil(t, deps.Service)
}

func TestWriteReport(t *testing.T) {
	cfg := testConfig()
	cfg.Mode = "report"
	deps := wire(t, cfg)

	_, err := deps.Service.AdminCreateMarket(context.Background(), common.HexToAddress(operatorHex), engine.MarketSpec{
		Title:    "PSG vs OM",
		Category: "football",
		Outcomes: []string{"PSG", "OM"},
		Deadline: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, app.WriteReport(context.Background(), &buf, deps.Engine))
	out := buf.String()
	assert.Contains(t, out, "PSG vs OM")
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "fees_accumulated")
}

func newKey(t *testing.T) (string, common.Address) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return hex.EncodeToString(ethcrypto.FromECDSA(key)), ethcrypto.PubkeyToAddress(key.PublicKey)
}

func TestRun_VoucherMode(t *testing.T) {
	keyHex, authority := newKey(t)
	cfg := testConfig()
	cfg.Mode = "voucher"
	cfg.Voucher.PrivateKey = keyHex
	cfg.Voucher.Authority = authority.Hex()

	a := app.New(cfg, app.Args{RaffleID: 7, User: aliceHex}, quietLogger())
	var buf bytes.Buffer
	a.SetOutput(&buf)
	require.NoError(t, a.Run(context.Background()))
	a.Close()

	var out struct {
		RaffleID  uint64 `json:"raffle_id"`
		User      string `json:"user"`
		Signature string `json:"signature"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, uint64(7), out.RaffleID)

	sig, err := crypto.ParseSignature(out.Signature)
	require.NoError(t, err)
	signer, err := crypto.NewVerifier(app.VoucherDomain(cfg)).RecoverSigner(domain.Voucher{
		RaffleID:  out.RaffleID,
		User:      common.HexToAddress(out.User),
		Signature: sig,
	})
	require.NoError(t, err)
	assert.Equal(t, authority, signer)
}

func TestRun_VoucherModeRejectsForeignKey(t *testing.T) {
	keyHex, _ := newKey(t)
	cfg := testConfig()
	cfg.Mode = "voucher"
	cfg.Voucher.PrivateKey = keyHex

	a := app.New(cfg, app.Args{RaffleID: 1, User: aliceHex}, quietLogger())
	a.SetOutput(io.Discard)
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the configured authority")

	a = app.New(cfg, app.Args{RaffleID: 1, User: "bob"}, quietLogger())
	assert.Error(t, a.Run(context.Background()))
}

func TestRun_EncryptKeyMode(t *testing.T) {
	keyHex, authority := newKey(t)
	cfg := testConfig()
	cfg.Mode = "encrypt-key"
	cfg.Voucher.PrivateKey = keyHex
	cfg.Voucher.EncryptedKeyPath = filepath.Join(t.TempDir(), "authority.key")
	cfg.Voucher.KeyPassword = "correct horse"

	require.NoError(t, app.New(cfg, app.Args{}, quietLogger()).Run(context.Background()))

	key, err := crypto.LoadKey(crypto.KeyConfig{
		EncryptedKeyPath: cfg.Voucher.EncryptedKeyPath,
		KeyPassword:      cfg.Voucher.KeyPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, authority, ethcrypto.PubkeyToAddress(key.PublicKey))
}
