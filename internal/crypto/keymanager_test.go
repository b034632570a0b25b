package crypto_test

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/crypto"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestKeyFile_RoundTrip(t *testing.T) {
	data, err := crypto.EncryptKeyWithIterations(testKeyHex, "hunter2", 1000)
	require.NoError(t, err)
	assert.NotContains(t, string(data), testKeyHex)

	pk, err := crypto.DecryptKey(data, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, hex.EncodeToString(ethcrypto.FromECDSA(pk)))

	_, err = crypto.DecryptKey(data, "wrong")
	assert.Error(t, err)
	_, err = crypto.DecryptKey(data, "")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	pk, err := crypto.LoadKey(crypto.KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", ethcrypto.PubkeyToAddress(pk.PublicKey).Hex())

	data, err := crypto.EncryptKeyWithIterations(testKeyHex, "pw", 1000)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "authority.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	fromFile, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.True(t, pk.Equal(fromFile))

	_, err = crypto.LoadKey(crypto.KeyConfig{})
	assert.Error(t, err)
}

func TestPrincipalAuth(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	p := crypto.NewPrincipalAuth("gateway-secret", time.Minute)
	p.SetClock(func() time.Time { return now })

	principal := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	body := []byte(`{"outcome":0,"amount":"1"}`)
	sig := p.Sign("POST", "/api/markets/0/bets", principal, body, now.Unix())

	require.NoError(t, p.Verify("POST", "/api/markets/0/bets", principal, body, "1700000000", sig))
	assert.ErrorIs(t, p.Verify("POST", "/api/markets/1/bets", principal, body, "1700000000", sig), crypto.ErrPrincipalSignature)
	assert.ErrorIs(t, p.Verify("POST", "/api/markets/0/bets", "0x1", body, "1700000000", sig), crypto.ErrPrincipalSignature)
	assert.ErrorIs(t, p.Verify("POST", "/api/markets/0/bets", principal, []byte(`{"outcome":1,"amount":"500"}`), "1700000000", sig), crypto.ErrPrincipalSignature)
	assert.ErrorIs(t, p.Verify("POST", "/api/markets/0/bets", principal, nil, "1700000000", sig), crypto.ErrPrincipalSignature)

	stale := p.Sign("POST", "/x", principal, nil, now.Add(-2*time.Minute).Unix())
	assert.ErrorIs(t, p.Verify("POST", "/x", principal, nil, "1699999880", stale), crypto.ErrPrincipalExpired)
	assert.Error(t, p.Verify("POST", "/x", principal, nil, "soon", sig))
	assert.NotContains(t, p.String(), "gateway-secret")
}
