package crypto_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/domain"
)

var testDomain = crypto.VoucherDomain{
	Name:              "BetFi Exclusive",
	Version:           "1",
	ChainID:           88882,
	VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
}

func newSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	pk, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return crypto.NewSignerFromKey(pk, testDomain)
}

func TestVoucher_RecoverSigner(t *testing.T) {
	s := newSigner(t)
	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	v, err := s.SignVoucher(0, user)
	require.NoError(t, err)
	require.Len(t, v.Signature, 65)
	assert.Contains(t, []byte{27, 28}, v.Signature[64])

	got, err := crypto.NewVerifier(testDomain).RecoverSigner(v)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)
}

func TestVoucher_BoundToFields(t *testing.T) {
	s := newSigner(t)
	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	v, err := s.SignVoucher(0, user)
	require.NoError(t, err)
	verifier := crypto.NewVerifier(testDomain)

	otherRaffle := v
	otherRaffle.RaffleID = 1
	got, err := verifier.RecoverSigner(otherRaffle)
	if err == nil {
		assert.NotEqual(t, s.Address(), got)
	}

	otherUser := v
	otherUser.User = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	got, err = verifier.RecoverSigner(otherUser)
	if err == nil {
		assert.NotEqual(t, s.Address(), got)
	}
}

func TestVoucher_BoundToDomain(t *testing.T) {
	s := newSigner(t)
	user := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	v, err := s.SignVoucher(3, user)
	require.NoError(t, err)

	otherChain := testDomain
	otherChain.ChainID = 1
	otherContract := testDomain
	otherContract.VerifyingContract = common.HexToAddress("0x1")
	otherVersion := testDomain
	otherVersion.Version = "2"

	for _, d := range []crypto.VoucherDomain{otherChain, otherContract, otherVersion} {
		got, err := crypto.NewVerifier(d).RecoverSigner(v)
		if err == nil {
			assert.NotEqual(t, s.Address(), got)
		}
	}
}

func TestVoucher_MalformedSignature(t *testing.T) {
	v := crypto.NewVerifier(testDomain)
	_, err := v.RecoverSigner(domainVoucher([]byte{1, 2, 3}))
	assert.ErrorIs(t, err, crypto.ErrMalformedSignature)

	bad := make([]byte, 65)
	bad[64] = 30
	_, err = v.RecoverSigner(domainVoucher(bad))
	assert.ErrorIs(t, err, crypto.ErrMalformedSignature)
}

func TestParseSignature(t *testing.T) {
	s := newSigner(t)
	v, err := s.SignVoucher(7, common.HexToAddress("0x1"))
	require.NoError(t, err)

	parsed, err := crypto.ParseSignature(crypto.FormatSignature(v.Signature))
	require.NoError(t, err)
	assert.Equal(t, v.Signature, parsed)

	_, err = crypto.ParseSignature("0xzz")
	assert.ErrorIs(t, err, crypto.ErrMalformedSignature)
}

func domainVoucher(sig []byte) domain.Voucher {
	return domain.Voucher{RaffleID: 0, Signature: sig}
}
