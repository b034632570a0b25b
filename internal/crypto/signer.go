package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/DIGIX666/Arena/internal/domain"
)

// --------------------------------------------------------------------------
// EIP-712 type hashes (pre-computed keccak256 of the canonical type strings).
// --------------------------------------------------------------------------

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// ParticipationVoucher(uint256 raffleId,address user)
	voucherTypeHash = ethcrypto.Keccak256(
		[]byte("ParticipationVoucher(uint256 raffleId,address user)"),
	)
)

// ErrMalformedSignature is returned for signatures that are not 65 bytes
// with a valid recovery id.
var ErrMalformedSignature = errors.New("crypto: malformed signature")

// VoucherDomain binds vouchers to one deployment on one network.
type VoucherDomain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// Separator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func (d VoucherDomain) Separator() []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(d.Name)),
			ethcrypto.Keccak256([]byte(d.Version)),
			bigIntTo32Bytes(big.NewInt(d.ChainID)),
			common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
		),
	)
}

// VoucherDigest returns the EIP-712 digest a voucher signature covers.
func VoucherDigest(d VoucherDomain, raffleID uint64, user common.Address) []byte {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			voucherTypeHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(raffleID)),
			common.LeftPadBytes(user.Bytes(), 32),
		),
	)
	return eip712Hash(d.Separator(), structHash)
}

// Signer issues participation vouchers with the voucher authority key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domain     VoucherDomain
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string, d VoucherDomain) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return newSigner(pk, d), nil
}

// NewSignerFromKey creates a Signer from a parsed key.
func NewSignerFromKey(pk *ecdsa.PrivateKey, d VoucherDomain) *Signer {
	return newSigner(pk, d)
}

func newSigner(pk *ecdsa.PrivateKey, d VoucherDomain) *Signer {
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domain:     d,
		domainSep:  d.Separator(),
	}
}

// Address returns the authority address derived from the key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignVoucher signs a voucher entitling user to enter raffleID.
func (s *Signer) SignVoucher(raffleID uint64, user common.Address) (domain.Voucher, error) {
	structHash := ethcrypto.Keccak256(
		concatBytes(
			voucherTypeHash,
			bigIntTo32Bytes(new(big.Int).SetUint64(raffleID)),
			common.LeftPadBytes(user.Bytes(), 32),
		),
	)
	sig, err := s.signDigest(eip712Hash(s.domainSep, structHash))
	if err != nil {
		return domain.Voucher{}, err
	}
	return domain.Voucher{RaffleID: raffleID, User: user, Signature: sig}, nil
}

// Verifier recovers voucher signers for one domain.
type Verifier struct {
	domain VoucherDomain
}

// NewVerifier returns a verifier bound to d.
func NewVerifier(d VoucherDomain) *Verifier {
	return &Verifier{domain: d}
}

// RecoverSigner returns the address that signed v.
func (v *Verifier) RecoverSigner(voucher domain.Voucher) (common.Address, error) {
	sig := voucher.Signature
	if len(sig) != 65 {
		return common.Address{}, ErrMalformedSignature
	}
	rsv := make([]byte, 65)
	copy(rsv, sig)
	if rsv[64] >= 27 {
		rsv[64] -= 27
	}
	if rsv[64] > 1 {
		return common.Address{}, ErrMalformedSignature
	}
	digest := VoucherDigest(v.domain, voucher.RaffleID, voucher.User)
	pub, err := ethcrypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// ParseSignature decodes a 0x-prefixed hex signature.
func ParseSignature(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(b) != 65 {
		return nil, ErrMalformedSignature
	}
	return b, nil
}

// FormatSignature hex-encodes a signature with a 0x prefix.
func FormatSignature(sig []byte) string {
	return "0x" + hex.EncodeToString(sig)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest and returns r || s || v with v in {27,28}.
func (s *Signer) signDigest(digest []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
