package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// Signer holds a secp256k1 keypair used to sign ledger envelopes. The key is
// read-only after construction and safe for concurrent use.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	ephemeral  bool
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// NewEphemeralSigner generates a throwaway keypair. It holds no funds and is
// only good for simulation.
func NewEphemeralSigner() (*Signer, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		ephemeral:  true,
	}, nil
}

// PublicKey returns the account id derived from the key.
func (s *Signer) PublicKey() string {
	return s.address.Hex()
}

// Ephemeral reports whether the keypair was generated for read-only use.
func (s *Signer) Ephemeral() bool {
	return s.ephemeral
}

// Sign signs a 32-byte digest and returns r || s || v (65 bytes).
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("crypto/signer: digest must be 32 bytes, got %d", len(digest))
	}
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig over digest was produced by the holder of
// publicKey.
func Verify(publicKey string, digest, sig []byte) bool {
	if len(sig) != 65 || !common.IsHexAddress(publicKey) {
		return false
	}
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	return ethcrypto.PubkeyToAddress(*pub) == common.HexToAddress(publicKey)
}

var _ domain.Signer = (*Signer)(nil)
