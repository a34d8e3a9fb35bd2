package sigverify

import (
	"crypto/ecdsa"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Signer produces signatures a registry will accept for a subject address.
// It wraps a secp256k1 private key and is safe for concurrent use.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	mu         sync.RWMutex
}

// NewSigner wraps an existing private key.
func NewSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	if privateKey == nil {
		return nil, errors.New("private key cannot be nil")
	}
	return &Signer{privateKey: privateKey}, nil
}

// NewSignerFromHex parses a 0x-prefixed or bare hex private key.
func NewSignerFromHex(keyHex string) (*Signer, error) {
	raw, err := hexutil.Decode(ensureHexPrefix(keyHex))
	if err != nil {
		return nil, errors.Wrap(err, "decode private key hex")
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse secp256k1 private key")
	}
	return &Signer{privateKey: key}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate secp256k1 key")
	}
	return &Signer{privateKey: key}, nil
}

// SignMessage signs (text, signedAt) under the domain and returns a 65-byte
// [R || S || V] signature with V normalized to the EVM {27,28} form.
func (s *Signer) SignMessage(d Domain, text string, signedAt int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return nil, errors.New("private key not initialized")
	}

	digest := Digest(d, text, signedAt)
	signature, err := crypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "sign digest")
	}

	// crypto.Sign returns V in compact {0,1} form; wallets emit {27,28}.
	v := signature[64]
	if v >= 27 {
		v -= 27
	}
	v &= 1
	signature[64] = v + 27
	return signature, nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(s.privateKey.PublicKey)
}

// ExportHex returns the private key as 0x-prefixed hex.
func (s *Signer) ExportHex() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.privateKey == nil {
		return ""
	}
	return hexutil.Encode(crypto.FromECDSA(s.privateKey))
}

func ensureHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	return "0x" + s
}
