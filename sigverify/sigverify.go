// Package sigverify builds domain-separated digests over (text, timestamp)
// pairs and checks secp256k1 signatures against a claimed signer address.
//
// The digest layout follows the typed structured-data scheme used by EVM
// wallets: a domain separator binding the system name, version, chain id,
// and registry instance address, combined with a message struct hash. A
// signature produced for one registry instance therefore cannot be replayed
// against another instance or another chain.
//
// The package is stateless; every function is a pure computation.
package sigverify

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// DomainName identifies this system in the signing domain.
const DomainName = "AttestMe"

// DomainVersion is bumped only if the digest layout changes incompatibly.
const DomainVersion = "1"

// SignatureLength is the expected [R || S || V] signature size.
const SignatureLength = 65

var (
	domainTypeHash  = crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	messageTypeHash = crypto.Keccak256([]byte("Attestation(string text,uint256 signedAt)"))
)

// Domain carries the parameters that scope every digest to a single
// registry instance on a single chain.
type Domain struct {
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain builds a Domain for the given chain and registry address.
func NewDomain(chainID int64, verifyingContract common.Address) Domain {
	return Domain{
		ChainID:           big.NewInt(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Separator computes the 32-byte domain separator hash.
func (d Domain) Separator() common.Hash {
	chainID := d.ChainID
	if chainID == nil {
		chainID = big.NewInt(0)
	}
	return common.BytesToHash(crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(DomainName)),
		crypto.Keccak256([]byte(DomainVersion)),
		common.LeftPadBytes(chainID.Bytes(), 32),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	))
}

// structHash hashes the (text, signedAt) message struct. The text is hashed
// rather than embedded so arbitrary-length assertions produce fixed-width
// encodings.
func structHash(text string, signedAt int64) []byte {
	return crypto.Keccak256(
		messageTypeHash,
		crypto.Keccak256([]byte(text)),
		common.LeftPadBytes(big.NewInt(signedAt).Bytes(), 32),
	)
}

// Digest computes the final signing digest for a message under the domain:
// keccak256(0x19 0x01 || separator || structHash).
func Digest(d Domain, text string, signedAt int64) common.Hash {
	sep := d.Separator()
	return common.BytesToHash(crypto.Keccak256(
		[]byte{0x19, 0x01},
		sep.Bytes(),
		structHash(text, signedAt),
	))
}

// RecoverSigner recovers the address that signed the given digest.
// The recovery id is accepted in compact {0,1} form, EVM {27,28} form,
// or the chain-offset form {27+2·chainId, 28+2·chainId}.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errors.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	normalized := append([]byte(nil), signature...)
	recoveryID, err := toCompactRecoveryID(normalized[64])
	if err != nil {
		return common.Address{}, errors.Wrap(err, "normalize recovery id")
	}
	normalized[64] = recoveryID

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "recover public key from signature")
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify checks that signature covers (text, signedAt) under the domain and
// was produced by signer. A zero or negative timestamp is rejected before
// any recovery is attempted.
func Verify(d Domain, text string, signedAt int64, signer common.Address, signature []byte) error {
	if signedAt <= 0 {
		return errors.Errorf("signed-at timestamp must be positive, got %d", signedAt)
	}

	recovered, err := RecoverSigner(Digest(d, text, signedAt), signature)
	if err != nil {
		return err
	}
	if recovered != signer {
		return errors.Errorf("recovered signer %s does not match claimed signer %s",
			recovered.Hex(), signer.Hex())
	}
	return nil
}

func toCompactRecoveryID(v byte) (byte, error) {
	switch {
	case v <= 1:
		return v, nil
	case v >= 27 && v <= 34:
		return (v - 27) & 1, nil
	default:
		return 0, errors.Errorf("invalid recovery id %d", v)
	}
}
