package attest

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RevocationPrefix distinguishes a revocation message from the assertion
// text it revokes. The prefixed text is what a subject signs to revoke.
const RevocationPrefix = "Revoked: "

// ComputeAssertionID derives the stable identifier for an assertion text.
func ComputeAssertionID(text string) common.Hash {
	return crypto.Keccak256Hash([]byte(text))
}

// RevocationText returns the message a subject must sign to revoke an
// attestation to the given assertion text.
func RevocationText(text string) string {
	return RevocationPrefix + text
}

// ComputeRevokeID derives the identifier of the revocation message.
func ComputeRevokeID(text string) common.Hash {
	return crypto.Keccak256Hash([]byte(RevocationText(text)))
}

// Assertion is a registered text claim with its attestation policy.
// Text, ID, and RevokeID never change after creation; Controller, Gateway,
// and Stopped are mutable through the registry's authorized setters.
type Assertion struct {
	ID              common.Hash    `json:"id"`
	RevokeID        common.Hash    `json:"revoke_id"`
	Text            string         `json:"text"`
	FreshnessWindow time.Duration  `json:"freshness_window"`
	ExpiryWindow    time.Duration  `json:"expiry_window"`
	RequiresGateway bool           `json:"requires_gateway"`
	Gateway         common.Address `json:"gateway"`
	Controller      common.Address `json:"controller"`
	Stopped         bool           `json:"stopped"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AttestationRecord is the per-(assertion, subject) ledger entry.
// SignedAt zero means the subject never attested; Revoked survives until a
// fresh attestation overwrites the record.
type AttestationRecord struct {
	AssertionID common.Hash    `json:"assertion_id"`
	Subject     common.Address `json:"subject"`
	SignedAt    int64          `json:"signed_at"`
	Revoked     bool           `json:"revoked"`
}

// Roles holds the three singleton role addresses. The zero address means
// the role is unset (for Owner, permanently renounced).
type Roles struct {
	Owner        common.Address `json:"owner"`
	Overrider    common.Address `json:"overrider"`
	TipCollector common.Address `json:"tip_collector"`
}
