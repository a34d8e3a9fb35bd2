package attest

import "github.com/pkg/errors"

// Sentinel errors for every distinct precondition failure. Callers match
// them with errors.Is; Kind groups them into the coarser taxonomy used by
// transport layers.
var (
	ErrEmptyAssertion     = errors.New("assertion text cannot be empty")
	ErrDuplicateAssertion = errors.New("assertion already registered")

	ErrUnknownAssertion = errors.New("unknown assertion")

	ErrNotAuthorized   = errors.New("caller not authorized")
	ErrGatewayRequired = errors.New("attestations for this assertion must be submitted by its gateway")

	ErrAlreadyStopped   = errors.New("assertion unknown or already stopped")
	ErrNotStopped       = errors.New("assertion not stopped")
	ErrAlreadyBlocked   = errors.New("address already blocked")
	ErrNotBlocked       = errors.New("address not blocked")
	ErrAssertionStopped = errors.New("assertion is stopped")
	ErrAddressBlocked   = errors.New("subject address is blocked")

	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignatureExpired = errors.New("signature timestamp outside freshness window")

	ErrInsufficientTip = errors.New("attached value below required tip")

	ErrNotTransferable = errors.New("attestations are not transferable")
)

// Kind is the coarse error category an entry-point failure falls into.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnknownAssertion
	KindNotAuthorized
	KindState
	KindSignature
	KindInsufficientTip
	KindNotTransferable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnknownAssertion:
		return "unknown_assertion"
	case KindNotAuthorized:
		return "not_authorized"
	case KindState:
		return "state"
	case KindSignature:
		return "signature"
	case KindInsufficientTip:
		return "insufficient_tip"
	case KindNotTransferable:
		return "not_transferable"
	default:
		return "unknown"
	}
}

// KindOf classifies an error returned by a registry entry point.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrEmptyAssertion), errors.Is(err, ErrDuplicateAssertion):
		return KindValidation
	case errors.Is(err, ErrUnknownAssertion):
		return KindUnknownAssertion
	case errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrGatewayRequired):
		return KindNotAuthorized
	case errors.Is(err, ErrAlreadyStopped), errors.Is(err, ErrNotStopped),
		errors.Is(err, ErrAlreadyBlocked), errors.Is(err, ErrNotBlocked),
		errors.Is(err, ErrAssertionStopped), errors.Is(err, ErrAddressBlocked):
		return KindState
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrSignatureExpired):
		return KindSignature
	case errors.Is(err, ErrInsufficientTip):
		return KindInsufficientTip
	case errors.Is(err, ErrNotTransferable):
		return KindNotTransferable
	default:
		return KindUnknown
	}
}
