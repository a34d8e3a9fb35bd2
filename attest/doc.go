// Package attest implements the assertion/attestation registry.
//
// Any party registers an assertion (a reusable text claim); addresses
// attest to it by signing the text together with a timestamp under the
// registry's domain. The registry tracks, per (assertion, subject) pair,
// whether the attestation is current, expired, or revoked.
//
// Key components:
//   - Registry: the state machine; every exported operation is atomic
//   - Assertion / AttestationRecord: the stored records
//   - Roles: owner, overrider, and tip collector with layered authorization
//   - Event / Sink: typed notifications for every observable state change
//   - Store: pluggable persistence applied before in-memory mutation
//
// Signature construction and recovery live in package sigverify; the
// registry only decides which message text a signature must cover.
package attest
