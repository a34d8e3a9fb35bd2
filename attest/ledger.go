package attest

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TChairman/AttestMe/sigverify"
)

// Attest records a time-bounded attestation by subject to the assertion.
// Preconditions, checked in order with distinct failures: the assertion
// exists, is not stopped, the subject is not blocked, the caller is the
// gateway when one is required, signedAt falls inside the freshness
// window, and the signature over (text, signedAt) recovers to subject.
func (r *Registry) Attest(ctx context.Context, caller common.Address, id common.Hash, subject common.Address, signedAt int64, signature []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}
	if a.Stopped {
		return errors.Wrapf(ErrAssertionStopped, "assertion %s", id.Hex())
	}
	if _, blocked := r.blocklist[subject]; blocked {
		return errors.Wrapf(ErrAddressBlocked, "subject %s", subject.Hex())
	}
	if a.RequiresGateway && caller != a.Gateway {
		return errors.Wrapf(ErrGatewayRequired, "caller %s, gateway %s", caller.Hex(), a.Gateway.Hex())
	}

	now := r.now()
	if err := checkFreshness(signedAt, now.Unix(), a.FreshnessWindow); err != nil {
		return err
	}

	if err := sigverify.Verify(r.domain, a.Text, signedAt, subject, signature); err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}

	return r.writeAttestation(ctx, a, subject, signedAt)
}

// ForceAttest records an attestation without any signature, freshness,
// gateway, stopped, or blocklist checks. Overrider only.
func (r *Registry) ForceAttest(ctx context.Context, caller common.Address, id common.Hash, subject common.Address, signedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOverrider(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the overrider may force an attestation")
	}
	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}
	return r.writeAttestation(ctx, a, subject, signedAt)
}

// writeAttestation overwrites the (assertion, subject) record. A prior
// revocation is cleared: the new record is a fresh attestation.
func (r *Registry) writeAttestation(ctx context.Context, a *Assertion, subject common.Address, signedAt int64) error {
	rec := AttestationRecord{
		AssertionID: a.ID,
		Subject:     subject,
		SignedAt:    signedAt,
		Revoked:     false,
	}
	if err := r.persist(ChangeSet{Attestations: []AttestationRecord{rec}}); err != nil {
		return err
	}
	r.records[attKey{id: a.ID, subject: subject}] = &rec

	r.log.Info("attested",
		zap.String("assertion_id", a.ID.Hex()),
		zap.String("subject", subject.Hex()),
		zap.Int64("signed_at", signedAt))

	r.emit(ctx, r.now(), &Attested{AssertionID: a.ID, Subject: subject, SignedAt: signedAt})
	return nil
}

// Revoke marks the (assertion, subject) record revoked, given a signature
// by subject over the "Revoked: "-prefixed assertion text. Deliberately
// not gated by stopped or blocked status, and no freshness window applies:
// a subject must always be able to walk away. A record is created if none
// exists.
func (r *Registry) Revoke(ctx context.Context, id common.Hash, subject common.Address, signedAt int64, signature []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}

	if err := sigverify.Verify(r.domain, RevocationText(a.Text), signedAt, subject, signature); err != nil {
		return errors.Wrap(ErrInvalidSignature, err.Error())
	}

	return r.writeRevocation(ctx, a, subject)
}

// ForceRevoke marks the record revoked without a signature. Overrider only.
func (r *Registry) ForceRevoke(ctx context.Context, caller common.Address, id common.Hash, subject common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOverrider(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the overrider may force a revocation")
	}
	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}
	return r.writeRevocation(ctx, a, subject)
}

func (r *Registry) writeRevocation(ctx context.Context, a *Assertion, subject common.Address) error {
	key := attKey{id: a.ID, subject: subject}

	rec := AttestationRecord{AssertionID: a.ID, Subject: subject}
	if existing, ok := r.records[key]; ok {
		rec = *existing
	}
	rec.Revoked = true

	if err := r.persist(ChangeSet{Attestations: []AttestationRecord{rec}}); err != nil {
		return err
	}
	r.records[key] = &rec

	r.log.Info("revoked",
		zap.String("assertion_id", a.ID.Hex()),
		zap.String("subject", subject.Hex()))

	r.emit(ctx, r.now(), &Revoked{AssertionID: a.ID, Subject: subject})
	return nil
}

// IsAttested reports whether subject currently holds a valid attestation
// to the assertion: a non-zero record, not revoked, subject not blocked,
// and, for gateway-gated assertions only, the attestation has not aged
// past the expiry window. For ungated assertions staleness is advisory and
// never suppresses the result.
func (r *Registry) IsAttested(id common.Hash, subject common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return false
	}
	rec, ok := r.records[attKey{id: id, subject: subject}]
	if !ok || rec.SignedAt == 0 || rec.Revoked {
		return false
	}
	if _, blocked := r.blocklist[subject]; blocked {
		return false
	}
	if a.RequiresGateway && r.aged(rec.SignedAt, a.ExpiryWindow) {
		return false
	}
	return true
}

// IsExpired reports whether the attestation is older than the expiry
// window. Pure staleness: independent of gating, blocklist, and
// revocation.
func (r *Registry) IsExpired(id common.Hash, subject common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return false
	}
	rec, ok := r.records[attKey{id: id, subject: subject}]
	if !ok || rec.SignedAt == 0 {
		return false
	}
	return r.aged(rec.SignedAt, a.ExpiryWindow)
}

// GetAttestation returns a copy of the ledger record, if any.
func (r *Registry) GetAttestation(id common.Hash, subject common.Address) (AttestationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[attKey{id: id, subject: subject}]
	if !ok {
		return AttestationRecord{}, false
	}
	return *rec, true
}

// IsBlocked reports blocklist membership.
func (r *Registry) IsBlocked(addr common.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, blocked := r.blocklist[addr]
	return blocked
}

// BlockAddress adds addr to the blocklist. Overrider only. Stored
// attestation records are untouched; only IsAttested visibility changes.
func (r *Registry) BlockAddress(ctx context.Context, caller, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOverrider(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the overrider may block addresses")
	}
	if _, blocked := r.blocklist[addr]; blocked {
		return errors.Wrapf(ErrAlreadyBlocked, "address %s", addr.Hex())
	}

	if err := r.persist(ChangeSet{Blocklist: []BlocklistChange{{Address: addr, Blocked: true}}}); err != nil {
		return err
	}
	r.blocklist[addr] = struct{}{}

	r.emit(ctx, r.now(), &Blocked{Address: addr})
	return nil
}

// UnBlockAddress removes addr from the blocklist, restoring prior
// attestation visibility without re-attestation. Overrider only.
func (r *Registry) UnBlockAddress(ctx context.Context, caller, addr common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOverrider(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the overrider may unblock addresses")
	}
	if _, blocked := r.blocklist[addr]; !blocked {
		return errors.Wrapf(ErrNotBlocked, "address %s", addr.Hex())
	}

	if err := r.persist(ChangeSet{Blocklist: []BlocklistChange{{Address: addr, Blocked: false}}}); err != nil {
		return err
	}
	delete(r.blocklist, addr)

	r.emit(ctx, r.now(), &UnBlocked{Address: addr})
	return nil
}

// TransferAttestation always fails: attestation records are badges bound
// to the subject address and cannot move between addresses.
func (r *Registry) TransferAttestation(_ context.Context, _ common.Address, _ common.Hash, _, _ common.Address) error {
	return ErrNotTransferable
}

// ApproveAttestation always fails, for the same reason as
// TransferAttestation.
func (r *Registry) ApproveAttestation(_ context.Context, _ common.Address, _ common.Hash, _ common.Address) error {
	return ErrNotTransferable
}

// checkFreshness enforces now-window <= signedAt <= now. Both future
// timestamps and timestamps older than the window fail the same way.
func checkFreshness(signedAt, now int64, window time.Duration) error {
	if signedAt > now {
		return errors.Wrapf(ErrSignatureExpired, "signed-at %d is in the future (now %d)", signedAt, now)
	}
	if signedAt < now-int64(window/time.Second) {
		return errors.Wrapf(ErrSignatureExpired, "signed-at %d older than freshness window %s", signedAt, window)
	}
	return nil
}

// aged reports whether a timestamp is older than the given window.
func (r *Registry) aged(signedAt int64, window time.Duration) bool {
	return r.now().Unix()-signedAt > int64(window/time.Second)
}
