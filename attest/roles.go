package attest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Authorization predicates. The zero address is never authorized for
// anything, so a renounced owner slot permanently fails owner checks.

func (r *Registry) isOwner(caller common.Address) bool {
	return !zeroAddr(caller) && caller == r.roles.Owner
}

func (r *Registry) isOverrider(caller common.Address) bool {
	return !zeroAddr(caller) && caller == r.roles.Overrider
}

func (r *Registry) isTipCollector(caller common.Address) bool {
	return !zeroAddr(caller) && caller == r.roles.TipCollector
}

func (r *Registry) isOwnerOrOverrider(caller common.Address) bool {
	return r.isOwner(caller) || r.isOverrider(caller)
}

func (r *Registry) isOwnerOrTipCollector(caller common.Address) bool {
	return r.isOwner(caller) || r.isTipCollector(caller)
}

func (r *Registry) isControllerOrOwner(a *Assertion, caller common.Address) bool {
	return r.isOwner(caller) || (!zeroAddr(caller) && caller == a.Controller)
}

func (r *Registry) isControllerOrOverrider(a *Assertion, caller common.Address) bool {
	return r.isOverrider(caller) || (!zeroAddr(caller) && caller == a.Controller)
}

// TransferOwnership hands the owner role to newOwner. Owner only. Passing
// the zero address is equivalent to RenounceOwnership.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	return r.setOwner(ctx, caller, newOwner)
}

// RenounceOwnership clears the owner slot. Every owner-gated operation
// fails permanently afterwards. Owner only.
func (r *Registry) RenounceOwnership(ctx context.Context, caller common.Address) error {
	return r.setOwner(ctx, caller, common.Address{})
}

func (r *Registry) setOwner(ctx context.Context, caller, newOwner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOwner(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the owner may change ownership")
	}

	old := r.roles.Owner
	updated := r.roles
	updated.Owner = newOwner
	if err := r.persist(ChangeSet{Roles: &updated}); err != nil {
		return err
	}
	r.roles = updated

	r.emit(ctx, r.now(), &OwnershipTransferred{Old: old, New: newOwner})
	return nil
}

// SetOverrider replaces the overrider. Callable by the owner or the current
// overrider; while the overrider slot is unset only the owner qualifies.
func (r *Registry) SetOverrider(ctx context.Context, caller, newOverrider common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOwnerOrOverrider(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the owner or overrider may set the overrider")
	}
	if zeroAddr(newOverrider) {
		return errors.Wrap(ErrNotAuthorized, "overrider cannot be cleared, only replaced")
	}

	old := r.roles.Overrider
	updated := r.roles
	updated.Overrider = newOverrider
	if err := r.persist(ChangeSet{Roles: &updated}); err != nil {
		return err
	}
	r.roles = updated

	r.emit(ctx, r.now(), &NewOverrider{Old: old, New: newOverrider})
	return nil
}

// SetTipCollector replaces the tip collector. Callable by the owner or the
// current tip collector; while unset only the owner qualifies.
func (r *Registry) SetTipCollector(ctx context.Context, caller, newCollector common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOwnerOrTipCollector(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the owner or tip collector may set the tip collector")
	}
	if zeroAddr(newCollector) {
		return errors.Wrap(ErrNotAuthorized, "tip collector cannot be cleared, only replaced")
	}

	old := r.roles.TipCollector
	updated := r.roles
	updated.TipCollector = newCollector
	if err := r.persist(ChangeSet{Roles: &updated}); err != nil {
		return err
	}
	r.roles = updated

	r.emit(ctx, r.now(), &NewTipCollector{Old: old, New: newCollector})
	return nil
}
