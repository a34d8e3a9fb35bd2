package attest

import (
	"context"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AddAssertionParams carries everything needed to register an assertion.
type AddAssertionParams struct {
	Text            string
	FreshnessWindow time.Duration
	ExpiryWindow    time.Duration
	RequiresGateway bool
	Gateway         common.Address
	Controller      common.Address

	// AttachedValue is the value sent along with the registration. Nil
	// means zero.
	AttachedValue *apd.Decimal
}

// AddAssertion registers a new assertion. Creation is permissionless, but
// the attached value must cover the configured tip. The full attached
// value, including any excess over the tip, is retained in the collector
// balance.
func (r *Registry) AddAssertion(ctx context.Context, caller common.Address, p AddAssertionParams) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Text == "" {
		return common.Hash{}, ErrEmptyAssertion
	}

	id := ComputeAssertionID(p.Text)
	if _, exists := r.assertions[id]; exists {
		return common.Hash{}, errors.Wrapf(ErrDuplicateAssertion, "assertion %s", id.Hex())
	}

	value := p.AttachedValue
	if value == nil {
		value = apd.New(0, 0)
	}
	if value.Negative {
		return common.Hash{}, errors.Wrap(ErrInsufficientTip, "attached value cannot be negative")
	}
	if value.Cmp(r.tipAmount) < 0 {
		return common.Hash{}, errors.Wrapf(ErrInsufficientTip,
			"attached %s, required %s", value.String(), r.tipAmount.String())
	}

	now := r.now()
	a := Assertion{
		ID:              id,
		RevokeID:        ComputeRevokeID(p.Text),
		Text:            p.Text,
		FreshnessWindow: p.FreshnessWindow,
		ExpiryWindow:    p.ExpiryWindow,
		RequiresGateway: p.RequiresGateway,
		Gateway:         p.Gateway,
		Controller:      p.Controller,
		CreatedAt:       now,
	}

	balance := new(apd.Decimal)
	if _, err := decCtx.Add(balance, r.tipBalance, value); err != nil {
		return common.Hash{}, errors.Wrap(err, "accumulate tip balance")
	}

	if err := r.persist(ChangeSet{
		Created:    []Assertion{a},
		Tip:        &TipState{Amount: r.tipAmount, Balance: balance},
		LastUpdate: &now,
	}); err != nil {
		return common.Hash{}, err
	}

	r.assertions[id] = &a
	r.order = append(r.order, id)
	r.lastUpdate = now
	r.tipBalance = balance

	r.log.Info("assertion added",
		zap.String("assertion_id", id.Hex()),
		zap.String("creator", caller.Hex()))

	events := []Event{&AssertionAdded{Assertion: a, Creator: caller, AttachedValue: value}}
	if value.Sign() > 0 {
		events = append(events, &TipReceived{Sender: caller, Value: value})
	}
	r.emit(ctx, now, events...)
	return id, nil
}

// SetController reassigns an assertion's controller. Callable by the
// current controller or the owner.
func (r *Registry) SetController(ctx context.Context, caller common.Address, id common.Hash, newController common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}
	if !r.isControllerOrOwner(a, caller) {
		return errors.Wrap(ErrNotAuthorized, "only the controller or owner may set the controller")
	}

	old := a.Controller
	updated := *a
	updated.Controller = newController
	if err := r.persist(ChangeSet{Updated: []Assertion{updated}}); err != nil {
		return err
	}
	*a = updated

	r.emit(ctx, r.now(), &NewController{AssertionID: id, Old: old, New: newController})
	return nil
}

// SetGateway reassigns an assertion's gateway. Callable by the current
// controller or the owner.
func (r *Registry) SetGateway(ctx context.Context, caller common.Address, id common.Hash, newGateway common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return errors.Wrapf(ErrUnknownAssertion, "assertion %s", id.Hex())
	}
	if !r.isControllerOrOwner(a, caller) {
		return errors.Wrap(ErrNotAuthorized, "only the controller or owner may set the gateway")
	}

	old := a.Gateway
	updated := *a
	updated.Gateway = newGateway
	if err := r.persist(ChangeSet{Updated: []Assertion{updated}}); err != nil {
		return err
	}
	*a = updated

	r.emit(ctx, r.now(), &NewGateway{AssertionID: id, Old: old, New: newGateway})
	return nil
}

// StopAssertion blocks new attestations to the assertion. Revocations stay
// possible. Callable by the controller or the overrider. Unknown and
// already-stopped ids fail identically.
func (r *Registry) StopAssertion(ctx context.Context, caller common.Address, id common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok || a.Stopped {
		return errors.Wrapf(ErrAlreadyStopped, "assertion %s", id.Hex())
	}
	if !r.isControllerOrOverrider(a, caller) {
		return errors.Wrap(ErrNotAuthorized, "only the controller or overrider may stop an assertion")
	}

	updated := *a
	updated.Stopped = true
	if err := r.persist(ChangeSet{Updated: []Assertion{updated}}); err != nil {
		return err
	}
	*a = updated

	r.emit(ctx, r.now(), &AssertionStopped{AssertionID: id})
	return nil
}

// UnStopAssertion lifts a stop. Callable by the controller or the
// overrider.
func (r *Registry) UnStopAssertion(ctx context.Context, caller common.Address, id common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok || !a.Stopped {
		return errors.Wrapf(ErrNotStopped, "assertion %s", id.Hex())
	}
	if !r.isControllerOrOverrider(a, caller) {
		return errors.Wrap(ErrNotAuthorized, "only the controller or overrider may unstop an assertion")
	}

	updated := *a
	updated.Stopped = false
	if err := r.persist(ChangeSet{Updated: []Assertion{updated}}); err != nil {
		return err
	}
	*a = updated

	r.emit(ctx, r.now(), &AssertionUnStopped{AssertionID: id})
	return nil
}

// GetAssertion returns a copy of the assertion record.
func (r *Registry) GetAssertion(id common.Hash) (Assertion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	if !ok {
		return Assertion{}, false
	}
	return *a, true
}

// AssertionIDs returns every registered assertion id in creation order.
func (r *Registry) AssertionIDs() []common.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]common.Hash, len(r.order))
	copy(out, r.order)
	return out
}

// LastUpdate returns the time of the most recent assertion registration.
func (r *Registry) LastUpdate() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastUpdate
}

// IsStopped reports whether the assertion is currently stopped. Unknown
// assertions report false.
func (r *Registry) IsStopped(id common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assertions[id]
	return ok && a.Stopped
}
