package attest

import (
	"context"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PaymentRail is the external value-transfer mechanism TipOut forwards
// accumulated balance through. The rail's internals (and its failure
// modes) are outside this system; the registry only guarantees its own
// bookkeeping is finalized before the rail is invoked.
type PaymentRail interface {
	Transfer(ctx context.Context, to common.Address, amount *apd.Decimal) error
}

// nopRail is the default rail: it accepts every transfer. Suitable for
// registries whose value movement is settled elsewhere.
type nopRail struct{}

func (nopRail) Transfer(context.Context, common.Address, *apd.Decimal) error { return nil }

// SetTipAmount changes the minimum value required on assertion creation
// and direct deposits. Zero disables the requirement. Callable by the
// owner or the current tip collector.
func (r *Registry) SetTipAmount(ctx context.Context, caller common.Address, amount *apd.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isOwnerOrTipCollector(caller) {
		return errors.Wrap(ErrNotAuthorized, "only the owner or tip collector may set the tip amount")
	}
	if amount == nil {
		amount = apd.New(0, 0)
	}
	if amount.Negative {
		return errors.Wrap(ErrInsufficientTip, "tip amount cannot be negative")
	}

	old := r.tipAmount
	if err := r.persist(ChangeSet{Tip: &TipState{Amount: amount, Balance: r.tipBalance}}); err != nil {
		return err
	}
	r.tipAmount = amount

	r.emit(ctx, r.now(), &NewTipAmount{Old: old, New: amount})
	return nil
}

// Deposit accepts value sent directly to the registry. Like assertion
// creation, the value must cover the configured tip and is retained in
// full.
func (r *Registry) Deposit(ctx context.Context, sender common.Address, value *apd.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value == nil {
		value = apd.New(0, 0)
	}
	if value.Negative {
		return errors.Wrap(ErrInsufficientTip, "deposit cannot be negative")
	}
	if value.Cmp(r.tipAmount) < 0 {
		return errors.Wrapf(ErrInsufficientTip,
			"deposited %s, required %s", value.String(), r.tipAmount.String())
	}

	balance := new(apd.Decimal)
	if _, err := decCtx.Add(balance, r.tipBalance, value); err != nil {
		return errors.Wrap(err, "accumulate tip balance")
	}

	if err := r.persist(ChangeSet{Tip: &TipState{Amount: r.tipAmount, Balance: balance}}); err != nil {
		return err
	}
	r.tipBalance = balance

	r.emit(ctx, r.now(), &TipReceived{Sender: sender, Value: value})
	return nil
}

// TipOut forwards the entire held balance to the tip collector. Callable
// by anyone. The balance is zeroed, and that zeroing persisted, before the
// external rail sees the transfer, so a hostile recipient re-entering the
// registry observes consistent state. A rail failure restores the balance
// and surfaces the error.
func (r *Registry) TipOut(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	amount := r.tipBalance
	now := r.now()

	if amount.Sign() > 0 {
		zero := apd.New(0, 0)
		if err := r.persist(ChangeSet{Tip: &TipState{Amount: r.tipAmount, Balance: zero}}); err != nil {
			return err
		}
		r.tipBalance = zero

		if err := r.rail.Transfer(ctx, r.roles.TipCollector, amount); err != nil {
			r.tipBalance = amount
			if perr := r.persist(ChangeSet{Tip: &TipState{Amount: r.tipAmount, Balance: amount}}); perr != nil {
				r.log.Error("failed to restore tip balance after rail failure",
					zap.Error(perr), zap.String("amount", amount.String()))
			}
			return errors.Wrap(err, "forward tips to collector")
		}
	}

	r.log.Info("tips forwarded",
		zap.String("collector", r.roles.TipCollector.Hex()),
		zap.String("amount", amount.String()))

	r.emit(ctx, now, &TipOut{Collector: r.roles.TipCollector, Amount: amount})
	return nil
}

// TipAmount returns the currently required tip.
func (r *Registry) TipAmount() *apd.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tipAmount
}

// TipBalance returns the currently held balance.
func (r *Registry) TipBalance() *apd.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tipBalance
}
