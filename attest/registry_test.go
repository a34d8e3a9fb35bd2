package attest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TChairman/AttestMe/sigverify"
)

var (
	testOwner     = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testOverrider = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testCollector = common.HexToAddress("0x0000000000000000000000000000000000000003")
	testCreator   = common.HexToAddress("0x0000000000000000000000000000000000000010")
	testDomain    = sigverify.NewDomain(31337, common.HexToAddress("0x00000000000000000000000000000000000000AA"))
)

// fakeClock is a mutable time source registries run on in tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithNowFunc(clock.Now)}, opts...)
	r, err := New(testDomain, testOwner, opts...)
	require.NoError(t, err)
	return r, clock
}

func defaultParams(text string) AddAssertionParams {
	return AddAssertionParams{
		Text:            text,
		FreshnessWindow: time.Hour,
		ExpiryWindow:    30 * 24 * time.Hour,
	}
}

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, _, err := apd.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestNew(t *testing.T) {
	t.Run("ZeroOwnerRejected", func(t *testing.T) {
		_, err := New(testDomain, common.Address{})
		require.Error(t, err)
	})

	t.Run("InitialRoles", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		roles := r.CurrentRoles()
		assert.Equal(t, testOwner, roles.Owner)
		assert.Equal(t, common.Address{}, roles.Overrider)
		assert.Equal(t, common.Address{}, roles.TipCollector)
	})
}

func TestAddAssertion(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		r, clock := newTestRegistry(t)

		id, err := r.AddAssertion(ctx, testCreator, defaultParams("I certify X"))
		require.NoError(t, err)
		assert.Equal(t, ComputeAssertionID("I certify X"), id)

		a, ok := r.GetAssertion(id)
		require.True(t, ok)
		assert.Equal(t, "I certify X", a.Text)
		assert.Equal(t, ComputeRevokeID("I certify X"), a.RevokeID)
		assert.False(t, a.Stopped)
		assert.Equal(t, clock.Now(), a.CreatedAt)

		assert.Equal(t, []common.Hash{id}, r.AssertionIDs())
		assert.Equal(t, clock.Now(), r.LastUpdate())
	})

	t.Run("EmptyText", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.AddAssertion(ctx, testCreator, defaultParams(""))
		require.ErrorIs(t, err, ErrEmptyAssertion)
		assert.Equal(t, KindValidation, KindOf(err))
	})

	t.Run("Duplicate", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.AddAssertion(ctx, testCreator, defaultParams("I certify X"))
		require.NoError(t, err)

		_, err = r.AddAssertion(ctx, testCreator, defaultParams("I certify X"))
		require.ErrorIs(t, err, ErrDuplicateAssertion)
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Len(t, r.AssertionIDs(), 1)
	})

	t.Run("CreationOrderPreserved", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		first, err := r.AddAssertion(ctx, testCreator, defaultParams("claim one"))
		require.NoError(t, err)
		second, err := r.AddAssertion(ctx, testCreator, defaultParams("claim two"))
		require.NoError(t, err)

		assert.Equal(t, []common.Hash{first, second}, r.AssertionIDs())
	})

	t.Run("PermissionlessCreation", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		nobody := common.HexToAddress("0x00000000000000000000000000000000000000FF")
		_, err := r.AddAssertion(ctx, nobody, defaultParams("anyone may register"))
		require.NoError(t, err)
	})
}

func TestRoleManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("TransferOwnership", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		newOwner := common.HexToAddress("0x0000000000000000000000000000000000000099")

		require.NoError(t, r.TransferOwnership(ctx, testOwner, newOwner))
		assert.Equal(t, newOwner, r.CurrentRoles().Owner)

		// The previous owner lost its powers.
		err := r.TransferOwnership(ctx, testOwner, testOwner)
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("TransferByNonOwner", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		err := r.TransferOwnership(ctx, testCreator, testCreator)
		require.ErrorIs(t, err, ErrNotAuthorized)
		assert.Equal(t, KindNotAuthorized, KindOf(err))
	})

	t.Run("RenounceOwnership", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		require.NoError(t, r.RenounceOwnership(ctx, testOwner))
		assert.Equal(t, common.Address{}, r.CurrentRoles().Owner)

		// Owner-gated operations fail permanently, including for the
		// zero address itself.
		err := r.SetOverrider(ctx, testOwner, testOverrider)
		require.ErrorIs(t, err, ErrNotAuthorized)
		err = r.SetOverrider(ctx, common.Address{}, testOverrider)
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("SetOverriderBootstrap", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		// Before the first set, only the owner qualifies.
		err := r.SetOverrider(ctx, testOverrider, testOverrider)
		require.ErrorIs(t, err, ErrNotAuthorized)

		require.NoError(t, r.SetOverrider(ctx, testOwner, testOverrider))
		assert.Equal(t, testOverrider, r.CurrentRoles().Overrider)

		// The overrider can now replace itself.
		next := common.HexToAddress("0x0000000000000000000000000000000000000042")
		require.NoError(t, r.SetOverrider(ctx, testOverrider, next))
		assert.Equal(t, next, r.CurrentRoles().Overrider)
	})

	t.Run("OverriderCannotBeCleared", func(t *testing.T) {
		r, _ := newTestRegistry(t)
		require.NoError(t, r.SetOverrider(ctx, testOwner, testOverrider))

		err := r.SetOverrider(ctx, testOwner, common.Address{})
		require.ErrorIs(t, err, ErrNotAuthorized)
		assert.Equal(t, testOverrider, r.CurrentRoles().Overrider)
	})

	t.Run("SetTipCollector", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		err := r.SetTipCollector(ctx, testCollector, testCollector)
		require.ErrorIs(t, err, ErrNotAuthorized)

		require.NoError(t, r.SetTipCollector(ctx, testOwner, testCollector))

		next := common.HexToAddress("0x0000000000000000000000000000000000000043")
		require.NoError(t, r.SetTipCollector(ctx, testCollector, next))
		assert.Equal(t, next, r.CurrentRoles().TipCollector)
	})
}

func TestControllerAndGateway(t *testing.T) {
	ctx := context.Background()
	controller := common.HexToAddress("0x0000000000000000000000000000000000000020")
	gateway := common.HexToAddress("0x0000000000000000000000000000000000000021")

	setup := func(t *testing.T) (*Registry, common.Hash) {
		r, _ := newTestRegistry(t)
		p := defaultParams("controlled claim")
		p.Controller = controller
		id, err := r.AddAssertion(ctx, testCreator, p)
		require.NoError(t, err)
		return r, id
	}

	t.Run("ControllerMaySetGateway", func(t *testing.T) {
		r, id := setup(t)

		require.NoError(t, r.SetGateway(ctx, controller, id, gateway))
		a, _ := r.GetAssertion(id)
		assert.Equal(t, gateway, a.Gateway)
	})

	t.Run("OwnerMaySetController", func(t *testing.T) {
		r, id := setup(t)
		next := common.HexToAddress("0x0000000000000000000000000000000000000022")

		require.NoError(t, r.SetController(ctx, testOwner, id, next))
		a, _ := r.GetAssertion(id)
		assert.Equal(t, next, a.Controller)

		// The old controller is out.
		err := r.SetController(ctx, controller, id, controller)
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("StrangerRejected", func(t *testing.T) {
		r, id := setup(t)

		err := r.SetGateway(ctx, testCreator, id, gateway)
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("UnknownAssertion", func(t *testing.T) {
		r, _ := setup(t)

		err := r.SetController(ctx, testOwner, ComputeAssertionID("never registered"), controller)
		require.ErrorIs(t, err, ErrUnknownAssertion)
		assert.Equal(t, KindUnknownAssertion, KindOf(err))
	})
}

// recordingRail captures transfers, optionally failing them.
type recordingRail struct {
	mu        sync.Mutex
	transfers []railTransfer
	fail      error
}

type railTransfer struct {
	to     common.Address
	amount *apd.Decimal
}

func (r *recordingRail) Transfer(_ context.Context, to common.Address, amount *apd.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.transfers = append(r.transfers, railTransfer{to: to, amount: amount})
	return nil
}

func TestTips(t *testing.T) {
	ctx := context.Background()

	t.Run("SetTipAmountAuthorization", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		err := r.SetTipAmount(ctx, testCreator, dec(t, "5"))
		require.ErrorIs(t, err, ErrNotAuthorized)

		require.NoError(t, r.SetTipAmount(ctx, testOwner, dec(t, "5")))
		assert.Equal(t, "5", r.TipAmount().String())

		require.NoError(t, r.SetTipCollector(ctx, testOwner, testCollector))
		require.NoError(t, r.SetTipAmount(ctx, testCollector, dec(t, "7")))
		assert.Equal(t, "7", r.TipAmount().String())
	})

	t.Run("InsufficientTipOnCreation", func(t *testing.T) {
		r, _ := newTestRegistry(t, WithTipAmount(dec(t, "10")))

		p := defaultParams("paid claim")
		p.AttachedValue = dec(t, "9.99")
		_, err := r.AddAssertion(ctx, testCreator, p)
		require.ErrorIs(t, err, ErrInsufficientTip)
		assert.Empty(t, r.AssertionIDs())
	})

	t.Run("ExcessRetained", func(t *testing.T) {
		r, _ := newTestRegistry(t, WithTipAmount(dec(t, "10")))

		p := defaultParams("paid claim")
		p.AttachedValue = dec(t, "25")
		_, err := r.AddAssertion(ctx, testCreator, p)
		require.NoError(t, err)
		assert.Equal(t, "25", r.TipBalance().String())
	})

	t.Run("ZeroTipMeansFree", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		_, err := r.AddAssertion(ctx, testCreator, defaultParams("free claim"))
		require.NoError(t, err)
		assert.Equal(t, "0", r.TipBalance().String())
	})

	t.Run("DirectDeposit", func(t *testing.T) {
		r, _ := newTestRegistry(t, WithTipAmount(dec(t, "10")))

		err := r.Deposit(ctx, testCreator, dec(t, "3"))
		require.ErrorIs(t, err, ErrInsufficientTip)

		require.NoError(t, r.Deposit(ctx, testCreator, dec(t, "12")))
		assert.Equal(t, "12", r.TipBalance().String())
	})

	t.Run("TipOutForwardsEverything", func(t *testing.T) {
		rail := &recordingRail{}
		r, _ := newTestRegistry(t, WithPaymentRail(rail))
		require.NoError(t, r.SetTipCollector(ctx, testOwner, testCollector))
		require.NoError(t, r.Deposit(ctx, testCreator, dec(t, "12")))
		require.NoError(t, r.Deposit(ctx, testCreator, dec(t, "8")))

		require.NoError(t, r.TipOut(ctx))
		assert.Equal(t, "0", r.TipBalance().String())
		require.Len(t, rail.transfers, 1)
		assert.Equal(t, testCollector, rail.transfers[0].to)
		assert.Equal(t, "20", rail.transfers[0].amount.String())
	})

	t.Run("TipOutWithZeroBalance", func(t *testing.T) {
		rail := &recordingRail{}
		r, _ := newTestRegistry(t, WithPaymentRail(rail))

		require.NoError(t, r.TipOut(ctx))
		assert.Empty(t, rail.transfers)
	})

	t.Run("RailFailureRestoresBalance", func(t *testing.T) {
		rail := &recordingRail{fail: assert.AnError}
		r, _ := newTestRegistry(t, WithPaymentRail(rail))
		require.NoError(t, r.Deposit(ctx, testCreator, dec(t, "12")))

		err := r.TipOut(ctx)
		require.Error(t, err)
		assert.Equal(t, "12", r.TipBalance().String())
	})

	t.Run("NegativeValuesRejected", func(t *testing.T) {
		r, _ := newTestRegistry(t)

		err := r.Deposit(ctx, testCreator, dec(t, "-1"))
		require.ErrorIs(t, err, ErrInsufficientTip)

		err = r.SetTipAmount(ctx, testOwner, dec(t, "-1"))
		require.ErrorIs(t, err, ErrInsufficientTip)
	})
}

func TestNotTransferable(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t)

	id, err := r.AddAssertion(ctx, testCreator, defaultParams("badge claim"))
	require.NoError(t, err)

	err = r.TransferAttestation(ctx, testOwner, id, testCreator, testCollector)
	require.ErrorIs(t, err, ErrNotTransferable)
	assert.Equal(t, KindNotTransferable, KindOf(err))

	err = r.ApproveAttestation(ctx, testOwner, id, testCollector)
	require.ErrorIs(t, err, ErrNotTransferable)
}
