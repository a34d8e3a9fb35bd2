package attest

import (
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TChairman/AttestMe/sigverify"
)

// decCtx is the decimal context for tip arithmetic. 38 digits covers any
// realistic value amount with exact integer addition.
var decCtx = apd.BaseContext.WithPrecision(38)

type attKey struct {
	id      common.Hash
	subject common.Address
}

// Registry is the attestation state machine: assertions, per-subject
// attestation records, the role hierarchy, the blocklist, and tip
// accounting. Every exported operation is atomic; a precondition failure
// leaves all state exactly as before the call.
//
// A single mutex serializes all operations, matching the strictly
// serialized execution history the semantics assume.
type Registry struct {
	mu  sync.Mutex
	log *zap.Logger

	domain sigverify.Domain
	now    func() time.Time

	roles      Roles
	assertions map[common.Hash]*Assertion
	order      []common.Hash
	lastUpdate time.Time

	records   map[attKey]*AttestationRecord
	blocklist map[common.Address]struct{}

	tipAmount  *apd.Decimal
	tipBalance *apd.Decimal
	rail       PaymentRail

	store Store
	sinks []Sink
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithLogger sets the registry logger. Defaults to zap.NewNop.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithStore attaches a persistence backend. Existing state in the store is
// loaded during New and takes precedence over the owner argument.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithPaymentRail sets the external transfer mechanism used by TipOut.
func WithPaymentRail(rail PaymentRail) Option {
	return func(r *Registry) { r.rail = rail }
}

// WithSinks registers event sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Registry) { r.sinks = append(r.sinks, sinks...) }
}

// WithNowFunc overrides the clock. Intended for tests and for hosts that
// supply their own notion of current time.
func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithTipAmount sets the initial required tip. Ignored when a store
// snapshot already carries a tip state.
func WithTipAmount(amount *apd.Decimal) Option {
	return func(r *Registry) { r.tipAmount = amount }
}

// New creates a registry owned by owner, scoped to the given signing
// domain. The owner must be a non-zero address.
func New(domain sigverify.Domain, owner common.Address, opts ...Option) (*Registry, error) {
	if owner == (common.Address{}) {
		return nil, errors.New("owner address cannot be zero")
	}

	r := &Registry{
		log:        zap.NewNop(),
		domain:     domain,
		now:        time.Now,
		roles:      Roles{Owner: owner},
		assertions: make(map[common.Hash]*Assertion),
		records:    make(map[attKey]*AttestationRecord),
		blocklist:  make(map[common.Address]struct{}),
		tipAmount:  apd.New(0, 0),
		tipBalance: apd.New(0, 0),
		rail:       nopRail{},
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.store != nil {
		if err := r.restore(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// restore loads persisted state, or seeds the store on first use.
func (r *Registry) restore() error {
	snap, err := r.store.Load()
	if err != nil {
		return errors.Wrap(err, "load registry snapshot")
	}

	if snap == nil || snap.Roles == nil {
		// Fresh store: persist the initial roles and tip state.
		roles := r.roles
		return errors.Wrap(r.store.Apply(ChangeSet{
			Roles: &roles,
			Tip:   &TipState{Amount: r.tipAmount, Balance: r.tipBalance},
		}), "seed registry store")
	}

	r.roles = *snap.Roles
	for i := range snap.Assertions {
		a := snap.Assertions[i]
		r.assertions[a.ID] = &a
		r.order = append(r.order, a.ID)
	}
	for i := range snap.Attestations {
		rec := snap.Attestations[i]
		r.records[attKey{id: rec.AssertionID, subject: rec.Subject}] = &rec
	}
	for _, addr := range snap.Blocked {
		r.blocklist[addr] = struct{}{}
	}
	if snap.Tip != nil {
		if snap.Tip.Amount != nil {
			r.tipAmount = snap.Tip.Amount
		}
		if snap.Tip.Balance != nil {
			r.tipBalance = snap.Tip.Balance
		}
	}
	r.lastUpdate = snap.LastUpdate
	return nil
}

// persist applies a change set to the store, if one is attached. Called
// before the in-memory mutation so a storage failure aborts the operation
// with zero state change.
func (r *Registry) persist(cs ChangeSet) error {
	if r.store == nil || cs.Empty() {
		return nil
	}
	return errors.Wrap(r.store.Apply(cs), "persist registry change")
}

// CurrentRoles returns the current role addresses.
func (r *Registry) CurrentRoles() Roles {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roles
}

// Domain returns the signing domain this registry verifies against.
func (r *Registry) Domain() sigverify.Domain {
	return r.domain
}

func zeroAddr(a common.Address) bool {
	return a == (common.Address{})
}
