package attest

import (
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
)

// TipState is the persisted tip configuration and accumulated balance.
type TipState struct {
	Amount  *apd.Decimal `json:"amount"`
	Balance *apd.Decimal `json:"balance"`
}

// BlocklistChange records one blocklist membership toggle.
type BlocklistChange struct {
	Address common.Address `json:"address"`
	Blocked bool           `json:"blocked"`
}

// ChangeSet is the full set of state changes produced by one registry
// operation. A Store must apply a ChangeSet atomically: either every change
// lands or none does.
type ChangeSet struct {
	Created      []Assertion
	Updated      []Assertion
	Attestations []AttestationRecord
	Roles        *Roles
	Blocklist    []BlocklistChange
	Tip          *TipState
	LastUpdate   *time.Time
}

// Empty reports whether the change set carries no changes.
func (cs ChangeSet) Empty() bool {
	return len(cs.Created) == 0 && len(cs.Updated) == 0 && len(cs.Attestations) == 0 &&
		cs.Roles == nil && len(cs.Blocklist) == 0 && cs.Tip == nil && cs.LastUpdate == nil
}

// Snapshot is the complete persisted registry state, as loaded at startup.
// Assertions are in creation order. A nil Roles marks a store that has
// never been written.
type Snapshot struct {
	Assertions   []Assertion
	Attestations []AttestationRecord
	Roles        *Roles
	Blocked      []common.Address
	Tip          *TipState
	LastUpdate   time.Time
}

// Store persists registry state across restarts. The key layout must stay
// additive-only: new record fields are appended, never reordered or
// removed, so historical records stay addressable by their ids.
type Store interface {
	Apply(cs ChangeSet) error
	Load() (*Snapshot, error)
	Close() error
}
