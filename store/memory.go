// Package store provides persistence backends for the attestation
// registry: an in-memory store for tests and ephemeral registries, and a
// pebble-backed store for registries that survive restarts.
//
// Both implementations apply a ChangeSet atomically and keep assertion
// creation order, so a reloaded registry observes the same append-only
// history it wrote.
package store

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/TChairman/AttestMe/attest"
)

// Memory is an in-memory attest.Store.
type Memory struct {
	mu           sync.Mutex
	assertions   map[common.Hash]attest.Assertion
	order        []common.Hash
	attestations map[string]attest.AttestationRecord
	roles        *attest.Roles
	blocked      map[common.Address]struct{}
	tip          *attest.TipState
	lastUpdate   time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		assertions:   make(map[common.Hash]attest.Assertion),
		attestations: make(map[string]attest.AttestationRecord),
		blocked:      make(map[common.Address]struct{}),
	}
}

func attestationKey(rec attest.AttestationRecord) string {
	return rec.AssertionID.Hex() + "/" + rec.Subject.Hex()
}

func (m *Memory) Apply(cs attest.ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range cs.Created {
		if _, exists := m.assertions[a.ID]; !exists {
			m.order = append(m.order, a.ID)
		}
		m.assertions[a.ID] = a
	}
	for _, a := range cs.Updated {
		m.assertions[a.ID] = a
	}
	for _, rec := range cs.Attestations {
		m.attestations[attestationKey(rec)] = rec
	}
	if cs.Roles != nil {
		roles := *cs.Roles
		m.roles = &roles
	}
	for _, change := range cs.Blocklist {
		if change.Blocked {
			m.blocked[change.Address] = struct{}{}
		} else {
			delete(m.blocked, change.Address)
		}
	}
	if cs.Tip != nil {
		tip := *cs.Tip
		m.tip = &tip
	}
	if cs.LastUpdate != nil {
		m.lastUpdate = *cs.LastUpdate
	}
	return nil
}

func (m *Memory) Load() (*attest.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &attest.Snapshot{LastUpdate: m.lastUpdate}
	for _, id := range m.order {
		snap.Assertions = append(snap.Assertions, m.assertions[id])
	}
	for _, rec := range m.attestations {
		snap.Attestations = append(snap.Attestations, rec)
	}
	if m.roles != nil {
		roles := *m.roles
		snap.Roles = &roles
	}
	for addr := range m.blocked {
		snap.Blocked = append(snap.Blocked, addr)
	}
	if m.tip != nil {
		tip := *m.tip
		snap.Tip = &tip
	}
	return snap, nil
}

func (m *Memory) Close() error { return nil }
