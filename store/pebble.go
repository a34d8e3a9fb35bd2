package store

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/TChairman/AttestMe/attest"
)

// Key layout. The layout is additive-only: record values are JSON whose
// fields are only ever appended, and new record kinds get new prefixes,
// so historical data stays addressable across upgrades.
//
//	a/<32-byte id>              assertion record
//	o/<8-byte big-endian seq>   assertion id, creation order
//	x/<32-byte id><20-byte sub> attestation record
//	b/<20-byte addr>            blocklist membership marker
//	r/roles                     role addresses
//	t/state                     tip amount and balance
//	m/last_update               timestamp of the latest registration
var (
	prefixAssertion   = []byte("a/")
	prefixOrder       = []byte("o/")
	prefixAttestation = []byte("x/")
	prefixBlocked     = []byte("b/")
	keyRoles          = []byte("r/roles")
	keyTip            = []byte("t/state")
	keyLastUpdate     = []byte("m/last_update")
)

// Pebble is a pebble-backed attest.Store.
type Pebble struct {
	db      *pebble.DB
	nextSeq uint64
}

// OpenPebble opens (or creates) a store at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open pebble store at %s", path)
	}

	p := &Pebble{db: db}
	if err := p.loadNextSeq(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pebble) loadNextSeq() error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixOrder,
		UpperBound: upperBound(prefixOrder),
	})
	if err != nil {
		return errors.Wrap(err, "iterate order keys")
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		p.nextSeq = binary.BigEndian.Uint64(iter.Key()[len(prefixOrder):]) + 1
	}
	return nil
}

func (p *Pebble) Apply(cs attest.ChangeSet) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	seq := p.nextSeq
	for _, a := range cs.Created {
		if err := setJSON(batch, assertionKey(a.ID), a); err != nil {
			return err
		}
		orderKey := make([]byte, len(prefixOrder)+8)
		copy(orderKey, prefixOrder)
		binary.BigEndian.PutUint64(orderKey[len(prefixOrder):], seq)
		if err := batch.Set(orderKey, a.ID.Bytes(), nil); err != nil {
			return errors.Wrap(err, "set order key")
		}
		seq++
	}
	for _, a := range cs.Updated {
		if err := setJSON(batch, assertionKey(a.ID), a); err != nil {
			return err
		}
	}
	for _, rec := range cs.Attestations {
		key := append(append([]byte{}, prefixAttestation...), rec.AssertionID.Bytes()...)
		key = append(key, rec.Subject.Bytes()...)
		if err := setJSON(batch, key, rec); err != nil {
			return err
		}
	}
	if cs.Roles != nil {
		if err := setJSON(batch, keyRoles, cs.Roles); err != nil {
			return err
		}
	}
	for _, change := range cs.Blocklist {
		key := append(append([]byte{}, prefixBlocked...), change.Address.Bytes()...)
		if change.Blocked {
			if err := batch.Set(key, []byte{1}, nil); err != nil {
				return errors.Wrap(err, "set blocklist key")
			}
		} else if err := batch.Delete(key, nil); err != nil {
			return errors.Wrap(err, "delete blocklist key")
		}
	}
	if cs.Tip != nil {
		if err := setJSON(batch, keyTip, cs.Tip); err != nil {
			return err
		}
	}
	if cs.LastUpdate != nil {
		if err := setJSON(batch, keyLastUpdate, cs.LastUpdate); err != nil {
			return err
		}
	}

	if err := p.db.Apply(batch, pebble.Sync); err != nil {
		return errors.Wrap(err, "apply change batch")
	}
	p.nextSeq = seq
	return nil
}

func (p *Pebble) Load() (*attest.Snapshot, error) {
	snap := &attest.Snapshot{}

	// Creation order first, then resolve each id to its record.
	ids, err := p.loadOrder()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		var a attest.Assertion
		ok, err := p.getJSON(assertionKey(id), &a)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Errorf("order entry %s has no assertion record", id.Hex())
		}
		snap.Assertions = append(snap.Assertions, a)
	}

	if err := p.iterate(prefixAttestation, func(_, value []byte) error {
		var rec attest.AttestationRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return errors.Wrap(err, "decode attestation record")
		}
		snap.Attestations = append(snap.Attestations, rec)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.iterate(prefixBlocked, func(key, _ []byte) error {
		snap.Blocked = append(snap.Blocked, common.BytesToAddress(key[len(prefixBlocked):]))
		return nil
	}); err != nil {
		return nil, err
	}

	var roles attest.Roles
	ok, err := p.getJSON(keyRoles, &roles)
	if err != nil {
		return nil, err
	}
	if ok {
		snap.Roles = &roles
	}

	var tip attest.TipState
	ok, err = p.getJSON(keyTip, &tip)
	if err != nil {
		return nil, err
	}
	if ok {
		snap.Tip = &tip
	}

	var lastUpdate time.Time
	if _, err := p.getJSON(keyLastUpdate, &lastUpdate); err != nil {
		return nil, err
	}
	snap.LastUpdate = lastUpdate

	return snap, nil
}

func (p *Pebble) Close() error {
	return p.db.Close()
}

func (p *Pebble) loadOrder() ([]common.Hash, error) {
	var ids []common.Hash
	err := p.iterate(prefixOrder, func(_, value []byte) error {
		ids = append(ids, common.BytesToHash(value))
		return nil
	})
	return ids, err
}

func (p *Pebble) iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return errors.Wrapf(err, "iterate %q keys", prefix)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iteration")
}

func (p *Pebble) getJSON(key []byte, out any) (bool, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %q", key)
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return false, errors.Wrapf(err, "decode %q", key)
	}
	return true, nil
}

func assertionKey(id common.Hash) []byte {
	return append(append([]byte{}, prefixAssertion...), id.Bytes()...)
}

func setJSON(batch *pebble.Batch, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %q", key)
	}
	return errors.Wrapf(batch.Set(key, raw, nil), "set %q", key)
}

// upperBound returns the smallest key greater than every key with the
// given prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
