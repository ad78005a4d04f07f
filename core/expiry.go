package core

import (
	"bytes"
	"sort"
)

// expiryKey uniquely identifies one (subscriber, blob, subscription) entry
// in the expiry index. Including ID alongside (Subscriber, Hash) generalizes
// the original's Map<Address, Hash> per-epoch bucket, which cannot represent
// one subscriber holding two subscriptions against the same blob (or two
// different blobs) expiring in the same epoch.
type expiryKey struct {
	Subscriber Address
	Hash       Hash
	ID         SubscriptionId
}

func expiryKeyLess(a, b expiryKey) bool {
	if c := bytes.Compare(a.Subscriber[:], b.Subscriber[:]); c != 0 {
		return c < 0
	}
	if c := bytes.Compare(a.Hash[:], b.Hash[:]); c != 0 {
		return c < 0
	}
	if a.ID.isDefault != b.ID.isDefault {
		return a.ID.isDefault
	}
	return bytes.Compare(a.ID.key[:], b.ID.key[:]) < 0
}

// ExpiryEntry is one reaped (or range-scanned) expiry index row.
type ExpiryEntry struct {
	Epoch      ChainEpoch
	Subscriber Address
	Hash       Hash
	ID         SubscriptionId
}

// ExpiryIndex is the ordered ChainEpoch -> {subscriber, hash, id} index
// debit_accounts range-scans to reap expired subscriptions in O(reaped)
// time, matching original_source's BTreeMap<ChainEpoch, ...> with a
// stdlib-backed sorted-slice of distinct epochs (no ordered-map/btree
// third-party package appears anywhere in the retrieved pack).
type ExpiryIndex struct {
	byEpoch map[ChainEpoch]map[expiryKey]struct{}
	epochs  []ChainEpoch // sorted ascending
}

func newExpiryIndex() *ExpiryIndex {
	return &ExpiryIndex{byEpoch: make(map[ChainEpoch]map[expiryKey]struct{})}
}

func (x *ExpiryIndex) insertEpoch(e ChainEpoch) {
	i := sort.Search(len(x.epochs), func(i int) bool { return x.epochs[i] >= e })
	x.epochs = append(x.epochs, 0)
	copy(x.epochs[i+1:], x.epochs[i:])
	x.epochs[i] = e
}

func (x *ExpiryIndex) removeEpoch(e ChainEpoch) {
	i := sort.Search(len(x.epochs), func(i int) bool { return x.epochs[i] >= e })
	if i < len(x.epochs) && x.epochs[i] == e {
		x.epochs = append(x.epochs[:i], x.epochs[i+1:]...)
	}
}

// Add records that (subscriber, hash, id) expires at epoch.
func (x *ExpiryIndex) Add(epoch ChainEpoch, subscriber Address, hash Hash, id SubscriptionId) {
	set, ok := x.byEpoch[epoch]
	if !ok {
		set = make(map[expiryKey]struct{})
		x.byEpoch[epoch] = set
		x.insertEpoch(epoch)
	}
	set[expiryKey{subscriber, hash, id}] = struct{}{}
}

// Remove deletes a single (subscriber, hash, id) entry from epoch.
func (x *ExpiryIndex) Remove(epoch ChainEpoch, subscriber Address, hash Hash, id SubscriptionId) {
	set, ok := x.byEpoch[epoch]
	if !ok {
		return
	}
	delete(set, expiryKey{subscriber, hash, id})
	if len(set) == 0 {
		delete(x.byEpoch, epoch)
		x.removeEpoch(epoch)
	}
}

// ReapThrough returns every entry with epoch <= through, in ascending epoch
// order, and within each epoch in ascending (subscriber, hash, id) byte
// order -- the tie-break rule spec.md §4.5 requires for deterministic
// replay across validators.
func (x *ExpiryIndex) ReapThrough(through ChainEpoch) []ExpiryEntry {
	cut := sort.Search(len(x.epochs), func(i int) bool { return x.epochs[i] > through })
	var out []ExpiryEntry
	for _, e := range x.epochs[:cut] {
		keys := make([]expiryKey, 0, len(x.byEpoch[e]))
		for k := range x.byEpoch[e] {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return expiryKeyLess(keys[i], keys[j]) })
		for _, k := range keys {
			out = append(out, ExpiryEntry{Epoch: e, Subscriber: k.Subscriber, Hash: k.Hash, ID: k.ID})
		}
	}
	return out
}

// Len returns the number of distinct epochs currently indexed.
func (x *ExpiryIndex) Len() int {
	return len(x.epochs)
}
