package core

import "math/big"

// DefaultMinTTL is the minimum TTL (in epochs) NewState gives State.MinTTL,
// which add_blob enforces; 3600 epochs at one epoch per second is one hour,
// matching the original actor's constant.
const DefaultMinTTL ChainEpoch = 3600

// DefaultTTL is used by add_blob when the caller omits ttl entirely.
const DefaultTTL ChainEpoch = DefaultMinTTL

// State is the subnet-wide Blob Credit & Subscription Engine state: the
// single aggregate every transition in transitions.go mutates. It holds no
// wall-clock or randomness; every field is a pure function of the sequence
// of transitions applied to it.
type State struct {
	CapacityFree *big.Int
	CapacityUsed *big.Int

	CreditSold      *big.Int
	CreditCommitted *big.Int
	CreditDebited   *big.Int
	CreditDebitRate uint64

	MinTTL     ChainEpoch
	DefaultTTL ChainEpoch

	Accounts     map[Address]*Account
	Blobs        map[Hash]*Blob
	Expiries     *ExpiryIndex
	Pending      *BlobQueue
	Added        *BlobQueue
	ReadRequests *ReadRequestIndex
}

// NewState constructs the genesis state: capacity bytes of total capacity,
// a fixed credit-per-atto-token rate, and default TTL bounds.
func NewState(capacity uint64, creditDebitRate uint64) *State {
	return &State{
		CapacityFree:    new(big.Int).SetUint64(capacity),
		CapacityUsed:    BigZero(),
		CreditSold:      BigZero(),
		CreditCommitted: BigZero(),
		CreditDebited:   BigZero(),
		CreditDebitRate: creditDebitRate,
		MinTTL:          DefaultMinTTL,
		DefaultTTL:      DefaultTTL,
		Accounts:        make(map[Address]*Account),
		Blobs:           make(map[Hash]*Blob),
		Expiries:        newExpiryIndex(),
		Pending:         newBlobQueue(),
		Added:           newBlobQueue(),
		ReadRequests:    newReadRequestIndex(),
	}
}

// Stats is the GetStats return value, extended per SPEC_FULL.md §C.2 with
// the byte counters the original's GetStatsReturn carries (bytes_resolving,
// bytes_added) that spec.md's opaque reference to GetStatsReturn omitted.
type Stats struct {
	CapacityFree    *big.Int
	CapacityUsed    *big.Int
	CreditSold      *big.Int
	CreditCommitted *big.Int
	CreditDebited   *big.Int
	CreditDebitRate uint64

	NumAccounts uint64

	NumBlobs       uint64
	NumResolving   uint64
	BytesResolving uint64
	NumAdded       uint64
	BytesAdded     uint64
}

// GetStats computes a point-in-time snapshot of subnet-wide counters.
func (s *State) GetStats() Stats {
	return Stats{
		CapacityFree:    cloneBig(s.CapacityFree),
		CapacityUsed:    cloneBig(s.CapacityUsed),
		CreditSold:      cloneBig(s.CreditSold),
		CreditCommitted: cloneBig(s.CreditCommitted),
		CreditDebited:   cloneBig(s.CreditDebited),
		CreditDebitRate: s.CreditDebitRate,
		NumAccounts:     uint64(len(s.Accounts)),
		NumBlobs:        uint64(len(s.Blobs)),
		NumResolving:    uint64(s.Pending.Len()),
		BytesResolving:  s.Pending.Bytes(s.Blobs),
		NumAdded:        uint64(s.Added.Len()),
		BytesAdded:      s.Added.Bytes(s.Blobs),
	}
}
