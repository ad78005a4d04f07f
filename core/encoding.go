package core

import (
	"crypto/sha256"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"
)

// The rlp package (teacher's core/ledger.go uses it for DecodeBlockRLP)
// cannot encode Go maps, so every map in State is flattened into a
// deterministically ordered slice before encoding and rebuilt on decode.
// This doubles as the canonical byte representation the state-root hash is
// computed over, so the flattening order (ascending address/hash/id,
// mirroring sortedAddressKeys/sortedHashKeys/sortedSubscriptionIDs) is not
// incidental: two validators that apply the same transitions must produce
// the same bytes here.

type approvalRLP struct {
	Receiver  Address
	Caller    Address
	HasLimit  bool
	Limit     *big.Int
	HasExpiry bool
	Expiry    uint64
	Used      *big.Int
}

type accountRLP struct {
	Addr            Address
	CapacityUsed    *big.Int
	CreditFree      *big.Int
	CreditCommitted *big.Int
	LastDebitEpoch  uint64
	Approvals       []approvalRLP
}

type subscriptionRLP struct {
	ID             []byte // empty = default subscription id
	Added          uint64
	Expiry         uint64
	AutoRenew      bool
	Source         PublicKey
	HasDelegate    bool
	DelegateOrigin Address
	DelegateCaller Address
	Failed         bool
}

type subscriberRLP struct {
	Address       Address
	Subscriptions []subscriptionRLP
}

type blobRLP struct {
	Hash         Hash
	Size         uint64
	MetadataHash Hash
	Status       uint8
	Subscribers  []subscriberRLP
}

type readRequestRLP struct {
	ID             Hash
	BlobHash       Hash
	Offset         uint64
	CallbackAddr   Address
	CallbackMethod uint64
}

type stateRLP struct {
	CapacityFree    *big.Int
	CapacityUsed    *big.Int
	CreditSold      *big.Int
	CreditCommitted *big.Int
	CreditDebited   *big.Int
	CreditDebitRate uint64
	MinTTL          uint64
	DefaultTTL      uint64
	Accounts        []accountRLP
	Blobs           []blobRLP
	ReadRequests    []readRequestRLP
}

func subscriptionIDBytes(id SubscriptionId) []byte {
	if id.isDefault {
		return nil
	}
	out := make([]byte, 32)
	copy(out, id.key[:])
	return out
}

func subscriptionIDFromRLP(b []byte) SubscriptionId {
	if len(b) == 0 {
		return DefaultSubscriptionID
	}
	var id SubscriptionId
	copy(id.key[:], b)
	return id
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return cloneBig(v)
}

func toStateRLP(s *State) *stateRLP {
	out := &stateRLP{
		CapacityFree:    bigOrZero(s.CapacityFree),
		CapacityUsed:    bigOrZero(s.CapacityUsed),
		CreditSold:      bigOrZero(s.CreditSold),
		CreditCommitted: bigOrZero(s.CreditCommitted),
		CreditDebited:   bigOrZero(s.CreditDebited),
		CreditDebitRate: s.CreditDebitRate,
		MinTTL:          uint64(s.MinTTL),
		DefaultTTL:      uint64(s.DefaultTTL),
	}
	for _, addr := range sortedAddressKeys(s.Accounts) {
		acct := s.Accounts[addr]
		ar := accountRLP{
			Addr:            addr,
			CapacityUsed:    bigOrZero(acct.CapacityUsed),
			CreditFree:      bigOrZero(acct.CreditFree),
			CreditCommitted: bigOrZero(acct.CreditCommitted),
			LastDebitEpoch:  uint64(acct.LastDebitEpoch),
		}
		for _, receiver := range sortedAddressKeys(acct.Approvals) {
			byCaller := acct.Approvals[receiver]
			for _, caller := range sortedAddressKeys(byCaller) {
				appr := byCaller[caller]
				pr := approvalRLP{Receiver: receiver, Caller: caller, Used: bigOrZero(appr.Used), Limit: big.NewInt(0)}
				if appr.Limit != nil {
					pr.HasLimit = true
					pr.Limit = cloneBig(appr.Limit)
				}
				if appr.Expiry != nil {
					pr.HasExpiry = true
					pr.Expiry = uint64(*appr.Expiry)
				}
				ar.Approvals = append(ar.Approvals, pr)
			}
		}
		out.Accounts = append(out.Accounts, ar)
	}
	for _, hash := range sortedHashKeys(s.Blobs) {
		blob := s.Blobs[hash]
		br := blobRLP{Hash: hash, Size: blob.Size, MetadataHash: blob.MetadataHash, Status: uint8(blob.Status)}
		for _, addr := range sortedAddressKeys(blob.Subscribers) {
			group := blob.Subscribers[addr]
			sr := subscriberRLP{Address: addr}
			for _, id := range sortedSubscriptionIDs(group) {
				sub := group.Subscriptions[id]
				subr := subscriptionRLP{
					ID:        subscriptionIDBytes(id),
					Added:     uint64(sub.Added),
					Expiry:    uint64(sub.Expiry),
					AutoRenew: sub.AutoRenew,
					Source:    sub.Source,
					Failed:    sub.Failed,
				}
				if sub.Delegate != nil {
					subr.HasDelegate = true
					subr.DelegateOrigin = sub.Delegate.Origin
					subr.DelegateCaller = sub.Delegate.Caller
				}
				sr.Subscriptions = append(sr.Subscriptions, subr)
			}
			br.Subscribers = append(br.Subscribers, sr)
		}
		out.Blobs = append(out.Blobs, br)
	}
	for _, id := range s.ReadRequests.List() {
		req, _ := s.ReadRequests.Get(id)
		out.ReadRequests = append(out.ReadRequests, readRequestRLP{
			ID: id, BlobHash: req.BlobHash, Offset: uint64(req.Offset),
			CallbackAddr: req.CallbackAddr, CallbackMethod: req.CallbackMethod,
		})
	}
	return out
}

func fromStateRLP(sr *stateRLP) *State {
	s := &State{
		CapacityFree:    bigOrZero(sr.CapacityFree),
		CapacityUsed:    bigOrZero(sr.CapacityUsed),
		CreditSold:      bigOrZero(sr.CreditSold),
		CreditCommitted: bigOrZero(sr.CreditCommitted),
		CreditDebited:   bigOrZero(sr.CreditDebited),
		CreditDebitRate: sr.CreditDebitRate,
		MinTTL:          ChainEpoch(sr.MinTTL),
		DefaultTTL:      ChainEpoch(sr.DefaultTTL),
		Accounts:        make(map[Address]*Account),
		Blobs:           make(map[Hash]*Blob),
		Expiries:        newExpiryIndex(),
		Pending:         newBlobQueue(),
		Added:           newBlobQueue(),
		ReadRequests:    newReadRequestIndex(),
	}
	for _, ar := range sr.Accounts {
		acct := &Account{
			CapacityUsed:    bigOrZero(ar.CapacityUsed),
			CreditFree:      bigOrZero(ar.CreditFree),
			CreditCommitted: bigOrZero(ar.CreditCommitted),
			LastDebitEpoch:  ChainEpoch(ar.LastDebitEpoch),
			Approvals:       make(map[Address]map[Address]*CreditApproval),
		}
		for _, pr := range ar.Approvals {
			byCaller, ok := acct.Approvals[pr.Receiver]
			if !ok {
				byCaller = make(map[Address]*CreditApproval)
				acct.Approvals[pr.Receiver] = byCaller
			}
			appr := &CreditApproval{Used: bigOrZero(pr.Used)}
			if pr.HasLimit {
				appr.Limit = cloneBig(pr.Limit)
			}
			if pr.HasExpiry {
				e := ChainEpoch(pr.Expiry)
				appr.Expiry = &e
			}
			byCaller[pr.Caller] = appr
		}
		s.Accounts[ar.Addr] = acct
	}
	for _, br := range sr.Blobs {
		blob := newBlob(br.Size, br.MetadataHash)
		blob.Status = BlobStatus(br.Status)
		for _, subr := range br.Subscribers {
			group := newSubscriptionGroup()
			for _, one := range subr.Subscriptions {
				id := subscriptionIDFromRLP(one.ID)
				sub := &Subscription{
					Added:     ChainEpoch(one.Added),
					Expiry:    ChainEpoch(one.Expiry),
					AutoRenew: one.AutoRenew,
					Source:    one.Source,
					Failed:    one.Failed,
				}
				if one.HasDelegate {
					sub.Delegate = &DelegateInfo{Origin: one.DelegateOrigin, Caller: one.DelegateCaller}
				}
				group.Subscriptions[id] = sub
				if !sub.Failed {
					s.Expiries.Add(sub.Expiry, subr.Address, br.Hash, id)
				}
			}
			blob.Subscribers[subr.Address] = group
		}
		s.Blobs[br.Hash] = blob

		switch blob.Status {
		case BlobStatusAdded:
			for addr, group := range blob.Subscribers {
				for _, sub := range group.Subscriptions {
					if !sub.Failed {
						s.Added.Add(br.Hash, addr, sub.Source)
					}
				}
			}
		case BlobStatusPending:
			for addr, group := range blob.Subscribers {
				for _, sub := range group.Subscriptions {
					if !sub.Failed {
						s.Pending.Add(br.Hash, addr, sub.Source)
					}
				}
			}
		}
	}
	for _, rr := range sr.ReadRequests {
		s.ReadRequests.requests[rr.ID] = &ReadRequest{
			BlobHash: rr.BlobHash, Offset: uint32(rr.Offset),
			CallbackAddr: rr.CallbackAddr, CallbackMethod: rr.CallbackMethod,
		}
	}
	return s
}

// EncodeState returns the canonical RLP encoding of s.
func EncodeState(s *State) ([]byte, error) {
	return rlp.EncodeToBytes(toStateRLP(s))
}

// DecodeState reconstructs a State from bytes produced by EncodeState.
func DecodeState(data []byte) (*State, error) {
	var sr stateRLP
	if err := rlp.DecodeBytes(data, &sr); err != nil {
		return nil, err
	}
	return fromStateRLP(&sr), nil
}

// ComputeStateRoot hashes the canonical RLP encoding of s, giving
// validators a single 32-byte value to compare after replaying the same
// transitions, matching the role of the teacher's Ledger.StateRoot().
func ComputeStateRoot(s *State) (Hash, error) {
	data, err := EncodeState(s)
	if err != nil {
		return Hash{}, err
	}
	return Hash(sha256.Sum256(data)), nil
}
