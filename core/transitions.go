package core

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
)

// AddBlobParams carries every argument add_blob needs beyond the implicit
// subscriber/caller/epoch triple every transition receives.
type AddBlobParams struct {
	// Sponsor, if set, pays for this call instead of subscriber; the
	// subscriber must hold a valid credit approval from Sponsor.
	Sponsor      *Address
	Source       PublicKey
	Hash         Hash
	MetadataHash Hash
	ID           SubscriptionId
	Size         uint64
	// TTL overrides the default TTL; nil uses State.DefaultTTL. Must be >=
	// State.MinTTL when set.
	TTL *ChainEpoch
}

func reclaimAmount(size uint64, expiry, debitEpoch ChainEpoch) *big.Int {
	remaining := expiry - debitEpoch
	if remaining < 0 {
		remaining = 0
	}
	return byteBlockCost(size, remaining)
}

func (s *State) findValidApproval(payer, origin, caller Address, epoch ChainEpoch) (*CreditApproval, error) {
	account, ok := s.Accounts[payer]
	if !ok {
		return nil, NotFound(ErrAccountNotFound)
	}
	appr, err := account.findApproval(origin, caller)
	if err != nil {
		return nil, Forbidden(err)
	}
	if !appr.validAt(epoch) {
		return nil, Forbidden(ErrApprovalExpired)
	}
	return appr, nil
}

// AddBlob registers subscriber's interest in a blob of content, creating the
// blob record on first reference and charging credit for the commitment.
// All validation happens before any state is mutated: if AddBlob returns an
// error, State is byte-for-byte unchanged. See spec.md §4.3.
func (s *State) AddBlob(subscriber, caller Address, epoch ChainEpoch, p AddBlobParams) (*Account, error) {
	if p.Size == 0 {
		return nil, IllegalArgument(fmt.Errorf("blob size must be non-zero"))
	}
	if p.MetadataHash.IsZero() {
		return nil, IllegalArgument(ErrInvalidMetadataHash)
	}

	ttlVal := s.DefaultTTL
	if p.TTL != nil {
		if *p.TTL < s.MinTTL {
			return nil, IllegalArgument(fmt.Errorf("minimum blob ttl is %d epochs", s.MinTTL))
		}
		ttlVal = *p.TTL
	}
	expiry := epoch + ttlVal

	payer := subscriber
	var delegate *DelegateInfo
	var approval *CreditApproval
	if p.Sponsor != nil {
		payer = *p.Sponsor
		a, err := s.findValidApproval(payer, subscriber, caller, epoch)
		if err != nil {
			return nil, err
		}
		approval = a
		delegate = &DelegateInfo{Origin: subscriber, Caller: caller}
	}

	account, ok := s.Accounts[payer]
	if !ok {
		return nil, NotFound(fmt.Errorf("account %s not found", payer))
	}

	blob, blobExists := s.Blobs[p.Hash]

	var group *SubscriptionGroup
	var groupExists bool
	var existingSub *Subscription
	if blobExists {
		group, groupExists = blob.Subscribers[subscriber]
		if groupExists {
			existingSub = group.Subscriptions[p.ID]
		}
	}

	var creditRequired *big.Int
	newBlobCapacity := false
	newSubscriberCapacity := false
	switch {
	case !blobExists:
		creditRequired = byteBlockCost(p.Size, ttlVal)
		newBlobCapacity = true
		newSubscriberCapacity = true
	case !groupExists:
		creditRequired = byteBlockCost(p.Size, ttlVal)
		newSubscriberCapacity = true
	case existingSub == nil:
		creditRequired = byteBlockCost(p.Size, ttlVal)
	default:
		creditRequired = byteBlockCost(p.Size, expiry-existingSub.Expiry)
	}

	if err := ensureCredit(payer, account.CreditFree, creditRequired); err != nil {
		return nil, err
	}

	var plannedApprovalUsed *big.Int
	if approval != nil {
		newUsed := new(big.Int).Add(approval.Used, creditRequired)
		if newUsed.Sign() < 0 {
			newUsed = BigZero()
		}
		if creditRequired.Sign() > 0 && approval.Limit != nil && newUsed.Cmp(approval.Limit) > 0 {
			return nil, Forbidden(ErrApprovalLimitReached)
		}
		plannedApprovalUsed = newUsed
	}

	// Every check above has passed: apply the transition.
	debit(s, payer, account, epoch)

	if !blobExists {
		blob = newBlob(p.Size, p.MetadataHash)
		s.Blobs[p.Hash] = blob
	}
	if !groupExists {
		group = newSubscriptionGroup()
		blob.Subscribers[subscriber] = group
	}

	if existingSub != nil {
		oldExpiry := existingSub.Expiry
		if oldExpiry != expiry {
			s.Expiries.Remove(oldExpiry, subscriber, p.Hash, p.ID)
			s.Expiries.Add(expiry, subscriber, p.Hash, p.ID)
		}
		existingSub.Expiry = expiry
		existingSub.Source = p.Source
		existingSub.Failed = false
		if delegate != nil {
			existingSub.Delegate = delegate
		}
	} else {
		sub := &Subscription{Added: epoch, Expiry: expiry, Source: p.Source, Delegate: delegate}
		group.Subscriptions[p.ID] = sub
		s.Expiries.Add(expiry, subscriber, p.Hash, p.ID)
	}

	if approval != nil {
		approval.Used = plannedApprovalUsed
	}

	if newBlobCapacity {
		s.CapacityUsed.Add(s.CapacityUsed, new(big.Int).SetUint64(p.Size))
	}
	if newSubscriberCapacity {
		account.CapacityUsed.Add(account.CapacityUsed, new(big.Int).SetUint64(p.Size))
	}
	s.CreditCommitted.Add(s.CreditCommitted, creditRequired)
	account.CreditCommitted.Add(account.CreditCommitted, creditRequired)
	account.CreditFree.Sub(account.CreditFree, creditRequired)

	// Open Question 1 (SPEC_FULL.md §E.1): add_blob on an already-pending or
	// already-resolved blob resets status to added and re-queues it, an
	// intentional recovery path (original_source src/state.rs: "it's pending
	// or failed, reset with current epoch" -- guarded on Failed, not on the
	// current status). Only a Failed blob is left untouched.
	if blob.Status != BlobStatusFailed {
		blob.Status = BlobStatusAdded
		s.Added.Add(p.Hash, subscriber, p.Source)
	}

	logrus.WithFields(logrus.Fields{
		"blob":            p.Hash.String(),
		"subscriber":      subscriber.String(),
		"payer":           payer.String(),
		"credit_required": creditRequired.String(),
	}).Debug("blob added")

	return account.Clone(), nil
}

// SetBlobPending moves a single (subscriber, source) tuple from the added
// queue to the pending queue against hash, transitioning the blob itself
// from Added to Pending on the first such call. Called by the resolver when
// it begins fetching content on behalf of one subscription. See spec.md
// §4.4.
func (s *State) SetBlobPending(source PublicKey, subscriber Address, hash Hash, id SubscriptionId) error {
	blob, ok := s.Blobs[hash]
	if !ok {
		return NotFound(ErrBlobNotFound)
	}
	group, ok := blob.Subscribers[subscriber]
	if !ok {
		return NotFound(ErrSubscriptionNotFound)
	}
	if _, ok := group.Subscriptions[id]; !ok {
		return NotFound(ErrSubscriptionNotFound)
	}
	if blob.Status != BlobStatusAdded && blob.Status != BlobStatusPending {
		return IllegalState(fmt.Errorf("blob %s is not in added status", hash))
	}
	blob.Status = BlobStatusPending
	s.Added.Remove(hash, subscriber, source)
	s.Pending.Add(hash, subscriber, source)
	logrus.WithFields(logrus.Fields{
		"blob": hash.String(), "subscriber": subscriber.String(),
	}).Debug("blob set pending")
	return nil
}

// FinalizeBlob records the resolver's verdict for one (subscriber, id)
// subscription against hash. Resolved is content-wide (the same bytes
// satisfy every subscriber), so it transitions the whole blob and drains
// every pending entry; Failed only reclaims the triggering subscriber's own
// credit and capacity share, and only drops the blob to terminal Failed once
// no subscriber anywhere still holds a non-failed subscription against it
// (other subscribers may still be resolving the same content via a
// different source). See spec.md §4.4.
func (s *State) FinalizeBlob(subscriber Address, hash Hash, id SubscriptionId, status BlobStatus, epoch ChainEpoch) error {
	if !status.IsTerminal() {
		return IllegalArgument(ErrNonTerminalStatus)
	}
	blob, ok := s.Blobs[hash]
	if !ok {
		// Deleted mid-resolution: a no-op success, per spec.md §4.4.
		return nil
	}
	group, ok := blob.Subscribers[subscriber]
	if !ok {
		return NotFound(ErrSubscriptionNotFound)
	}
	sub, ok := group.Subscriptions[id]
	if !ok {
		return NotFound(ErrSubscriptionNotFound)
	}
	if blob.Status.IsTerminal() || sub.Failed {
		// Already finalized: idempotent success under repeated delivery of
		// the same terminal status (spec.md §4.4's ordering/idempotence
		// rule). A second, conflicting status is rejected with IllegalState
		// -- the first terminal verdict always wins.
		prior := blob.Status
		if sub.Failed {
			prior = BlobStatusFailed
		}
		if status != prior {
			return IllegalState(fmt.Errorf("blob %s subscription already finalized as %s", hash, prior))
		}
		return nil
	}
	if blob.Status != BlobStatusPending {
		return IllegalState(fmt.Errorf("blob %s is not pending", hash))
	}
	account, ok := s.Accounts[subscriber]
	if !ok {
		return NotFound(ErrAccountNotFound)
	}

	if status == BlobStatusResolved {
		blob.Status = BlobStatusResolved
		s.Pending.RemoveAll(hash)
		logrus.WithFields(logrus.Fields{"blob": hash.String()}).Debug("blob resolved")
		return nil
	}

	debitEpoch := sub.Expiry
	if epoch < debitEpoch {
		debitEpoch = epoch
	}
	refund := reclaimAmount(blob.Size, sub.Expiry, debitEpoch)
	if refund.Sign() > 0 {
		account.CreditCommitted.Sub(account.CreditCommitted, refund)
		s.CreditCommitted.Sub(s.CreditCommitted, refund)
		account.CreditFree.Add(account.CreditFree, refund)
	}
	s.Expiries.Remove(sub.Expiry, subscriber, hash, id)
	sub.Failed = true

	hasOtherActive := false
	for _, other := range group.Subscriptions {
		if !other.Failed {
			hasOtherActive = true
			break
		}
	}
	if !hasOtherActive {
		account.CapacityUsed.Sub(account.CapacityUsed, new(big.Int).SetUint64(blob.Size))
	}
	s.Pending.Remove(hash, subscriber, sub.Source)

	if !blob.hasActiveSubscription() {
		s.CapacityUsed.Sub(s.CapacityUsed, new(big.Int).SetUint64(blob.Size))
		blob.Status = BlobStatusFailed
		s.Pending.RemoveAll(hash)
	}
	logrus.WithFields(logrus.Fields{"blob": hash.String(), "subscriber": subscriber.String()}).Warn("subscription resolution failed")
	return nil
}

// removeSubscription deletes subscriber's id subscription against hash,
// refunding unused committed credit, reclaiming capacity once the
// subscriber has no other active subscription to the same blob, and
// dropping the blob entirely once it has no subscribers left. Shared by
// DeleteBlob (explicit, epoch may be before expiry) and the natural-expiry
// reap path in DebitAccounts (epoch always >= expiry, so the refund is
// always zero there).
func (s *State) removeSubscription(hash Hash, blob *Blob, subscriber Address, account *Account, group *SubscriptionGroup, id SubscriptionId, sub *Subscription, epoch ChainEpoch) {
	debitEpoch := sub.Expiry
	if epoch < debitEpoch {
		debitEpoch = epoch
	}
	refund := reclaimAmount(blob.Size, sub.Expiry, debitEpoch)
	if refund.Sign() > 0 {
		account.CreditCommitted.Sub(account.CreditCommitted, refund)
		s.CreditCommitted.Sub(s.CreditCommitted, refund)
		account.CreditFree.Add(account.CreditFree, refund)
	}
	s.Expiries.Remove(sub.Expiry, subscriber, hash, id)
	source := sub.Source
	delete(group.Subscriptions, id)

	hasOtherActive := false
	for _, other := range group.Subscriptions {
		if !other.Failed {
			hasOtherActive = true
			break
		}
	}
	if len(group.Subscriptions) == 0 {
		delete(blob.Subscribers, subscriber)
	}
	if !hasOtherActive {
		account.CapacityUsed.Sub(account.CapacityUsed, new(big.Int).SetUint64(blob.Size))
		s.Pending.Remove(hash, subscriber, source)
		s.Added.Remove(hash, subscriber, source)
	}
	// Global capacity_used tracks distinct stored content, not per-subscriber
	// claims: it is only reclaimed once no subscriber anywhere still holds an
	// active subscription against hash (spec.md §8 S2's fair-sharing
	// invariant applies symmetrically on the reclaim path).
	if !blob.hasActiveSubscription() {
		s.CapacityUsed.Sub(s.CapacityUsed, new(big.Int).SetUint64(blob.Size))
	}
	if len(blob.Subscribers) == 0 {
		delete(s.Blobs, hash)
		s.Pending.RemoveAll(hash)
		s.Added.RemoveAll(hash)
	}
}

// DeleteBlob removes the subscription identified by (sponsor ?? caller, id)
// against hash, settling the account first and refunding the unused portion
// of its committed term. When sponsor is set, caller must hold a valid
// credit approval from sponsor (the same delegation check AddBlob performs);
// deletion spends no credit, so the approval's Used counter is untouched.
// See spec.md §4.5's tie-break and reclaim rules.
func (s *State) DeleteBlob(caller Address, sponsor *Address, hash Hash, id SubscriptionId, epoch ChainEpoch) (*Account, error) {
	subscriber := caller
	if sponsor != nil {
		subscriber = *sponsor
		if _, err := s.findValidApproval(subscriber, caller, caller, epoch); err != nil {
			return nil, err
		}
	}

	account, ok := s.Accounts[subscriber]
	if !ok {
		return nil, NotFound(ErrAccountNotFound)
	}
	blob, ok := s.Blobs[hash]
	if !ok {
		return nil, NotFound(ErrBlobNotFound)
	}
	group, ok := blob.Subscribers[subscriber]
	if !ok {
		return nil, NotFound(ErrSubscriptionNotFound)
	}
	sub, ok := group.Subscriptions[id]
	if !ok {
		return nil, NotFound(ErrSubscriptionNotFound)
	}

	debit(s, subscriber, account, epoch)
	s.removeSubscription(hash, blob, subscriber, account, group, id, sub, epoch)

	logrus.WithFields(logrus.Fields{"blob": hash.String(), "subscriber": subscriber.String()}).Debug("subscription deleted")
	return account.Clone(), nil
}

// DebitAccounts reaps or auto-renews every subscription whose expiry has
// passed through epoch, in the deterministic (epoch, subscriber, hash, id)
// order spec.md §4.5 requires, settling each reaped account's committed
// credit only through that subscription's own expiry (not through epoch) as
// it is removed -- matching original_source's reap-then-debit order, where
// debit_accounts ages an account's capacity_used one expiring subscription
// at a time rather than charging it for capacity it no longer holds. Once
// every expired subscription has been reaped or renewed, every remaining
// account is debited through epoch to settle the rest. It is the engine's
// only per-epoch maintenance transition; the host calls it once per epoch
// tick.
func (s *State) DebitAccounts(epoch ChainEpoch) {
	for _, e := range s.Expiries.ReapThrough(epoch) {
		blob, ok := s.Blobs[e.Hash]
		if !ok {
			continue
		}
		group, ok := blob.Subscribers[e.Subscriber]
		if !ok {
			continue
		}
		sub, ok := group.Subscriptions[e.ID]
		if !ok || sub.Failed || sub.Expiry != e.Epoch {
			continue // stale index entry, superseded by a later add_blob/delete_blob
		}
		account, ok := s.Accounts[e.Subscriber]
		if !ok {
			continue
		}

		debit(s, e.Subscriber, account, sub.Expiry)

		if sub.AutoRenew {
			term := sub.Expiry - sub.Added
			if term <= 0 {
				term = s.DefaultTTL
			}
			cost := byteBlockCost(blob.Size, term)
			if account.CreditFree.Cmp(cost) >= 0 {
				s.Expiries.Remove(e.Epoch, e.Subscriber, e.Hash, e.ID)
				account.CreditFree.Sub(account.CreditFree, cost)
				account.CreditCommitted.Add(account.CreditCommitted, cost)
				s.CreditCommitted.Add(s.CreditCommitted, cost)
				sub.Added = epoch
				sub.Expiry = epoch + term
				s.Expiries.Add(sub.Expiry, e.Subscriber, e.Hash, e.ID)
				continue
			}
			logrus.WithFields(logrus.Fields{
				"blob": e.Hash.String(), "subscriber": e.Subscriber.String(),
			}).Warn("auto-renew skipped: insufficient credit, reaping instead")
		}

		s.removeSubscription(e.Hash, blob, e.Subscriber, account, group, e.ID, sub, epoch)
	}

	for _, addr := range sortedAddressKeys(s.Accounts) {
		debit(s, addr, s.Accounts[addr], epoch)
	}
}

// GetBlob returns a defensive copy of the blob at hash.
func (s *State) GetBlob(hash Hash) (*Blob, error) {
	blob, ok := s.Blobs[hash]
	if !ok {
		return nil, NotFound(ErrBlobNotFound)
	}
	return blob.Clone(), nil
}

// GetBlobStatus returns the status of the blob at hash.
func (s *State) GetBlobStatus(hash Hash) (BlobStatus, error) {
	blob, ok := s.Blobs[hash]
	if !ok {
		return 0, NotFound(ErrBlobNotFound)
	}
	return blob.Status, nil
}

// GetAddedBlobs lists up to limit (0 = unlimited) blobs awaiting pickup by
// the resolver, ascending by hash.
func (s *State) GetAddedBlobs(limit uint32) []QueueEntry {
	return s.Added.List(limit)
}

// GetPendingBlobs lists up to limit (0 = unlimited) blobs currently being
// resolved, ascending by hash.
func (s *State) GetPendingBlobs(limit uint32) []QueueEntry {
	return s.Pending.List(limit)
}

// OpenReadRequest registers a read of a resolved blob, returning its
// deterministic request id for the resolver to correlate its callback
// against. See spec.md §4.7.
func (s *State) OpenReadRequest(hash Hash, offset uint32, callbackAddr Address, callbackMethod uint64, epoch ChainEpoch) (Hash, error) {
	blob, ok := s.Blobs[hash]
	if !ok {
		return Hash{}, NotFound(ErrBlobNotFound)
	}
	if blob.Status != BlobStatusResolved {
		return Hash{}, IllegalState(ErrBlobNotResolved)
	}
	id := ComputeRequestID(hash, offset, callbackAddr, callbackMethod, epoch)
	req := &ReadRequest{BlobHash: hash, Offset: offset, CallbackAddr: callbackAddr, CallbackMethod: callbackMethod}
	if err := s.ReadRequests.Open(id, req); err != nil {
		return Hash{}, err
	}
	return id, nil
}

// CloseReadRequest removes a fulfilled or abandoned read request.
func (s *State) CloseReadRequest(id Hash) error {
	return s.ReadRequests.Close(id)
}

// GetOpenReadRequests lists up to limit (0 = unlimited) open read requests,
// ascending by request id.
func (s *State) GetOpenReadRequests(limit uint32) []*ReadRequest {
	ids := s.ReadRequests.List()
	if limit > 0 && uint32(len(ids)) > limit {
		ids = ids[:limit]
	}
	out := make([]*ReadRequest, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.ReadRequests.Get(id); ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}
