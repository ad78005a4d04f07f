package core

import (
	"math/big"
	"testing"
)

func mustBuy(t *testing.T, s *State, who Address, atto int64, epoch ChainEpoch) *Account {
	t.Helper()
	acct, err := s.BuyCredit(who, big.NewInt(atto), epoch)
	if err != nil {
		t.Fatalf("buy_credit(%s): %v", who, err)
	}
	return acct
}

// S1 — basic purchase and single subscription (spec.md §8).
func TestScenarioBasicPurchaseAndSubscription(t *testing.T) {
	s := NewState(1_000_000, 1000)
	s.MinTTL = 1
	mustBuy(t, s, addr(1), 1, 0)

	ttl := ChainEpoch(5)
	acct, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: &ttl,
	})
	if err != nil {
		t.Fatalf("add_blob: %v", err)
	}
	if acct.CreditFree.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("A.credit_free = %s, want 500", acct.CreditFree)
	}
	if acct.CreditCommitted.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("A.credit_committed = %s, want 500", acct.CreditCommitted)
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("capacity_used = %s, want 100", s.CapacityUsed)
	}
}

// buildScenario2 replays S1 then S2 and returns the resulting state, ready
// for the S3/S4/S5 forks that each build on top of it.
func buildScenario2(t *testing.T) *State {
	t.Helper()
	s := NewState(1_000_000, 1000)
	s.MinTTL = 1
	mustBuy(t, s, addr(1), 1, 0)
	ttlA := ChainEpoch(5)
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: &ttlA,
	}); err != nil {
		t.Fatalf("S1 add_blob: %v", err)
	}

	mustBuy(t, s, addr(2), 2, 1)
	ttlB := ChainEpoch(10)
	if _, err := s.AddBlob(addr(2), addr(2), 1, AddBlobParams{
		Source: pubKey(1), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: &ttlB,
	}); err != nil {
		t.Fatalf("S2 add_blob: %v", err)
	}
	return s
}

// S2 — co-subscription and fair sharing.
func TestScenarioCoSubscriptionFairSharing(t *testing.T) {
	s := buildScenario2(t)

	b := s.Accounts[addr(2)]
	if b.CreditFree.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("B.credit_free = %s, want 1000", b.CreditFree)
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("global capacity_used = %s, want 100 (shared blob)", s.CapacityUsed)
	}
	if s.Accounts[addr(1)].CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("A.capacity_used = %s, want 100", s.Accounts[addr(1)].CapacityUsed)
	}
	if b.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("B.capacity_used = %s, want 100", b.CapacityUsed)
	}
}

// S3 — resolution failure refund.
func TestScenarioResolutionFailureRefund(t *testing.T) {
	s := buildScenario2(t)

	if err := s.SetBlobPending(pubKey(0), addr(1), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending: %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusFailed, 3); err != nil {
		t.Fatalf("finalize_blob: %v", err)
	}

	a := s.Accounts[addr(1)]
	if a.CreditFree.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("A.credit_free = %s, want 700 (500 + refund of 200)", a.CreditFree)
	}
	if a.CapacityUsed.Sign() != 0 {
		t.Fatalf("A.capacity_used = %s, want 0", a.CapacityUsed)
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("global capacity_used = %s, want 100 (B still active)", s.CapacityUsed)
	}
	blob, err := s.GetBlob(hsh(1))
	if err != nil {
		t.Fatalf("get_blob: %v", err)
	}
	if blob.Status != BlobStatusPending {
		t.Fatalf("blob.status = %s, want pending (B's subscription is still resolving)", blob.Status)
	}
	sub := blob.Subscribers[addr(1)].Subscriptions[DefaultSubscriptionID]
	if !sub.Failed {
		t.Fatal("A's subscription should be flagged failed")
	}
}

// When every subscriber on a shared blob fails, one at a time, global
// capacity_used must be reclaimed only once no subscriber anywhere still
// holds an active subscription -- not on the first failure, while the blob
// is still serving another subscriber.
func TestFinalizeBlobFailedReclaimsSharedCapacityOnce(t *testing.T) {
	s := buildScenario2(t)
	if err := s.SetBlobPending(pubKey(0), addr(1), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending(A): %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusFailed, 0); err != nil {
		t.Fatalf("finalize_blob(A): %v", err)
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("global capacity_used = %s, want 100 (B still active)", s.CapacityUsed)
	}

	if err := s.SetBlobPending(pubKey(1), addr(2), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending(B): %v", err)
	}
	if err := s.FinalizeBlob(addr(2), hsh(1), DefaultSubscriptionID, BlobStatusFailed, 0); err != nil {
		t.Fatalf("finalize_blob(B): %v", err)
	}
	if s.CapacityUsed.Sign() != 0 {
		t.Fatalf("global capacity_used = %s, want 0 (reclaimed once both subscribers failed)", s.CapacityUsed)
	}
	blob, err := s.GetBlob(hsh(1))
	if err != nil {
		t.Fatalf("get_blob: %v", err)
	}
	if blob.Status != BlobStatusFailed {
		t.Fatalf("blob.status = %s, want failed", blob.Status)
	}
	checkInvariants(t, s)
}

// finalize_blob(..., Resolved) applied twice is equivalent to applying it
// once: the second call is a no-op success and leaves state untouched.
func TestFinalizeBlobResolvedIsIdempotent(t *testing.T) {
	s := buildScenario2(t)
	if err := s.SetBlobPending(pubKey(0), addr(1), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending: %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusResolved, 3); err != nil {
		t.Fatalf("first finalize_blob: %v", err)
	}
	before, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusResolved, 4); err != nil {
		t.Fatalf("second finalize_blob should be a no-op success, got error: %v", err)
	}
	after, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("idempotent second finalize_blob mutated state")
	}
}

// S4 — deletion before expiry.
func TestScenarioDeletionBeforeExpiry(t *testing.T) {
	s := buildScenario2(t)

	acct, err := s.DeleteBlob(addr(1), nil, hsh(1), DefaultSubscriptionID, 2)
	if err != nil {
		t.Fatalf("delete_blob: %v", err)
	}
	// A's account was created (and last debited) at epoch 0 with
	// capacity_used=100; debiting through epoch 2 moves 2*100=200 credits
	// from committed to debited before the remaining (5-2)*100=300 is
	// refunded to credit_free.
	if acct.CreditCommitted.Sign() != 0 {
		t.Fatalf("A.credit_committed = %s, want 0", acct.CreditCommitted)
	}
	if acct.CreditFree.Cmp(big.NewInt(800)) != 0 {
		t.Fatalf("A.credit_free = %s, want 800 (500 + 300 refund)", acct.CreditFree)
	}
	if acct.CapacityUsed.Sign() != 0 {
		t.Fatalf("A.capacity_used = %s, want 0", acct.CapacityUsed)
	}
	if s.CreditDebited.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("global credit_debited = %s, want 200", s.CreditDebited)
	}

	blob, err := s.GetBlob(hsh(1))
	if err != nil {
		t.Fatalf("get_blob: %v", err)
	}
	if _, stillThere := blob.Subscribers[addr(1)]; stillThere {
		t.Fatal("A's subscription should have been removed")
	}
	if _, stillThere := blob.Subscribers[addr(2)]; !stillThere {
		t.Fatal("blob should remain with B")
	}
}

// Re-adding with identical parameters at the same epoch after a delete
// restores the account to its pre-delete state (property #5).
func TestDeleteThenReAddRestoresState(t *testing.T) {
	s := buildScenario2(t)
	before, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := s.DeleteBlob(addr(1), nil, hsh(1), DefaultSubscriptionID, 0); err != nil {
		t.Fatalf("delete_blob: %v", err)
	}
	ttl := ChainEpoch(5) // re-add at epoch 0, A's original add epoch, with the same ttl (5)
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: &ttl,
	}); err != nil {
		t.Fatalf("re add_blob: %v", err)
	}

	after, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	rootBefore, _ := ComputeStateRoot(mustDecode(t, before))
	rootAfter, _ := ComputeStateRoot(mustDecode(t, after))
	if rootBefore != rootAfter {
		t.Fatalf("state root changed across delete+re-add: before=%s after=%s", rootBefore, rootAfter)
	}
}

func mustDecode(t *testing.T, data []byte) *State {
	t.Helper()
	s, err := DecodeState(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

// S5 — expiry reaping: A's subscription expires at epoch 5, before the
// epoch (6) debit_accounts is invoked with, so A is debited only through
// its expiry, which exactly exhausts what was committed, and the reap
// carries no further refund; B's later-expiring subscription is untouched.
func TestScenarioExpiryReaping(t *testing.T) {
	s := buildScenario2(t)

	s.DebitAccounts(6)

	a := s.Accounts[addr(1)]
	if a.CreditCommitted.Sign() != 0 {
		t.Fatalf("A.credit_committed = %s, want 0 after full debit+reap", a.CreditCommitted)
	}
	if a.CapacityUsed.Sign() != 0 {
		t.Fatalf("A.capacity_used = %s, want 0", a.CapacityUsed)
	}
	blob, err := s.GetBlob(hsh(1))
	if err != nil {
		t.Fatalf("get_blob: %v", err)
	}
	if _, stillSubscribed := blob.Subscribers[addr(1)]; stillSubscribed {
		t.Fatal("A's subscription should have been reaped")
	}
	if _, stillSubscribed := blob.Subscribers[addr(2)]; !stillSubscribed {
		t.Fatal("B's subscription (expiry 11) should survive debit_accounts(6)")
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("global capacity_used = %s, want 100 (B only)", s.CapacityUsed)
	}
}

// S6 — approval limit: a delegated add_blob within the limit succeeds and
// accrues `used`; a second that would push cumulative usage past the limit
// is rejected and leaves `used` unchanged (property #6).
func TestScenarioApprovalLimit(t *testing.T) {
	s := NewState(1_000_000, 1000)
	s.MinTTL = 1
	mustBuy(t, s, addr(1), 1, 0) // sponsor A, 1000 credits free

	sponsor := addr(1)
	subscriber := addr(2) // receiver R
	caller := addr(3)     // C

	limit := big.NewInt(250)
	ttl := ChainEpoch(100)
	if _, err := s.Approve(sponsor, subscriber, &caller, limit, &ttl, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}

	blobTTL := ChainEpoch(100)
	if _, err := s.AddBlob(subscriber, caller, 0, AddBlobParams{
		Sponsor: &sponsor, Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa),
		ID: DefaultSubscriptionID, Size: 2, TTL: &blobTTL,
	}); err != nil {
		t.Fatalf("first delegated add_blob: %v", err)
	}
	used := s.Accounts[sponsor].Approvals[subscriber][caller].Used
	if used.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("used = %s, want 200", used)
	}

	if _, err := s.AddBlob(subscriber, caller, 0, AddBlobParams{
		Sponsor: &sponsor, Source: pubKey(0), Hash: hsh(2), MetadataHash: hsh(0xaa),
		ID: DefaultSubscriptionID, Size: 1, TTL: &blobTTL,
	}); err == nil {
		t.Fatal("second delegated add_blob should fail: would push used over limit")
	} else if ee, ok := err.(*EngineError); !ok || ee.Kind != KindForbidden {
		t.Fatalf("expected Kind=Forbidden, got %v", err)
	}

	usedAfter := s.Accounts[sponsor].Approvals[subscriber][caller].Used
	if usedAfter.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("used after rejected call = %s, want unchanged 200", usedAfter)
	}
}

// delete_blob must honor the same sponsor/delegate authorization rule as
// add_blob: a delegate with a valid approval may end the sponsor's own
// subscription, and one without any approval is rejected.
func TestDeleteBlobRequiresDelegationWhenSponsored(t *testing.T) {
	s := NewState(1_000_000, 1000)
	s.MinTTL = 1
	mustBuy(t, s, addr(1), 1, 0) // sponsor A

	sponsor := addr(1)
	caller := addr(3)

	ttl := ChainEpoch(100)
	if _, err := s.AddBlob(sponsor, sponsor, 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 1, TTL: &ttl,
	}); err != nil {
		t.Fatalf("add_blob: %v", err)
	}

	if _, err := s.DeleteBlob(caller, &sponsor, hsh(1), DefaultSubscriptionID, 1); err == nil {
		t.Fatal("delete_blob without an approval should be rejected")
	} else if ee, ok := err.(*EngineError); !ok || ee.Kind != KindForbidden {
		t.Fatalf("expected Kind=Forbidden, got %v", err)
	}

	approveTTL := ChainEpoch(100)
	if _, err := s.Approve(sponsor, caller, nil, nil, &approveTTL, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	acct, err := s.DeleteBlob(caller, &sponsor, hsh(1), DefaultSubscriptionID, 1)
	if err != nil {
		t.Fatalf("delegated delete_blob: %v", err)
	}
	if acct.CapacityUsed.Sign() != 0 {
		t.Fatalf("sponsor.capacity_used = %s, want 0", acct.CapacityUsed)
	}
	if _, err := s.GetBlob(hsh(1)); err == nil {
		t.Fatal("blob should have been deleted (no subscribers left)")
	}
}

// Boundary case: ttl = MIN_TTL is accepted; ttl = MIN_TTL-1 is rejected.
func TestAddBlobTTLBoundary(t *testing.T) {
	s := NewState(1_000_000, 1000)
	mustBuy(t, s, addr(1), 1_000_000, 0)

	tooShort := s.MinTTL - 1
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 1, TTL: &tooShort,
	}); err == nil {
		t.Fatal("ttl below minimum should be rejected")
	}

	exact := s.MinTTL
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(2), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 1, TTL: &exact,
	}); err != nil {
		t.Fatalf("ttl == minimum should be accepted: %v", err)
	}
}

// Boundary case: a blob with exactly one subscriber, deleted at epoch ==
// expiry, refunds nothing but still frees global capacity_used.
func TestDeleteAtExactExpiryNoRefund(t *testing.T) {
	s := NewState(1_000_000, 1000)
	s.MinTTL = 1
	mustBuy(t, s, addr(1), 1, 0)
	ttl := ChainEpoch(5)
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(0), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: &ttl,
	}); err != nil {
		t.Fatalf("add_blob: %v", err)
	}

	acct, err := s.DeleteBlob(addr(1), nil, hsh(1), DefaultSubscriptionID, 5)
	if err != nil {
		t.Fatalf("delete_blob: %v", err)
	}
	if acct.CreditCommitted.Sign() != 0 {
		t.Fatalf("credit_committed = %s, want 0", acct.CreditCommitted)
	}
	// debit through epoch 5 consumed all 500 committed credits; no further
	// refund is owed since remaining = expiry - debit_epoch = 0.
	if acct.CreditFree.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("credit_free = %s, want 500 (no refund)", acct.CreditFree)
	}
	if s.CapacityUsed.Sign() != 0 {
		t.Fatalf("global capacity_used = %s, want 0", s.CapacityUsed)
	}
}

// Deleting one of two co-subscribers must not reclaim the blob's global
// capacity while the other subscriber remains active (the symmetric
// counterpart to S2's "global capacity_used stays 100" sharing invariant).
func TestDeleteOneOfTwoCoSubscribersKeepsGlobalCapacity(t *testing.T) {
	s := buildScenario2(t)

	if _, err := s.DeleteBlob(addr(1), nil, hsh(1), DefaultSubscriptionID, 1); err != nil {
		t.Fatalf("delete_blob: %v", err)
	}
	if s.CapacityUsed.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("global capacity_used = %s, want 100 (B's subscription still active)", s.CapacityUsed)
	}
	blob, err := s.GetBlob(hsh(1))
	if err != nil {
		t.Fatalf("get_blob: %v", err)
	}
	if !blob.hasActiveSubscription() {
		t.Fatal("blob should still have B's active subscription")
	}
	checkInvariants(t, s)
}

// Quantified invariant #1 and #2: capacity_used and credit_committed are
// always consistent sums over the per-account/per-blob breakdown.
func TestInvariantsHoldAcrossScenario(t *testing.T) {
	s := buildScenario2(t)
	checkInvariants(t, s)

	if err := s.SetBlobPending(pubKey(0), addr(1), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending: %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusFailed, 3); err != nil {
		t.Fatalf("finalize_blob: %v", err)
	}
	checkInvariants(t, s)
}

func checkInvariants(t *testing.T, s *State) {
	t.Helper()

	sizeByActiveBlob := BigZero()
	for _, blob := range s.Blobs {
		if blob.hasActiveSubscription() {
			sizeByActiveBlob.Add(sizeByActiveBlob, new(big.Int).SetUint64(blob.Size))
		}
	}
	if s.CapacityUsed.Cmp(sizeByActiveBlob) != 0 {
		t.Fatalf("capacity_used = %s, want sum of active blob sizes %s", s.CapacityUsed, sizeByActiveBlob)
	}

	committedSum := BigZero()
	for _, acct := range s.Accounts {
		committedSum.Add(committedSum, acct.CreditCommitted)
	}
	if s.CreditCommitted.Cmp(committedSum) != 0 {
		t.Fatalf("credit_committed = %s, want sum over accounts %s", s.CreditCommitted, committedSum)
	}
}
