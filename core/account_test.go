package core

import (
	"math/big"
	"testing"
)

func TestBuyCreditCreatesAccount(t *testing.T) {
	s := NewState(1_000_000, 1000)
	acct, err := s.BuyCredit(addr(1), big.NewInt(1), 0)
	if err != nil {
		t.Fatalf("buy_credit: %v", err)
	}
	if acct.CreditFree.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("credit_free = %s, want 1000", acct.CreditFree)
	}
	if got := s.Accounts[addr(1)].CreditFree; got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("stored credit_free = %s, want 1000", got)
	}
}

func TestBuyCreditRejectsNegativeAmount(t *testing.T) {
	s := NewState(1_000_000, 1000)
	if _, err := s.BuyCredit(addr(1), big.NewInt(-1), 0); err == nil {
		t.Fatal("expected error for negative token amount")
	}
}

// Boundary case from spec.md §8: buy_credit when capacity_used ==
// capacity_free is rejected regardless of how much credit remains unsold.
func TestBuyCreditRejectedWhenCapacityExhausted(t *testing.T) {
	s := NewState(100, 1000)
	if _, err := s.BuyCredit(addr(1), big.NewInt(400), 0); err != nil {
		t.Fatalf("buy_credit: %v", err)
	}
	if _, err := s.AddBlob(addr(1), addr(1), 0, AddBlobParams{
		Source: pubKey(1), Hash: hsh(1), MetadataHash: hsh(0xaa), ID: DefaultSubscriptionID,
		Size: 100, TTL: ttlPtr(s.MinTTL),
	}); err != nil {
		t.Fatalf("add_blob: %v", err)
	}
	if s.CapacityUsed.Cmp(s.CapacityFree) != 0 {
		t.Fatalf("capacity not exhausted: used=%s free=%s", s.CapacityUsed, s.CapacityFree)
	}
	if _, err := s.BuyCredit(addr(2), big.NewInt(1), 1); err == nil {
		t.Fatal("expected capacity-exhausted error")
	} else if ee, ok := err.(*EngineError); !ok || ee.Kind != KindCapacity {
		t.Fatalf("expected Kind=Capacity, got %v", err)
	}
}

func TestApproveAndRevoke(t *testing.T) {
	s := NewState(1_000_000, 1000)
	if _, err := s.BuyCredit(addr(1), big.NewInt(1), 0); err != nil {
		t.Fatalf("buy_credit: %v", err)
	}
	caller := addr(3)
	limit := big.NewInt(250)
	ttl := ChainEpoch(100)
	appr, err := s.Approve(addr(1), addr(2), &caller, limit, &ttl, 0)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if appr.Limit.Cmp(limit) != 0 {
		t.Fatalf("limit = %s, want %s", appr.Limit, limit)
	}
	if appr.Used.Sign() != 0 {
		t.Fatalf("used = %s, want 0", appr.Used)
	}
	got, err := s.GetCreditApproval(addr(1), addr(2), &caller)
	if err != nil {
		t.Fatalf("get_credit_approval: %v", err)
	}
	if got.Limit.Cmp(limit) != 0 {
		t.Fatalf("fetched limit = %s, want %s", got.Limit, limit)
	}

	if err := s.Revoke(addr(1), addr(2), &caller); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.GetCreditApproval(addr(1), addr(2), &caller); err == nil {
		t.Fatal("expected not-found after revoke")
	}
}

// Boundary case: an approval with expiry == current_epoch is treated as
// expired, not usable.
func TestApprovalExpiryAtCurrentEpochIsExpired(t *testing.T) {
	expiry := ChainEpoch(10)
	appr := &CreditApproval{Limit: big.NewInt(100), Expiry: &expiry, Used: BigZero()}
	if appr.validAt(10) {
		t.Fatal("approval with expiry == epoch must be expired")
	}
	if !appr.validAt(9) {
		t.Fatal("approval one epoch before expiry must still be valid")
	}
}

func TestApproveReplaceCarriesOverUsed(t *testing.T) {
	s := NewState(1_000_000, 1000)
	if _, err := s.BuyCredit(addr(1), big.NewInt(1), 0); err != nil {
		t.Fatalf("buy_credit: %v", err)
	}
	caller := addr(3)
	limit := big.NewInt(500)
	if _, err := s.Approve(addr(1), addr(2), &caller, limit, nil, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	s.Accounts[addr(1)].Approvals[addr(2)][caller].Used = big.NewInt(200)

	newLimit := big.NewInt(500)
	appr, err := s.Approve(addr(1), addr(2), &caller, newLimit, nil, 1)
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if appr.Used.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("used reset on re-approve: got %s, want 200", appr.Used)
	}
}

func TestApproveRejectsLimitBelowUsed(t *testing.T) {
	s := NewState(1_000_000, 1000)
	if _, err := s.BuyCredit(addr(1), big.NewInt(1), 0); err != nil {
		t.Fatalf("buy_credit: %v", err)
	}
	caller := addr(3)
	if _, err := s.Approve(addr(1), addr(2), &caller, big.NewInt(500), nil, 0); err != nil {
		t.Fatalf("approve: %v", err)
	}
	s.Accounts[addr(1)].Approvals[addr(2)][caller].Used = big.NewInt(400)
	if _, err := s.Approve(addr(1), addr(2), &caller, big.NewInt(100), nil, 1); err == nil {
		t.Fatal("expected rejection: new limit below already-used amount")
	}
}

func ttlPtr(e ChainEpoch) *ChainEpoch { return &e }
