package core

import (
	"math/big"
	"testing"
)

func TestEncodeDecodeStateRoundTrip(t *testing.T) {
	s := buildScenario2(t)

	data, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode_state: %v", err)
	}
	decoded, err := DecodeState(data)
	if err != nil {
		t.Fatalf("decode_state: %v", err)
	}

	reEncoded, err := EncodeState(decoded)
	if err != nil {
		t.Fatalf("re-encode decoded state: %v", err)
	}
	if string(data) != string(reEncoded) {
		t.Fatal("decode(encode(s)) did not re-encode to the same bytes")
	}

	a := decoded.Accounts[addr(1)]
	if a == nil {
		t.Fatal("decoded state is missing account addr(1)")
	}
	if a.CreditFree.Cmp(s.Accounts[addr(1)].CreditFree) != 0 {
		t.Fatalf("decoded A.credit_free = %s, want %s", a.CreditFree, s.Accounts[addr(1)].CreditFree)
	}
	blob, ok := decoded.Blobs[hsh(1)]
	if !ok {
		t.Fatal("decoded state is missing blob hsh(1)")
	}
	if len(blob.Subscribers) != 2 {
		t.Fatalf("decoded blob has %d subscribers, want 2", len(blob.Subscribers))
	}
	if !decoded.Added.Has(hsh(1)) {
		t.Fatal("decoded state should still list hsh(1) in the added queue")
	}
}

func TestComputeStateRootIsDeterministic(t *testing.T) {
	s1 := buildScenario2(t)
	s2 := buildScenario2(t)

	root1, err := ComputeStateRoot(s1)
	if err != nil {
		t.Fatalf("compute_state_root(s1): %v", err)
	}
	root2, err := ComputeStateRoot(s2)
	if err != nil {
		t.Fatalf("compute_state_root(s2): %v", err)
	}
	if root1 != root2 {
		t.Fatal("identical transition sequences must produce identical state roots")
	}

	mustBuy(t, s2, addr(3), 1, 2)
	root3, err := ComputeStateRoot(s2)
	if err != nil {
		t.Fatalf("compute_state_root(s2 after mutation): %v", err)
	}
	if root1 == root3 {
		t.Fatal("mutating state must change the state root")
	}
}

func TestEncodeStateRoundTripPreservesFailedSubscription(t *testing.T) {
	s := buildScenario2(t)
	if err := s.SetBlobPending(pubKey(0), addr(1), hsh(1), DefaultSubscriptionID); err != nil {
		t.Fatalf("set_blob_pending: %v", err)
	}
	if err := s.FinalizeBlob(addr(1), hsh(1), DefaultSubscriptionID, BlobStatusFailed, 3); err != nil {
		t.Fatalf("finalize_blob: %v", err)
	}

	data, err := EncodeState(s)
	if err != nil {
		t.Fatalf("encode_state: %v", err)
	}
	decoded, err := DecodeState(data)
	if err != nil {
		t.Fatalf("decode_state: %v", err)
	}
	sub := decoded.Blobs[hsh(1)].Subscribers[addr(1)].Subscriptions[DefaultSubscriptionID]
	if sub == nil || !sub.Failed {
		t.Fatal("decoded state must preserve A's failed subscription flag")
	}
	if decoded.Blobs[hsh(1)].Status != BlobStatusPending {
		t.Fatalf("decoded blob status = %s, want pending (B still active)", decoded.Blobs[hsh(1)].Status)
	}
}

func TestSubscriptionIDBytesRoundTrip(t *testing.T) {
	if got := subscriptionIDFromRLP(subscriptionIDBytes(DefaultSubscriptionID)); got != DefaultSubscriptionID {
		t.Fatal("default subscription id did not round trip through RLP byte encoding")
	}
	id := SubscriptionIDFromBytes([]byte("a-key"))
	if got := subscriptionIDFromRLP(subscriptionIDBytes(id)); got != id {
		t.Fatal("non-default subscription id did not round trip through RLP byte encoding")
	}
}

func TestBigOrZeroHandlesNil(t *testing.T) {
	if got := bigOrZero(nil); got.Sign() != 0 {
		t.Fatalf("bigOrZero(nil) = %s, want 0", got)
	}
	v := big.NewInt(42)
	got := bigOrZero(v)
	if got.Cmp(v) != 0 {
		t.Fatalf("bigOrZero(42) = %s, want 42", got)
	}
	got.Add(got, big.NewInt(1))
	if v.Cmp(big.NewInt(42)) != 0 {
		t.Fatal("bigOrZero must return a clone, not alias its input")
	}
}
