package core

import "testing"

func TestExpiryIndexReapThroughOrdersByEpochThenKey(t *testing.T) {
	x := newExpiryIndex()
	x.Add(5, addr(2), hsh(1), DefaultSubscriptionID)
	x.Add(5, addr(1), hsh(1), DefaultSubscriptionID)
	x.Add(3, addr(9), hsh(1), DefaultSubscriptionID)
	x.Add(10, addr(0), hsh(1), DefaultSubscriptionID)

	entries := x.ReapThrough(5)
	if len(entries) != 3 {
		t.Fatalf("ReapThrough(5) returned %d entries, want 3", len(entries))
	}
	if entries[0].Epoch != 3 || entries[0].Subscriber != addr(9) {
		t.Fatalf("entries[0] = %+v, want epoch 3, subscriber addr(9)", entries[0])
	}
	if entries[1].Epoch != 5 || entries[1].Subscriber != addr(1) {
		t.Fatalf("entries[1] = %+v, want epoch 5, subscriber addr(1) (tie-break ascending)", entries[1])
	}
	if entries[2].Epoch != 5 || entries[2].Subscriber != addr(2) {
		t.Fatalf("entries[2] = %+v, want epoch 5, subscriber addr(2)", entries[2])
	}
}

func TestExpiryIndexReapThroughExcludesLaterEpochs(t *testing.T) {
	x := newExpiryIndex()
	x.Add(10, addr(0), hsh(1), DefaultSubscriptionID)
	if entries := x.ReapThrough(9); len(entries) != 0 {
		t.Fatalf("ReapThrough(9) returned %d entries, want 0 (epoch 10 not yet due)", len(entries))
	}
	if entries := x.ReapThrough(10); len(entries) != 1 {
		t.Fatalf("ReapThrough(10) returned %d entries, want 1 (epoch 10 is due)", len(entries))
	}
}

func TestExpiryIndexRemoveDropsEmptyEpochBucket(t *testing.T) {
	x := newExpiryIndex()
	x.Add(5, addr(1), hsh(1), DefaultSubscriptionID)
	if x.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", x.Len())
	}
	x.Remove(5, addr(1), hsh(1), DefaultSubscriptionID)
	if x.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after removing the only entry at epoch 5", x.Len())
	}
	if entries := x.ReapThrough(100); len(entries) != 0 {
		t.Fatalf("ReapThrough after removal returned %d entries, want 0", len(entries))
	}
}

func TestExpiryIndexRemoveLeavesOtherEntriesAtSameEpoch(t *testing.T) {
	x := newExpiryIndex()
	x.Add(5, addr(1), hsh(1), DefaultSubscriptionID)
	x.Add(5, addr(2), hsh(1), DefaultSubscriptionID)
	x.Remove(5, addr(1), hsh(1), DefaultSubscriptionID)
	entries := x.ReapThrough(5)
	if len(entries) != 1 || entries[0].Subscriber != addr(2) {
		t.Fatalf("entries = %+v, want only addr(2) to remain", entries)
	}
	if x.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (epoch 5 still has one entry)", x.Len())
	}
}

func TestExpiryIndexDistinguishesSubscriptionIDsAtSameEpoch(t *testing.T) {
	x := newExpiryIndex()
	other := SubscriptionIDFromBytes([]byte("second"))
	x.Add(5, addr(1), hsh(1), DefaultSubscriptionID)
	x.Add(5, addr(1), hsh(1), other)
	if entries := x.ReapThrough(5); len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 (same subscriber/hash, distinct subscription ids)", len(entries))
	}
	x.Remove(5, addr(1), hsh(1), DefaultSubscriptionID)
	entries := x.ReapThrough(5)
	if len(entries) != 1 || entries[0].ID != other {
		t.Fatalf("entries = %+v, want only the non-default subscription id to remain", entries)
	}
}
