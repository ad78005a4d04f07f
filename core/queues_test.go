package core

import "testing"

func TestBlobQueueAddListOrdering(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(2), addr(1), pubKey(0))
	q.Add(hsh(1), addr(2), pubKey(0))
	q.Add(hsh(1), addr(1), pubKey(0))

	entries := q.List(0)
	if len(entries) != 2 {
		t.Fatalf("List() returned %d hash entries, want 2", len(entries))
	}
	if entries[0].Hash != hsh(1) || entries[1].Hash != hsh(2) {
		t.Fatalf("hashes not in ascending order: %+v", entries)
	}
	subs := entries[0].Subscribers
	if len(subs) != 2 || subs[0].Subscriber != addr(1) || subs[1].Subscriber != addr(2) {
		t.Fatalf("subscribers for hsh(1) not in ascending order: %+v", subs)
	}
}

func TestBlobQueueListRespectsLimit(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(1), addr(1), pubKey(0))
	q.Add(hsh(2), addr(1), pubKey(0))
	q.Add(hsh(3), addr(1), pubKey(0))

	entries := q.List(2)
	if len(entries) != 2 {
		t.Fatalf("List(2) returned %d entries, want 2", len(entries))
	}
	if entries[0].Hash != hsh(1) || entries[1].Hash != hsh(2) {
		t.Fatalf("List(2) = %+v, want the two lowest hashes", entries)
	}
}

func TestBlobQueueRemoveDropsEmptyHash(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(1), addr(1), pubKey(0))
	if !q.Has(hsh(1)) {
		t.Fatal("Has(hsh(1)) = false after Add")
	}
	q.Remove(hsh(1), addr(1), pubKey(0))
	if q.Has(hsh(1)) {
		t.Fatal("Has(hsh(1)) = true after removing its only entry")
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
}

func TestBlobQueueRemoveLeavesOtherSubscribers(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(1), addr(1), pubKey(0))
	q.Add(hsh(1), addr(2), pubKey(0))
	q.Remove(hsh(1), addr(1), pubKey(0))
	if !q.Has(hsh(1)) {
		t.Fatal("Has(hsh(1)) = false, want true (addr(2) still registered)")
	}
	entries := q.List(0)
	if len(entries) != 1 || len(entries[0].Subscribers) != 1 || entries[0].Subscribers[0].Subscriber != addr(2) {
		t.Fatalf("entries = %+v, want only addr(2) left under hsh(1)", entries)
	}
}

func TestBlobQueueRemoveAll(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(1), addr(1), pubKey(0))
	q.Add(hsh(1), addr(2), pubKey(1))
	q.RemoveAll(hsh(1))
	if q.Has(hsh(1)) {
		t.Fatal("Has(hsh(1)) = true after RemoveAll")
	}
}

func TestBlobQueueBytesSumsAcrossQueuedHashes(t *testing.T) {
	q := newBlobQueue()
	q.Add(hsh(1), addr(1), pubKey(0))
	q.Add(hsh(2), addr(1), pubKey(0))
	blobs := map[Hash]*Blob{
		hsh(1): {Size: 100},
		hsh(2): {Size: 250},
		hsh(3): {Size: 999}, // not queued, must not contribute
	}
	if got := q.Bytes(blobs); got != 350 {
		t.Fatalf("Bytes() = %d, want 350", got)
	}
}
