package core

import (
	"bytes"
	"sort"
)

// queueEntryKey identifies one (subscriber, source) pair backing a blob in
// the pending or added queue.
type queueEntryKey struct {
	Subscriber Address
	Source     PublicKey
}

func queueEntryLess(a, b queueEntryKey) bool {
	if c := bytes.Compare(a.Subscriber[:], b.Subscriber[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Source[:], b.Source[:]) < 0
}

// SourcedSubscriber pairs a subscriber with the off-chain source it
// registered the blob under.
type SourcedSubscriber struct {
	Subscriber Address
	Source     PublicKey
}

// QueueEntry is one hash's worth of pending/added subscribers, in
// deterministic ascending order.
type QueueEntry struct {
	Hash        Hash
	Subscribers []SourcedSubscriber
}

// BlobQueue is the ordered Hash -> set-of-(subscriber, source) structure
// backing the pending and added queues (spec.md §3, §4.4), mirroring
// original_source's `pending: BTreeMap<Hash, HashSet<(Address, PublicKey)>>`.
type BlobQueue struct {
	hashes map[Hash]map[queueEntryKey]struct{}
}

func newBlobQueue() *BlobQueue {
	return &BlobQueue{hashes: make(map[Hash]map[queueEntryKey]struct{})}
}

// Add registers subscriber/source against hash.
func (q *BlobQueue) Add(hash Hash, subscriber Address, source PublicKey) {
	set, ok := q.hashes[hash]
	if !ok {
		set = make(map[queueEntryKey]struct{})
		q.hashes[hash] = set
	}
	set[queueEntryKey{subscriber, source}] = struct{}{}
}

// Remove deregisters subscriber/source from hash, dropping the hash entry
// entirely once its set is empty.
func (q *BlobQueue) Remove(hash Hash, subscriber Address, source PublicKey) {
	set, ok := q.hashes[hash]
	if !ok {
		return
	}
	delete(set, queueEntryKey{subscriber, source})
	if len(set) == 0 {
		delete(q.hashes, hash)
	}
}

// RemoveAll drops every entry for hash, regardless of subscriber.
func (q *BlobQueue) RemoveAll(hash Hash) {
	delete(q.hashes, hash)
}

// Has reports whether hash has at least one registered subscriber.
func (q *BlobQueue) Has(hash Hash) bool {
	_, ok := q.hashes[hash]
	return ok
}

// Len returns the number of distinct hashes queued.
func (q *BlobQueue) Len() int {
	return len(q.hashes)
}

// Bytes sums size across every hash currently queued, looking sizes up in
// blobs. Used for the bytes_resolving/bytes_added stats supplemented in
// SPEC_FULL.md §C.2.
func (q *BlobQueue) Bytes(blobs map[Hash]*Blob) uint64 {
	var total uint64
	for h := range q.hashes {
		if b, ok := blobs[h]; ok {
			total += b.Size
		}
	}
	return total
}

// List returns up to limit hashes (0 = unlimited) in ascending hash order,
// each with its subscribers in ascending (subscriber, source) order.
func (q *BlobQueue) List(limit uint32) []QueueEntry {
	hashes := make([]Hash, 0, len(q.hashes))
	for h := range q.hashes {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool { return bytes.Compare(hashes[i][:], hashes[j][:]) < 0 })
	if limit > 0 && uint32(len(hashes)) > limit {
		hashes = hashes[:limit]
	}
	out := make([]QueueEntry, 0, len(hashes))
	for _, h := range hashes {
		keys := make([]queueEntryKey, 0, len(q.hashes[h]))
		for k := range q.hashes[h] {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return queueEntryLess(keys[i], keys[j]) })
		subs := make([]SourcedSubscriber, len(keys))
		for i, k := range keys {
			subs[i] = SourcedSubscriber{Subscriber: k.Subscriber, Source: k.Source}
		}
		out = append(out, QueueEntry{Hash: h, Subscribers: subs})
	}
	return out
}
