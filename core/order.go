package core

import (
	"bytes"
	"sort"
)

// sortedAddressKeys returns m's keys in ascending byte order. Every
// transition that ranges over Accounts must use this instead of a bare
// range, since Go's map iteration order is randomized and this engine's
// output must replay identically across validators (spec.md §5).
func sortedAddressKeys[V any](m map[Address]V) []Address {
	out := make([]Address, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// sortedHashKeys returns m's keys in ascending byte order.
func sortedHashKeys[V any](m map[Hash]V) []Hash {
	out := make([]Hash, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func subscriptionIDLess(a, b SubscriptionId) bool {
	if a.isDefault != b.isDefault {
		return a.isDefault
	}
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// sortedSubscriptionIDs returns g's subscription ids in ascending order
// (default first, then ascending key bytes).
func sortedSubscriptionIDs(g *SubscriptionGroup) []SubscriptionId {
	out := make([]SubscriptionId, 0, len(g.Subscriptions))
	for id := range g.Subscriptions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return subscriptionIDLess(out[i], out[j]) })
	return out
}
