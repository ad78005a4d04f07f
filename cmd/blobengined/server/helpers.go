package server

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hoku-labs/blobengine/core"
)

func decodePublicKey(s string) (core.PublicKey, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return core.PublicKey{}, fmt.Errorf("invalid source %q: %w", s, err)
	}
	if len(b) != 32 {
		return core.PublicKey{}, fmt.Errorf("source %q must be 32 bytes, got %d", s, len(b))
	}
	var pk core.PublicKey
	copy(pk[:], b)
	return pk, nil
}

// subscriptionIDFromHex mirrors blobenginectl's --id flag handling: an empty
// string collapses to the default subscription id, anything else is taken as
// the raw key bytes.
func subscriptionIDFromHex(s string) (core.SubscriptionId, error) {
	return core.SubscriptionIDFromBytes([]byte(s)), nil
}
