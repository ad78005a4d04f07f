package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/hoku-labs/blobengine/core"
)

func publicKeyFromHex(s string) (core.PublicKey, error) {
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

func subscriptionIDFromFlag(s string) core.SubscriptionId {
	return core.SubscriptionIDFromBytes([]byte(s))
}

func optionalTTL(raw int64) *core.ChainEpoch {
	if raw < 0 {
		return nil
	}
	ttl := core.ChainEpoch(raw)
	return &ttl
}

func optionalAddress(raw string) (*core.Address, error) {
	if raw == "" {
		return nil, nil
	}
	addr, err := core.AddressFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &addr, nil
}
