package core

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the width of an Address in bytes. The engine treats
// addresses as opaque byte identities (actor ID or public-key derived); it
// never interprets their internal structure.
const AddressSize = 20

// Address is an opaque account identity. Equality and ordering are
// byte-wise, matching the teacher's Address type in core/common_structs.go.
type Address [AddressSize]byte

// AddressWildcard is the sentinel used as a credit-approval "caller" key
// when ApproveCreditParams.RequiredCaller is nil (any caller accepted). The
// zero address is never assigned to a real account by this engine.
var AddressWildcard = Address{}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Less reports whether a sorts before b in the byte-wise ascending order
// every deterministic iteration in this package relies on.
func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// AddressFromHex parses a "0x"-prefixed or bare hex string into an Address.
func AddressFromHex(s string) (Address, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("invalid address %q: want %d bytes, got %d", s, AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}
