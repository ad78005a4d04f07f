package core

import (
	"encoding/base32"
	"errors"
	"fmt"
	"strings"

	"lukechampine.com/blake3"
)

// HashSize is the width of a content hash in bytes (BLAKE3-256).
const HashSize = 32

// Hash is a BLAKE3-256 content digest. It identifies blob content and backs
// request ids and non-default subscription ids, exactly as in
// shared/src/state.rs's Hash type.
type Hash [HashSize]byte

var hashEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// HashBytes returns the BLAKE3-256 digest of data.
func HashBytes(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// String renders the hash as the 52-character lowercase, unpadded base32
// form used throughout logs and the CLI.
func (h Hash) String() string {
	return strings.ToLower(hashEncoding.EncodeToString(h[:]))
}

// IsZero reports whether h is the all-zero sentinel (an absent hash field).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromString parses the lowercase base32 display form back into a Hash.
func HashFromString(s string) (Hash, error) {
	b, err := hashEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return Hash{}, errors.New("invalid hash: wrong length")
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// PublicKey identifies the off-chain source (e.g. an Iroh node) that
// supplied a subscription's content.
type PublicKey [32]byte

func (p PublicKey) String() string {
	return strings.ToLower(hashEncoding.EncodeToString(p[:]))
}

// IsZero reports whether p is unset.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// SubscriptionId distinguishes multiple subscriptions a single subscriber
// holds against the same blob. The zero value is the "default" id; any
// other id is derived by BLAKE3-hashing caller-supplied key bytes, matching
// shared/src/state.rs's SubscriptionId::from(Vec<u8>) collapsing rule.
type SubscriptionId struct {
	isDefault bool
	key       [32]byte
}

// DefaultSubscriptionID is the subscription id used when no key is given.
var DefaultSubscriptionID = SubscriptionId{isDefault: true}

// SubscriptionIDFromBytes builds a SubscriptionId from caller-supplied key
// bytes. Empty input collapses to DefaultSubscriptionID.
func SubscriptionIDFromBytes(b []byte) SubscriptionId {
	if len(b) == 0 {
		return DefaultSubscriptionID
	}
	return SubscriptionId{key: blake3.Sum256(b)}
}

// IsDefault reports whether id is the default subscription id.
func (id SubscriptionId) IsDefault() bool {
	return id.isDefault
}

func (id SubscriptionId) String() string {
	if id.isDefault {
		return "default"
	}
	return strings.ToLower(hashEncoding.EncodeToString(id.key[:]))
}
