// Package content wraps engine hashes as CIDv1/raw multihashes so logs, the
// CLI, and the local resolver worker speak the same content-addressing
// idiom as the wider IPFS-adjacent ecosystem, the way the teacher's
// core/storage.go wraps SHA-256 digests as CIDs before handing them to an
// IPFS gateway.
package content

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/hoku-labs/blobengine/core"
)

// FromHash builds a CIDv1 raw-codec CID from an engine Hash. The hash is
// already a 32-byte BLAKE3 digest, so it is wrapped as a pre-computed
// multihash rather than re-digested, matching mh.Sum's pre-hashed variant.
func FromHash(h core.Hash) (cid.Cid, error) {
	encoded, err := mh.Encode(h[:], mh.BLAKE3)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("content: encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, encoded), nil
}

// ToHash recovers the engine Hash backing a CID produced by FromHash. It
// fails if c's digest is not a 32-byte BLAKE3 multihash.
func ToHash(c cid.Cid) (core.Hash, error) {
	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return core.Hash{}, fmt.Errorf("content: decode multihash: %w", err)
	}
	if decoded.Code != mh.BLAKE3 {
		return core.Hash{}, fmt.Errorf("content: unexpected multihash code %d", decoded.Code)
	}
	if len(decoded.Digest) != core.HashSize {
		return core.Hash{}, fmt.Errorf("content: digest is %d bytes, want %d", len(decoded.Digest), core.HashSize)
	}
	var h core.Hash
	copy(h[:], decoded.Digest)
	return h, nil
}

// String renders h as its CIDv1 display form, falling back to the bare
// base32 hash string if multihash encoding somehow fails (it never does for
// a fixed-width BLAKE3 digest, but callers like log lines should not panic).
func String(h core.Hash) string {
	c, err := FromHash(h)
	if err != nil {
		return h.String()
	}
	return c.String()
}
