package core

import (
	"bytes"
	"encoding/binary"
	"sort"

	"lukechampine.com/blake3"
)

// ReadRequest is an open request for a byte range of a resolved blob,
// fulfilled off-chain and reported back via a callback address/method.
type ReadRequest struct {
	BlobHash       Hash
	Offset         uint32
	CallbackAddr   Address
	CallbackMethod uint64
}

// ComputeRequestID derives the deterministic request id
// BLAKE3(hash || offset || callback_addr || callback_method || epoch) per
// spec.md §4.7.
func ComputeRequestID(hash Hash, offset uint32, callbackAddr Address, callbackMethod uint64, epoch ChainEpoch) Hash {
	var buf bytes.Buffer
	buf.Write(hash[:])
	var offsetBuf [4]byte
	binary.BigEndian.PutUint32(offsetBuf[:], offset)
	buf.Write(offsetBuf[:])
	buf.Write(callbackAddr[:])
	var methodBuf [8]byte
	binary.BigEndian.PutUint64(methodBuf[:], callbackMethod)
	buf.Write(methodBuf[:])
	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], uint64(epoch))
	buf.Write(epochBuf[:])
	return Hash(blake3.Sum256(buf.Bytes()))
}

// ReadRequestIndex is the ordered RequestId -> ReadRequest table backing
// OpenReadRequest/CloseReadRequest/GetOpenReadRequests.
type ReadRequestIndex struct {
	requests map[Hash]*ReadRequest
}

func newReadRequestIndex() *ReadRequestIndex {
	return &ReadRequestIndex{requests: make(map[Hash]*ReadRequest)}
}

// Open registers req under id, failing if id already exists (a hash
// collision the caller must retry with different parameters).
func (x *ReadRequestIndex) Open(id Hash, req *ReadRequest) error {
	if _, exists := x.requests[id]; exists {
		return IllegalState(ErrDuplicateReadRequest)
	}
	x.requests[id] = req
	return nil
}

// Close removes the request at id, failing if it does not exist.
func (x *ReadRequestIndex) Close(id Hash) error {
	if _, ok := x.requests[id]; !ok {
		return NotFound(ErrReadRequestNotFound)
	}
	delete(x.requests, id)
	return nil
}

// Get returns the request at id, if any.
func (x *ReadRequestIndex) Get(id Hash) (*ReadRequest, bool) {
	r, ok := x.requests[id]
	return r, ok
}

// List returns every open request id in ascending byte order.
func (x *ReadRequestIndex) List() []Hash {
	ids := make([]Hash, 0, len(x.requests))
	for id := range x.requests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// Len reports the number of open read requests.
func (x *ReadRequestIndex) Len() int {
	return len(x.requests)
}
