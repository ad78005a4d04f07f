// Package resolver models the off-chain network (spec.md calls it Iroh)
// that fetches blob bytes and reports Resolved/Failed back through
// finalize_blob. The engine never calls this package itself — a host
// process wires added/pending queue entries to a real resolver and feeds
// results back into the ledger — but the interface and a mock
// implementation live here so cmd/blobengined and tests have something
// concrete to drive, the way the teacher's core/storage.go wraps an actual
// IPFS gateway behind a small Go interface instead of scattering raw HTTP
// calls through the caller.
package resolver

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/hoku-labs/blobengine/core"
)

// Status is the terminal verdict a resolver reports for one blob.
type Status int

const (
	// StatusResolved indicates the resolver retrieved and verified the
	// blob's bytes against its hash.
	StatusResolved Status = iota
	// StatusFailed indicates the resolver could not retrieve the blob
	// (source unreachable, content unavailable, digest mismatch).
	StatusFailed
)

func (s Status) engineStatus() core.BlobStatus {
	if s == StatusResolved {
		return core.BlobStatusResolved
	}
	return core.BlobStatusFailed
}

// Request is one unit of fetch work handed to a resolver: a blob hash, its
// size (for client-side transfer bookkeeping), and the source node that
// advertised it.
type Request struct {
	Hash   core.Hash
	Size   uint64
	Source core.PublicKey
}

// Callback is invoked by a Client once it reaches a terminal verdict for a
// request. Implementations typically close over a *core.Ledger and call
// FinalizeBlob; it is not this package's job to know the ledger's shape.
type Callback func(ctx context.Context, hash core.Hash, status Status) error

// Client is the resolver-facing boundary spec.md §1 calls "a separate
// off-chain network... referenced only through its interface". Fetch is
// fire-and-forget from the engine's perspective: the engine's only
// visibility into its outcome is the later finalize_blob call the
// implementation's Callback drives.
type Client interface {
	// Fetch begins resolving req, eventually invoking cb with a terminal
	// status. Implementations may fetch synchronously or hand off to a
	// background worker; Fetch itself should not block on network I/O
	// longer than it takes to enqueue the work.
	Fetch(ctx context.Context, req Request, cb Callback) error
}

// MockConfig configures a MockClient.
type MockConfig struct {
	// CacheSize bounds the number of recently-seen hashes MockClient
	// remembers, standing in for an Iroh node's local content cache
	// (teacher's core/storage.go diskLRU, here in-memory and keyed by
	// hash instead of CID string).
	CacheSize int
	// AlwaysResolve, when true, makes every Fetch report StatusResolved
	// immediately. Used by tests that don't care about failure paths.
	AlwaysResolve bool
}

// MockClient is an in-memory Client for local development and tests: it
// never performs network I/O, decides Resolved vs Failed from its planned
// verdicts and AlwaysResolve, records each fetched hash in a bounded LRU
// (see Seen), and invokes the callback synchronously.
type MockClient struct {
	mu      sync.Mutex
	cache   *lru.Cache[core.Hash, struct{}]
	always  bool
	planned map[core.Hash]Status
}

// NewMockClient builds a MockClient. A nil or zero CacheSize defaults to
// 1024 entries.
func NewMockClient(cfg MockConfig) (*MockClient, error) {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[core.Hash, struct{}](size)
	if err != nil {
		return nil, fmt.Errorf("resolver: new lru cache: %w", err)
	}
	return &MockClient{cache: cache, always: cfg.AlwaysResolve, planned: make(map[core.Hash]Status)}, nil
}

// Plan fixes the verdict MockClient reports the next time hash is fetched,
// letting tests exercise the Failed path deterministically. Planning a hash
// that AlwaysResolve would otherwise resolve takes precedence.
func (m *MockClient) Plan(hash core.Hash, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planned[hash] = status
}

// Fetch resolves req synchronously against the planned verdict (if any),
// AlwaysResolve, or else StatusFailed, recording hash in the recently-seen
// cache before invoking cb.
func (m *MockClient) Fetch(ctx context.Context, req Request, cb Callback) error {
	m.mu.Lock()
	status, planned := m.planned[req.Hash]
	if planned {
		delete(m.planned, req.Hash)
	}
	m.cache.Add(req.Hash, struct{}{})
	m.mu.Unlock()

	if !planned {
		status = StatusFailed
		if m.always {
			status = StatusResolved
		}
	}

	logrus.WithFields(logrus.Fields{
		"hash":   req.Hash.String(),
		"source": req.Source.String(),
		"status": status.engineStatus().String(),
	}).Debug("mock resolver fetch complete")

	return cb(ctx, req.Hash, status)
}

// Seen reports whether hash is present in the recently-fetched cache.
func (m *MockClient) Seen(hash core.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Contains(hash)
}

// EngineStatus exposes Status.engineStatus for callers (e.g.
// cmd/blobengined's resolver worker) that need to translate a resolver
// verdict into the core.BlobStatus FinalizeBlob expects.
func EngineStatus(s Status) core.BlobStatus {
	return s.engineStatus()
}
