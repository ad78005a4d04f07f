package core

import (
	"fmt"
	"math/big"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LedgerConfig configures a Ledger at construction time.
type LedgerConfig struct {
	// SnapshotPath, if set, is read at startup (if it exists) to restore
	// state, and written after every mutating call.
	SnapshotPath string
	// Capacity is the subnet's total storage capacity in bytes, used only
	// when no snapshot exists to restore from.
	Capacity uint64
	// CreditDebitRate is the genesis byte-blocks-per-atto-token rate, fixed
	// for the life of the subnet.
	CreditDebitRate uint64
}

// Ledger is a mutex-guarded State with snapshot persistence, the host-facing
// entry point every cmd/ binary talks to. It mirrors the teacher's
// core/ledger.go shape (mutex-guarded state, logrus per-transition logging,
// disk persistence) trimmed to a snapshot-only store: this engine has no
// block or WAL concept of its own, since the host chain owns block
// production (spec.md §1).
type Ledger struct {
	mu           sync.RWMutex
	state        *State
	snapshotPath string
}

// NewLedger constructs a Ledger, restoring from cfg.SnapshotPath if it
// exists and is non-empty, or initializing genesis state otherwise.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	l := &Ledger{snapshotPath: cfg.SnapshotPath}
	if cfg.SnapshotPath != "" {
		data, err := os.ReadFile(cfg.SnapshotPath)
		switch {
		case err == nil && len(data) > 0:
			st, derr := DecodeState(data)
			if derr != nil {
				return nil, fmt.Errorf("decode snapshot %s: %w", cfg.SnapshotPath, derr)
			}
			l.state = st
			logrus.WithField("path", cfg.SnapshotPath).Info("restored blob engine state from snapshot")
			return l, nil
		case err != nil && !os.IsNotExist(err):
			return nil, fmt.Errorf("read snapshot %s: %w", cfg.SnapshotPath, err)
		}
	}
	l.state = NewState(cfg.Capacity, cfg.CreditDebitRate)
	logrus.WithFields(logrus.Fields{
		"capacity": cfg.Capacity, "credit_debit_rate": cfg.CreditDebitRate,
	}).Info("initialized blob engine genesis state")
	return l, nil
}

// Snapshot writes the current state to snapshotPath atomically (write to a
// temp file, then rename). A no-op if no snapshot path was configured.
func (l *Ledger) Snapshot() error {
	l.mu.RLock()
	data, err := EncodeState(l.state)
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if l.snapshotPath == "" {
		return nil
	}
	tmp := l.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, l.snapshotPath); err != nil {
		return fmt.Errorf("rename snapshot temp file: %w", err)
	}
	logrus.WithField("path", l.snapshotPath).Debug("blob engine state snapshot written")
	return nil
}

// Close flushes a final snapshot.
func (l *Ledger) Close() error {
	return l.Snapshot()
}

// StateRoot returns the state-root hash of the current state.
func (l *Ledger) StateRoot() (Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return ComputeStateRoot(l.state)
}

// View runs fn holding the read lock, for read-only multi-field access
// beyond the single-method wrappers below.
func (l *Ledger) View(fn func(*State)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fn(l.state)
}

func (l *Ledger) snapshotAfter(err error) error {
	if err != nil {
		return err
	}
	if serr := l.Snapshot(); serr != nil {
		logrus.WithError(serr).Warn("failed to persist state snapshot")
	}
	return nil
}

// BuyCredit is Ledger's locked wrapper around State.BuyCredit.
func (l *Ledger) BuyCredit(addr Address, atto *big.Int, epoch ChainEpoch) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, err := l.state.BuyCredit(addr, atto, epoch)
	if err := l.snapshotAfter(err); err != nil {
		return nil, err
	}
	return acct, err
}

// ApproveCredit is Ledger's locked wrapper around State.Approve.
func (l *Ledger) ApproveCredit(from, receiver Address, requiredCaller *Address, limit *big.Int, ttl *ChainEpoch, epoch ChainEpoch) (*CreditApproval, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	appr, err := l.state.Approve(from, receiver, requiredCaller, limit, ttl, epoch)
	if err := l.snapshotAfter(err); err != nil {
		return nil, err
	}
	return appr, err
}

// RevokeCredit is Ledger's locked wrapper around State.Revoke.
func (l *Ledger) RevokeCredit(from, receiver Address, requiredCaller *Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotAfter(l.state.Revoke(from, receiver, requiredCaller))
}

// GetAccount is Ledger's locked wrapper around State.GetAccount.
func (l *Ledger) GetAccount(addr Address) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetAccount(addr)
}

// GetCreditApproval is Ledger's locked wrapper around State.GetCreditApproval.
func (l *Ledger) GetCreditApproval(from, receiver Address, requiredCaller *Address) (*CreditApproval, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetCreditApproval(from, receiver, requiredCaller)
}

// AddBlob is Ledger's locked wrapper around State.AddBlob.
func (l *Ledger) AddBlob(subscriber, caller Address, epoch ChainEpoch, p AddBlobParams) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, err := l.state.AddBlob(subscriber, caller, epoch, p)
	if err := l.snapshotAfter(err); err != nil {
		return nil, err
	}
	return acct, err
}

// SetBlobPending is Ledger's locked wrapper around State.SetBlobPending.
func (l *Ledger) SetBlobPending(source PublicKey, subscriber Address, hash Hash, id SubscriptionId) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotAfter(l.state.SetBlobPending(source, subscriber, hash, id))
}

// FinalizeBlob is Ledger's locked wrapper around State.FinalizeBlob.
func (l *Ledger) FinalizeBlob(subscriber Address, hash Hash, id SubscriptionId, status BlobStatus, epoch ChainEpoch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotAfter(l.state.FinalizeBlob(subscriber, hash, id, status, epoch))
}

// DeleteBlob is Ledger's locked wrapper around State.DeleteBlob.
func (l *Ledger) DeleteBlob(caller Address, sponsor *Address, hash Hash, id SubscriptionId, epoch ChainEpoch) (*Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, err := l.state.DeleteBlob(caller, sponsor, hash, id, epoch)
	if err := l.snapshotAfter(err); err != nil {
		return nil, err
	}
	return acct, err
}

// DebitAccounts is Ledger's locked wrapper around State.DebitAccounts, the
// per-epoch maintenance tick the host calls once per new epoch.
func (l *Ledger) DebitAccounts(epoch ChainEpoch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.DebitAccounts(epoch)
	return l.snapshotAfter(nil)
}

// GetBlob is Ledger's locked wrapper around State.GetBlob.
func (l *Ledger) GetBlob(hash Hash) (*Blob, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetBlob(hash)
}

// GetBlobStatus is Ledger's locked wrapper around State.GetBlobStatus.
func (l *Ledger) GetBlobStatus(hash Hash) (BlobStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetBlobStatus(hash)
}

// GetAddedBlobs is Ledger's locked wrapper around State.GetAddedBlobs.
func (l *Ledger) GetAddedBlobs(limit uint32) []QueueEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetAddedBlobs(limit)
}

// GetPendingBlobs is Ledger's locked wrapper around State.GetPendingBlobs.
func (l *Ledger) GetPendingBlobs(limit uint32) []QueueEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetPendingBlobs(limit)
}

// GetStats is Ledger's locked wrapper around State.GetStats.
func (l *Ledger) GetStats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetStats()
}

// OpenReadRequest is Ledger's locked wrapper around State.OpenReadRequest.
func (l *Ledger) OpenReadRequest(hash Hash, offset uint32, callbackAddr Address, callbackMethod uint64, epoch ChainEpoch) (Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, err := l.state.OpenReadRequest(hash, offset, callbackAddr, callbackMethod, epoch)
	if err := l.snapshotAfter(err); err != nil {
		return Hash{}, err
	}
	return id, err
}

// CloseReadRequest is Ledger's locked wrapper around State.CloseReadRequest.
func (l *Ledger) CloseReadRequest(id Hash) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotAfter(l.state.CloseReadRequest(id))
}

// GetOpenReadRequests is Ledger's locked wrapper around
// State.GetOpenReadRequests.
func (l *Ledger) GetOpenReadRequests(limit uint32) []*ReadRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.GetOpenReadRequests(limit)
}
