package core

import (
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"
)

// ChainEpoch is a monotonically (non-strictly) increasing logical clock tick
// supplied by the host on every call. The engine never reads a wall clock.
type ChainEpoch = int64

// CreditApproval grants a receiver (optionally restricted to one required
// caller) the ability to spend the granting account's credit, up to an
// optional limit and until an optional expiry epoch.
type CreditApproval struct {
	Limit  *big.Int // nil = unlimited
	Expiry *ChainEpoch
	Used   *big.Int
}

func (a *CreditApproval) clone() *CreditApproval {
	if a == nil {
		return nil
	}
	var expiry *ChainEpoch
	if a.Expiry != nil {
		e := *a.Expiry
		expiry = &e
	}
	return &CreditApproval{Limit: cloneBig(a.Limit), Expiry: expiry, Used: cloneBig(a.Used)}
}

// validAt reports whether the approval is usable at epoch (not expired).
// An approval expires at its Expiry epoch inclusive, matching spec.md §8's
// boundary case: "approval with expiry == current_epoch is treated as
// expired".
func (a *CreditApproval) validAt(epoch ChainEpoch) bool {
	return a.Expiry == nil || epoch < *a.Expiry
}

// Account is one subscriber's credit and capacity ledger.
type Account struct {
	CapacityUsed    *big.Int
	CreditFree      *big.Int
	CreditCommitted *big.Int
	LastDebitEpoch  ChainEpoch

	// Approvals is keyed by receiver, then by required caller. A required
	// caller of AddressWildcard means "any caller accepted", matching the
	// original's Option<Address> == None.
	Approvals map[Address]map[Address]*CreditApproval
}

func newAccount(epoch ChainEpoch) *Account {
	return &Account{
		CapacityUsed:    BigZero(),
		CreditFree:      BigZero(),
		CreditCommitted: BigZero(),
		LastDebitEpoch:  epoch,
		Approvals:       make(map[Address]map[Address]*CreditApproval),
	}
}

// Clone returns a deep copy suitable for returning from a read method
// without exposing internal mutable state to the caller.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := &Account{
		CapacityUsed:    cloneBig(a.CapacityUsed),
		CreditFree:      cloneBig(a.CreditFree),
		CreditCommitted: cloneBig(a.CreditCommitted),
		LastDebitEpoch:  a.LastDebitEpoch,
		Approvals:       make(map[Address]map[Address]*CreditApproval, len(a.Approvals)),
	}
	for receiver, byCaller := range a.Approvals {
		clone := make(map[Address]*CreditApproval, len(byCaller))
		for caller, appr := range byCaller {
			clone[caller] = appr.clone()
		}
		out.Approvals[receiver] = clone
	}
	return out
}

// findApproval looks up the approval a caller (acting as receiver) may use
// to spend this account's credit, preferring an exact caller match and
// falling back to a wildcard approval. It does not check expiry; validAt
// does that.
func (a *Account) findApproval(receiver, caller Address) (*CreditApproval, error) {
	byCaller, ok := a.Approvals[receiver]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if appr, ok := byCaller[caller]; ok {
		return appr, nil
	}
	if appr, ok := byCaller[AddressWildcard]; ok {
		return appr, nil
	}
	return nil, ErrApprovalNotFound
}

// debit settles this account's committed credit up through epoch, charging
// capacity_used * (epoch - last_debit_epoch) against it. It is a no-op if
// epoch equals the account's last debit epoch, and panics on a non-monotone
// epoch per the Open Question decision recorded in SPEC_FULL.md §E.2: a
// replayed or out-of-order epoch is a consensus bug, not a recoverable
// error.
func debit(s *State, addr Address, acct *Account, epoch ChainEpoch) {
	if epoch == acct.LastDebitEpoch {
		return
	}
	if epoch < acct.LastDebitEpoch {
		panic(fmt.Sprintf("core: non-monotone epoch for account %s: %d < %d", addr, epoch, acct.LastDebitEpoch))
	}
	delta := epoch - acct.LastDebitEpoch
	amount := scaleByEpochs(delta, acct.CapacityUsed)
	if amount.Sign() != 0 {
		s.CreditDebited.Add(s.CreditDebited, amount)
		s.CreditCommitted.Sub(s.CreditCommitted, amount)
		acct.CreditCommitted.Sub(acct.CreditCommitted, amount)
		logrus.WithFields(logrus.Fields{
			"account": addr.String(),
			"epoch":   epoch,
			"delta":   delta,
			"debited": amount.String(),
		}).Debug("account debited")
	}
	acct.LastDebitEpoch = epoch
}

// ensureCredit returns an InsufficientFunds error unless free >= required.
// required may be negative (a refund), which always passes.
func ensureCredit(payer Address, free, required *big.Int) error {
	if free.Cmp(required) < 0 {
		return InsufficientFunds(fmt.Errorf("account %s has insufficient credit: free=%s required=%s", payer, free, required))
	}
	return nil
}

// BuyCredit credits atto tokens converted at the genesis rate to addr,
// creating the account on first use. It fails once the subnet is fully
// subscribed (capacity_used == capacity_free), matching spec.md §4.1.
func (s *State) BuyCredit(addr Address, atto *big.Int, epoch ChainEpoch) (*Account, error) {
	if atto == nil || atto.Sign() < 0 {
		return nil, IllegalArgument(fmt.Errorf("token amount must be non-negative"))
	}
	if s.CapacityUsed.Cmp(s.CapacityFree) >= 0 {
		return nil, Capacity(ErrCapacityExhausted)
	}
	credits := creditsForTokens(s.CreditDebitRate, atto)
	s.CreditSold.Add(s.CreditSold, credits)

	acct, ok := s.Accounts[addr]
	if !ok {
		acct = newAccount(epoch)
		s.Accounts[addr] = acct
	}
	acct.CreditFree.Add(acct.CreditFree, credits)
	logrus.WithFields(logrus.Fields{"account": addr.String(), "credits": credits.String()}).Debug("credit bought")
	return acct.Clone(), nil
}

// Approve grants (or replaces) a credit approval from `from` to `receiver`,
// optionally restricted to requiredCaller, with an optional limit and TTL.
// The approval's Used counter carries over from any prior approval under
// the same (receiver, caller) key, matching the original's semantics that
// re-approving does not reset usage.
func (s *State) Approve(from, receiver Address, requiredCaller *Address, limit *big.Int, ttl *ChainEpoch, epoch ChainEpoch) (*CreditApproval, error) {
	acct, ok := s.Accounts[from]
	if !ok {
		return nil, NotFound(fmt.Errorf("account %s not found", from))
	}
	caller := AddressWildcard
	if requiredCaller != nil {
		caller = *requiredCaller
	}
	byCaller, ok := acct.Approvals[receiver]
	if !ok {
		byCaller = make(map[Address]*CreditApproval)
		acct.Approvals[receiver] = byCaller
	}
	used := BigZero()
	if existing, ok := byCaller[caller]; ok {
		used = existing.Used
	}
	if limit != nil && used.Cmp(limit) > 0 {
		return nil, IllegalArgument(fmt.Errorf("limit %s is below already-used %s", limit, used))
	}
	var expiry *ChainEpoch
	if ttl != nil {
		e := epoch + *ttl
		expiry = &e
	}
	appr := &CreditApproval{Limit: cloneBig(limit), Expiry: expiry, Used: used}
	byCaller[caller] = appr
	return appr.clone(), nil
}

// Revoke removes the approval from `from` to `receiver` scoped to
// requiredCaller (or the wildcard approval if requiredCaller is nil).
func (s *State) Revoke(from, receiver Address, requiredCaller *Address) error {
	acct, ok := s.Accounts[from]
	if !ok {
		return NotFound(fmt.Errorf("account %s not found", from))
	}
	caller := AddressWildcard
	if requiredCaller != nil {
		caller = *requiredCaller
	}
	byCaller, ok := acct.Approvals[receiver]
	if !ok {
		return NotFound(ErrApprovalNotFound)
	}
	if _, ok := byCaller[caller]; !ok {
		return NotFound(ErrApprovalNotFound)
	}
	delete(byCaller, caller)
	if len(byCaller) == 0 {
		delete(acct.Approvals, receiver)
	}
	return nil
}

// GetAccount returns a defensive copy of the account at addr, or a
// NotFound error if none exists.
func (s *State) GetAccount(addr Address) (*Account, error) {
	acct, ok := s.Accounts[addr]
	if !ok {
		return nil, NotFound(fmt.Errorf("account %s not found", addr))
	}
	return acct.Clone(), nil
}

// GetCreditApproval is the supplemented read-only lookup from SPEC_FULL.md
// §C.3: check an approval's remaining headroom without replaying approve
// history.
func (s *State) GetCreditApproval(from, receiver Address, requiredCaller *Address) (*CreditApproval, error) {
	acct, ok := s.Accounts[from]
	if !ok {
		return nil, NotFound(fmt.Errorf("account %s not found", from))
	}
	caller := AddressWildcard
	if requiredCaller != nil {
		caller = *requiredCaller
	}
	byCaller, ok := acct.Approvals[receiver]
	if !ok {
		return nil, NotFound(ErrApprovalNotFound)
	}
	appr, ok := byCaller[caller]
	if !ok {
		return nil, NotFound(ErrApprovalNotFound)
	}
	return appr.clone(), nil
}
