package core

import "math/big"

// BigZero returns a fresh zero-valued big.Int. Every counter in State and
// Account is allocated this way so callers never share backing storage.
func BigZero() *big.Int {
	return big.NewInt(0)
}

// cloneBig returns a deep copy of v, or nil if v is nil.
func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// byteBlockCost computes size * epochs as an exact big integer: the
// "byte-block" cost unit spec.md §2 defines for storing size bytes across
// epochs epochs. epochs may be negative (a subscription shortened in place),
// in which case the result is negative and represents a credit refund.
func byteBlockCost(size uint64, epochs int64) *big.Int {
	cost := new(big.Int).SetUint64(size)
	return cost.Mul(cost, big.NewInt(epochs))
}

// scaleByEpochs multiplies an arbitrary-precision amount (e.g. an account's
// aggregate capacity_used) by a signed epoch delta, used by debit
// bookkeeping where the scaled quantity is not a single blob's u64 size.
func scaleByEpochs(epochs int64, amount *big.Int) *big.Int {
	return new(big.Int).Mul(big.NewInt(epochs), amount)
}

// creditsForTokens converts an amount of atto-tokens into credits at the
// genesis-fixed credit_debit_rate.
func creditsForTokens(rate uint64, attoTokens *big.Int) *big.Int {
	r := new(big.Int).SetUint64(rate)
	return r.Mul(r, attoTokens)
}
