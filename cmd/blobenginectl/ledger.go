package main

import (
	"sync"

	"github.com/hoku-labs/blobengine/core"
)

var (
	ledgerPath      string
	genesisCapacity uint64
	genesisRate     uint64

	ledgerOnce sync.Once
	ledger     *core.Ledger
	ledgerErr  error
)

// currentLedger lazily opens (or initializes) the ledger snapshot named by
// the --snapshot flag, mirroring the teacher's core.CurrentLedger()
// package-level singleton.
func currentLedger() (*core.Ledger, error) {
	ledgerOnce.Do(func() {
		ledger, ledgerErr = core.NewLedger(core.LedgerConfig{
			SnapshotPath:    ledgerPath,
			Capacity:        genesisCapacity,
			CreditDebitRate: genesisRate,
		})
	})
	return ledger, ledgerErr
}
