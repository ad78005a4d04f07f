// Command blobenginectl is the operator CLI for the blob credit and
// subscription engine: one subcommand per method-surface entry point in
// spec.md §6, grounded in the teacher's cmd/cli one-file-per-concern layout
// and its sync.Once-guarded package-level ledger handle.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "blobenginectl",
		Short: "operate a blob credit & subscription engine ledger",
	}
	root.PersistentFlags().StringVar(&ledgerPath, "snapshot", "blobengine.snapshot", "path to the state snapshot file")
	root.PersistentFlags().Uint64Var(&genesisCapacity, "genesis-capacity", 1<<40, "genesis capacity in bytes (only used if no snapshot exists yet)")
	root.PersistentFlags().Uint64Var(&genesisRate, "genesis-rate", 1000, "genesis credit_debit_rate (only used if no snapshot exists yet)")

	root.AddCommand(accountCmd)
	root.AddCommand(blobCmd)
	root.AddCommand(readRequestCmd)
	root.AddCommand(statsCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
