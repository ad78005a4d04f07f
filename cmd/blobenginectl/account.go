package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/hoku-labs/blobengine/core"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "buy credit, manage approvals, and inspect account ledgers",
}

func init() {
	buyCmd := &cobra.Command{
		Use:   "buy-credit <address> <atto-tokens>",
		Short: "mint credit for an address at the genesis credit_debit_rate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			atto, ok := new(big.Int).SetString(args[1], 10)
			if !ok {
				return fmt.Errorf("invalid atto-token amount %q", args[1])
			}
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			acct, err := led.BuyCredit(addr, atto, epoch)
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}
	buyCmd.Flags().Int64("epoch", 0, "current epoch")

	approveCmd := &cobra.Command{
		Use:   "approve <from> <receiver>",
		Short: "grant a credit approval from from to receiver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			receiver, err := core.AddressFromHex(args[1])
			if err != nil {
				return err
			}
			requiredCallerRaw, _ := cmd.Flags().GetString("caller")
			requiredCaller, err := optionalAddress(requiredCallerRaw)
			if err != nil {
				return err
			}
			limitRaw, _ := cmd.Flags().GetString("limit")
			var limit *big.Int
			if limitRaw != "" {
				l, ok := new(big.Int).SetString(limitRaw, 10)
				if !ok {
					return fmt.Errorf("invalid --limit %q", limitRaw)
				}
				limit = l
			}
			ttlRaw, _ := cmd.Flags().GetInt64("ttl")
			ttl := optionalTTL(ttlRaw)
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			appr, err := led.ApproveCredit(from, receiver, requiredCaller, limit, ttl, epoch)
			if err != nil {
				return err
			}
			return printJSON(cmd, appr)
		},
	}
	approveCmd.Flags().Int64("epoch", 0, "current epoch")
	approveCmd.Flags().String("caller", "", "restrict the approval to this caller address (default: any caller)")
	approveCmd.Flags().String("limit", "", "maximum cumulative credit the approval may spend (default: unlimited)")
	approveCmd.Flags().Int64("ttl", -1, "epochs until the approval expires (default: never)")

	revokeCmd := &cobra.Command{
		Use:   "revoke <from> <receiver>",
		Short: "revoke a credit approval",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			receiver, err := core.AddressFromHex(args[1])
			if err != nil {
				return err
			}
			requiredCallerRaw, _ := cmd.Flags().GetString("caller")
			requiredCaller, err := optionalAddress(requiredCallerRaw)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			if err := led.RevokeCredit(from, receiver, requiredCaller); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "approval revoked")
			return nil
		},
	}
	revokeCmd.Flags().String("caller", "", "the caller the approval to revoke was restricted to")

	getCmd := &cobra.Command{
		Use:   "get <address>",
		Short: "show an account's balances and approvals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			acct, err := led.GetAccount(addr)
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}

	getApprovalCmd := &cobra.Command{
		Use:   "get-approval <from> <receiver>",
		Short: "look up an approval's remaining headroom without replaying approve history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			receiver, err := core.AddressFromHex(args[1])
			if err != nil {
				return err
			}
			requiredCallerRaw, _ := cmd.Flags().GetString("caller")
			requiredCaller, err := optionalAddress(requiredCallerRaw)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			appr, err := led.GetCreditApproval(from, receiver, requiredCaller)
			if err != nil {
				return err
			}
			return printJSON(cmd, appr)
		},
	}
	getApprovalCmd.Flags().String("caller", "", "the caller the approval is restricted to")

	accountCmd.AddCommand(buyCmd, approveCmd, revokeCmd, getCmd, getApprovalCmd)
}

func epochFlag(cmd *cobra.Command) (core.ChainEpoch, error) {
	n, err := cmd.Flags().GetInt64("epoch")
	if err != nil {
		return 0, err
	}
	return core.ChainEpoch(n), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
