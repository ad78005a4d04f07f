package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoku-labs/blobengine/core"
	"github.com/hoku-labs/blobengine/internal/content"
)

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "add, inspect, and retire blob subscriptions",
}

func init() {
	addCmd := &cobra.Command{
		Use:   "add <subscriber> <hash> <metadata-hash> <size> <source>",
		Short: "subscribe to a blob, paying credit for its storage term",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			subscriber, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			hash, err := core.HashFromString(args[1])
			if err != nil {
				return err
			}
			metaHash, err := core.HashFromString(args[2])
			if err != nil {
				return err
			}
			var size uint64
			if _, err := fmt.Sscanf(args[3], "%d", &size); err != nil {
				return fmt.Errorf("invalid size %q: %w", args[3], err)
			}
			source, err := publicKeyFromHex(args[4])
			if err != nil {
				return err
			}
			idRaw, _ := cmd.Flags().GetString("id")
			sponsorRaw, _ := cmd.Flags().GetString("sponsor")
			sponsor, err := optionalAddress(sponsorRaw)
			if err != nil {
				return err
			}
			ttlRaw, _ := cmd.Flags().GetInt64("ttl")
			caller, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			if sponsor != nil {
				callerRaw, _ := cmd.Flags().GetString("caller")
				if callerRaw != "" {
					caller, err = core.AddressFromHex(callerRaw)
					if err != nil {
						return err
					}
				}
			}
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			acct, err := led.AddBlob(subscriber, caller, epoch, core.AddBlobParams{
				Sponsor:      sponsor,
				Source:       source,
				Hash:         hash,
				MetadataHash: metaHash,
				ID:           subscriptionIDFromFlag(idRaw),
				Size:         size,
				TTL:          optionalTTL(ttlRaw),
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}
	addCmd.Flags().String("id", "", "subscription id key bytes (empty = default)")
	addCmd.Flags().String("sponsor", "", "pay using this address's delegated approval instead of subscriber's own credit")
	addCmd.Flags().String("caller", "", "caller identity to present when sponsor is set (defaults to subscriber)")
	addCmd.Flags().Int64("ttl", -1, "epochs to store the blob (default: engine default TTL)")
	addCmd.Flags().Int64("epoch", 0, "current epoch")

	getCmd := &cobra.Command{
		Use:   "get <hash>",
		Short: "show a blob's size, status, and subscribers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.HashFromString(args[0])
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			blob, err := led.GetBlob(hash)
			if err != nil {
				return err
			}
			return printJSON(cmd, blob)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <hash>",
		Short: "show a blob's lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.HashFromString(args[0])
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			status, err := led.GetBlobStatus(hash)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			return nil
		},
	}

	addedCmd := &cobra.Command{
		Use:   "added",
		Short: "list blobs awaiting pickup by the resolver",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetUint32("limit")
			led, err := currentLedger()
			if err != nil {
				return err
			}
			return printJSON(cmd, led.GetAddedBlobs(limit))
		},
	}
	addedCmd.Flags().Uint32("limit", 0, "maximum entries to return (0 = unlimited)")

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "list blobs currently being resolved",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetUint32("limit")
			led, err := currentLedger()
			if err != nil {
				return err
			}
			return printJSON(cmd, led.GetPendingBlobs(limit))
		},
	}
	pendingCmd.Flags().Uint32("limit", 0, "maximum entries to return (0 = unlimited)")

	setPendingCmd := &cobra.Command{
		Use:   "set-pending <subscriber> <hash> <source>",
		Short: "move one subscriber's added-queue entry into the pending queue",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subscriber, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			hash, err := core.HashFromString(args[1])
			if err != nil {
				return err
			}
			source, err := publicKeyFromHex(args[2])
			if err != nil {
				return err
			}
			idRaw, _ := cmd.Flags().GetString("id")
			led, err := currentLedger()
			if err != nil {
				return err
			}
			if err := led.SetBlobPending(source, subscriber, hash, subscriptionIDFromFlag(idRaw)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "blob set pending")
			return nil
		},
	}
	setPendingCmd.Flags().String("id", "", "subscription id key bytes (empty = default)")

	finalizeCmd := &cobra.Command{
		Use:   "finalize <subscriber> <hash> <resolved|failed>",
		Short: "record the resolver's terminal verdict for one subscription",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			subscriber, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			hash, err := core.HashFromString(args[1])
			if err != nil {
				return err
			}
			var status core.BlobStatus
			switch args[2] {
			case "resolved":
				status = core.BlobStatusResolved
			case "failed":
				status = core.BlobStatusFailed
			default:
				return fmt.Errorf("status must be \"resolved\" or \"failed\", got %q", args[2])
			}
			idRaw, _ := cmd.Flags().GetString("id")
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			if err := led.FinalizeBlob(subscriber, hash, subscriptionIDFromFlag(idRaw), status, epoch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "blob finalized")
			return nil
		},
	}
	finalizeCmd.Flags().String("id", "", "subscription id key bytes (empty = default)")
	finalizeCmd.Flags().Int64("epoch", 0, "current epoch")

	deleteCmd := &cobra.Command{
		Use:   "delete <caller> <hash>",
		Short: "end a subscription, refunding any unused committed credit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := core.AddressFromHex(args[0])
			if err != nil {
				return err
			}
			hash, err := core.HashFromString(args[1])
			if err != nil {
				return err
			}
			idRaw, _ := cmd.Flags().GetString("id")
			sponsorRaw, _ := cmd.Flags().GetString("sponsor")
			sponsor, err := optionalAddress(sponsorRaw)
			if err != nil {
				return err
			}
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			acct, err := led.DeleteBlob(caller, sponsor, hash, subscriptionIDFromFlag(idRaw), epoch)
			if err != nil {
				return err
			}
			return printJSON(cmd, acct)
		},
	}
	deleteCmd.Flags().String("id", "", "subscription id key bytes (empty = default)")
	deleteCmd.Flags().String("sponsor", "", "delete a subscription held by this sponsor instead of caller's own")
	deleteCmd.Flags().Int64("epoch", 0, "current epoch")

	debitCmd := &cobra.Command{
		Use:   "debit-accounts",
		Short: "run the per-epoch maintenance tick: settle debits and reap expired subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			if err := led.DebitAccounts(epoch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "accounts debited")
			return nil
		},
	}
	debitCmd.Flags().Int64("epoch", 0, "current epoch")

	cidCmd := &cobra.Command{
		Use:   "cid <hash>",
		Short: "show a blob hash in its CIDv1 display form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.HashFromString(args[0])
			if err != nil {
				return err
			}
			c, err := content.FromHash(hash)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.String())
			return nil
		},
	}

	blobCmd.AddCommand(addCmd, getCmd, statusCmd, addedCmd, pendingCmd, setPendingCmd, finalizeCmd, deleteCmd, debitCmd, cidCmd)
}
