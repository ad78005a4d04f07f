package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hoku-labs/blobengine/core"
)

var readRequestCmd = &cobra.Command{
	Use:   "read-request",
	Short: "open, close, and list read requests against resolved blobs",
}

func init() {
	openCmd := &cobra.Command{
		Use:   "open <hash> <offset> <callback-addr> <callback-method>",
		Short: "register a read of a resolved blob, returning its request id",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.HashFromString(args[0])
			if err != nil {
				return err
			}
			var offset uint32
			if _, err := fmt.Sscanf(args[1], "%d", &offset); err != nil {
				return fmt.Errorf("invalid offset %q: %w", args[1], err)
			}
			callbackAddr, err := core.AddressFromHex(args[2])
			if err != nil {
				return err
			}
			var method uint64
			if _, err := fmt.Sscanf(args[3], "%d", &method); err != nil {
				return fmt.Errorf("invalid callback method %q: %w", args[3], err)
			}
			epoch, err := epochFlag(cmd)
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			id, err := led.OpenReadRequest(hash, offset, callbackAddr, method, epoch)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id.String())
			return nil
		},
	}
	openCmd.Flags().Int64("epoch", 0, "current epoch")

	closeCmd := &cobra.Command{
		Use:   "close <request-id>",
		Short: "close a fulfilled or abandoned read request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.HashFromString(args[0])
			if err != nil {
				return err
			}
			led, err := currentLedger()
			if err != nil {
				return err
			}
			if err := led.CloseReadRequest(id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "read request closed")
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list open read requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetUint32("limit")
			led, err := currentLedger()
			if err != nil {
				return err
			}
			return printJSON(cmd, led.GetOpenReadRequests(limit))
		},
	}
	listCmd.Flags().Uint32("limit", 0, "maximum entries to return (0 = unlimited)")

	readRequestCmd.AddCommand(openCmd, closeCmd, listCmd)
}
