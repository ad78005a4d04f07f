package main

import "github.com/spf13/cobra"

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "show subnet-wide counters (credit sold/committed/debited, capacity, queue depth)",
	RunE: func(cmd *cobra.Command, args []string) error {
		led, err := currentLedger()
		if err != nil {
			return err
		}
		return printJSON(cmd, led.GetStats())
	},
}
