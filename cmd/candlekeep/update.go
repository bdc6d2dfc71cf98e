package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [symbols...]",
	Short: "Fetch candles missing since the last stored bar and append them",
	Long: `Extend each symbol's local dataset with the candles missing between the
newest stored bar and now. Symbols that were never fetched fail with a hint
to run 'fetch' first; symbols already current are reported as up to date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		symbols, err := a.resolveSymbols(args)
		if err != nil {
			return err
		}
		if err := a.okx.HealthCheck(cmd.Context()); err != nil {
			return fmt.Errorf("exchange unreachable: %w", err)
		}

		result := a.updater.UpdateMultiple(cmd.Context(), symbols)
		printOutcomes(result.Outcomes)
		fmt.Println(result.Summary())

		if len(result.Failed()) > 0 {
			return fmt.Errorf("%d symbol(s) failed", len(result.Failed()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
