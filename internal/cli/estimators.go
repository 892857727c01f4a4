package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(estimatorsCmd)
	estimatorsCmd.AddCommand(estimatorsListCmd)
	estimatorsCmd.AddCommand(estimatorsShowCmd)
}

var estimatorsCmd = &cobra.Command{
	Use:   "estimators",
	Short: "Inspect registered estimators",
}

var estimatorsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered estimator and its current estimate",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		names := app.Registry.Names()
		sort.Strings(names)
		for _, name := range names {
			e, err := app.Registry.Get(name)
			if err != nil {
				return err
			}
			if e.HasEstimate() {
				fmt.Fprintf(os.Stdout, "%s\t%g\n", name, e.Estimate())
			} else {
				fmt.Fprintf(os.Stdout, "%s\t(no observations yet)\n", name)
			}
		}
		return nil
	},
}

var estimatorsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show one estimator's current estimate and range hints",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		e, err := app.Registry.Get(args[0])
		if err != nil {
			return fmt.Errorf("estimator %q: %w", args[0], err)
		}

		fmt.Fprintf(os.Stdout, "name: %s\n", e.Name())
		if e.HasEstimate() {
			fmt.Fprintf(os.Stdout, "estimate: %g\n", e.Estimate())
		} else {
			fmt.Fprintln(os.Stdout, "estimate: (no observations yet)")
		}
		if min, max, bins, ok := e.RangeHints(); ok {
			fmt.Fprintf(os.Stdout, "range hints: [%g, %g] in %d bins\n", min, max, bins)
		}
		return nil
	},
}
