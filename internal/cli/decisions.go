package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/instruments/internal/infra/persist"
)

var decisionsLimit int

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsLastCmd)
	decisionsCmd.AddCommand(decisionsTailCmd)
	decisionsTailCmd.Flags().IntVar(&decisionsLimit, "limit", 20, "number of recent decisions to print")
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Inspect the supplemental decision log",
}

var decisionsLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the most recently recorded decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		record, ok, err := app.Decisions.LastDecision()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(os.Stdout, "no decisions recorded yet")
			return nil
		}
		printDecision(record)
		return nil
	},
}

var decisionsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the most recent decisions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.Decisions.TailDecisions(decisionsLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(os.Stdout, "no decisions recorded yet")
			return nil
		}
		for _, r := range records {
			printDecision(r)
		}
		return nil
	},
}

func printDecision(r persist.DecisionRecord) {
	fmt.Fprintf(os.Stdout, "%s\t%s\tmethod=%s\tchooser_arg=%g\tnet_benefit=%g\n",
		r.DecidedAt.Format("2006-01-02 15:04:05"), r.Strategy, r.EvalMethod, r.ChooserArg, r.NetBenefit)
}
