package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tutu-network/instruments/internal/infra/strategy"
)

func init() {
	rootCmd.AddCommand(strategiesCmd)
	strategiesCmd.AddCommand(strategiesListCmd)
	strategiesCmd.AddCommand(strategiesChooseCmd)
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Inspect registered strategies and drive the chooser",
}

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every singular and redundant strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Fprintln(os.Stdout, "singular:")
		for _, s := range app.Singulars {
			printStrategy(s)
		}
		fmt.Fprintln(os.Stdout, "redundant:")
		for _, s := range app.Redundants {
			printStrategy(s)
		}
		return nil
	},
}

func printStrategy(s strategy.Strategy) {
	fmt.Fprintf(os.Stdout, "  %s\tuses=%v", s.Name(), s.Uses())
	if children := s.Children(); len(children) > 0 {
		names := make([]string, len(children))
		for i, c := range children {
			names[i] = c.Name()
		}
		fmt.Fprintf(os.Stdout, "\tchildren=%v", names)
	}
	fmt.Fprintln(os.Stdout)
}

var chooserArgFlag string

func init() {
	strategiesChooseCmd.Flags().StringVar(&chooserArgFlag, "chooser-arg", "0", "chooser argument passed to the evaluator")
}

var strategiesChooseCmd = &cobra.Command{
	Use:   "choose",
	Short: "Run the chooser once and print the winning strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		chooserArg, err := strconv.ParseFloat(chooserArgFlag, 64)
		if err != nil {
			return fmt.Errorf("--chooser-arg: %w", err)
		}

		winner, err := app.Chooser.Choose(app.Evaluator, app.Singulars, app.Redundants, chooserArg)
		if err != nil {
			return err
		}
		t, _ := app.Chooser.GetLastStrategyTime(winner.Name())
		if _, err := app.Decisions.RecordDecision(winner.Name(), app.Config.Evaluator.Method, chooserArg, 0); err != nil {
			app.Log.Error("record decision failed", "err", err)
		}
		fmt.Fprintf(os.Stdout, "chose: %s (expected time %g)\n", winner.Name(), t)
		return nil
	},
}
