package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(restoreCmd)
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Force-save the evaluator's current state to its configured path",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Save(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "saved state to %s\n", app.Config.Persistence.StatePath)
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Force-reload the evaluator's state from its configured path",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := loadApp()
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Fprintf(os.Stdout, "restored state from %s\n", app.Config.Persistence.StatePath)
		return nil
	},
}
