// Command instrumentsctl is the CLI front-end for inspecting and driving
// instrumentsd's estimators, strategies, and decision log.
package main

import (
	"fmt"
	"os"

	"github.com/tutu-network/instruments/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
