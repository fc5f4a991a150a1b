// Command finishline reconciles race timer results with bib scans.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/finishline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
