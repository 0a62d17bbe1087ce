// Command kmc drives a target and an abstract kernel model with the same
// commands and reports where they disagree.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/kmc/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
