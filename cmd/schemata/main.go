// Command schemata runs the schema saga orchestrator.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/schemata/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "schemata:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
