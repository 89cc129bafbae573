// Command chainsaw is the forensic triage CLI's entry point.
package main

import (
	"os"

	"github.com/triagelabs/chainsaw/internal/cli"
	"github.com/triagelabs/chainsaw/internal/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		errors.FatalError(err, cli.JSONOutputRequested())
	}
	os.Exit(errors.ExitSuccess)
}
